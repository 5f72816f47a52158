package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	blockchain "sampletrace/blockchain/client"
	"sampletrace/config"
	"sampletrace/internal/messaging/consumer"
	"sampletrace/ledger/submitter"
	worker "sampletrace/processing"
	"sampletrace/storage/store"
)

const anchorConfigPath = "./config/anchor.defaults.yml"

func main() {
	logger := log.New(os.Stdout, "[ANCHOR] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting Anchor Engine...")

	// 1. Load Anchor Config
	anchorCfg, err := config.LoadAnchorConfig(anchorConfigPath)
	if err != nil {
		logger.Fatalf("FATAL: Failed to load anchor configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize Dependencies
	logger.Println("Initializing database connection...")
	dbStore, err := store.NewPostgresStore(ctx, anchorCfg.Database.DSN, anchorCfg.Database.MinConnections, anchorCfg.Database.MaxConnections, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize database store: %v", err)
	}
	defer dbStore.Close()

	logger.Println("Initializing ledger client using configuration files...")
	ledgerClient, err := blockchain.NewLedgerClientFromFile(anchorCfg.BlockchainClientConfigPath, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize ledger client: %v", err)
	}
	defer ledgerClient.Close()

	blockchainCfg, err := config.LoadBlockchainConfig(anchorCfg.BlockchainClientConfigPath)
	if err != nil {
		logger.Fatalf("FATAL: Failed to load blockchain configuration: %v", err)
	}
	txSubmitter, err := submitter.NewTransactionSubmitter(ledgerClient, blockchainCfg, logger)
	if err != nil {
		logger.Fatalf("FATAL: Failed to initialize transaction submitter: %v", err)
	}

	// 3. Initialize Consumer
	var mqConsumer consumer.Consumer
	if !anchorCfg.UseMockConsumer && len(anchorCfg.KafkaConsumer.Brokers) > 0 {
		logger.Println("Initializing Kafka message queue consumer...")
		kafkaConsumer, err := consumer.NewKafkaConsumer(anchorCfg.KafkaConsumer, logger)
		if err != nil {
			logger.Fatalf("FATAL: Failed to initialize Kafka consumer: %v", err)
		}
		mqConsumer = kafkaConsumer
	} else {
		logger.Println("Initializing Mock message queue consumer...")
		mqConsumer = consumer.NewMockConsumer(logger)
	}
	defer mqConsumer.Close()

	// 4. Create and start the worker pool
	workerInstance := worker.New(anchorCfg.Worker, logger, dbStore, mqConsumer, txSubmitter)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		workerInstance.Run(ctx)
	}()

	logger.Printf("Anchor Engine started with %d workers. Press Ctrl+C to stop.", anchorCfg.Worker.Concurrency)

	// 5. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Println("Received shutdown signal, initiating graceful shutdown...")
	cancel()

	logger.Println("Waiting for all workers to finish...")
	wg.Wait()

	logger.Println("Anchor Engine shut down gracefully.")
}
