package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sampletrace/api/httpapi"
	blockchain "sampletrace/blockchain/client"
	"sampletrace/config"
	"sampletrace/internal/messaging/producer"
	"sampletrace/ledger/reconcile"
	"sampletrace/ledger/statemachine"
	"sampletrace/ledger/submitter"
	"sampletrace/scoring"
	"sampletrace/storage/store"
)

// Gateway configuration file path
const gatewayConfigPath = "./config/gateway.defaults.yml"

func main() {
	logger := log.New(os.Stdout, "[GATEWAY] ", log.LstdFlags|log.Lshortfile)
	logger.Println("Starting Sample Gateway...")

	// 1. Load gateway configuration
	cfg, err := config.LoadGatewayConfig(gatewayConfigPath)
	if err != nil {
		logger.Fatalf("Failed to load gateway configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize dependencies
	logger.Println("Initializing database connection...")
	dbStore, err := store.NewPostgresStore(ctx, cfg.Database.DSN, cfg.Database.MinConnections, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize database store: %v", err)
	}
	defer dbStore.Close()

	logger.Println("Initializing ledger client using configuration files...")
	ledgerClient, err := blockchain.NewLedgerClientFromFile(cfg.BlockchainClientConfigPath, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize ledger client: %v", err)
	}
	defer ledgerClient.Close()

	blockchainCfg, err := config.LoadBlockchainConfig(cfg.BlockchainClientConfigPath)
	if err != nil {
		logger.Fatalf("Failed to load blockchain configuration: %v", err)
	}
	txSubmitter, err := submitter.NewTransactionSubmitter(ledgerClient, blockchainCfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize transaction submitter: %v", err)
	}

	signerIdentity := "unknown-signer"
	if sa, ok := ledgerClient.(interface{ SignerAddress() string }); ok {
		signerIdentity = sa.SignerAddress()
	}

	// 3. Create the state machine and its collaborators
	machine := statemachine.NewStateMachine(dbStore, txSubmitter, signerIdentity, logger)

	if cfg.AsyncAnchoring {
		logger.Println("Initializing Kafka producer for asynchronous anchoring...")
		kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaProducer, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize Kafka producer: %v", err)
		}
		defer kafkaProducer.Close()
		machine.EnableAsyncAnchoring(kafkaProducer)
	}

	reconciler := reconcile.NewReconciler(dbStore, ledgerClient, logger)

	var scorer scoring.Scorer
	if cfg.Scoring.BaseURL != "" {
		scoringTimeout, err := time.ParseDuration(cfg.Scoring.Timeout)
		if err != nil {
			logger.Printf("Warning: Invalid scoring.timeout '%s', using default 10s", cfg.Scoring.Timeout)
			scoringTimeout = 10 * time.Second
		}
		scorer = scoring.NewHTTPScorer(cfg.Scoring.BaseURL, scoringTimeout, logger)
	} else {
		logger.Println("scoring.base_url not configured, Analysis steps will record degraded results.")
	}

	handler := httpapi.NewHandler(machine, dbStore, reconciler, scorer, logger)

	// 4. HTTP server
	mux := http.NewServeMux()
	handler.Register(mux)

	// Use HTTP server configuration with defaults
	readTimeout := cfg.HttpServer.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 5 * time.Second
	}

	writeTimeout := cfg.HttpServer.WriteTimeout
	if writeTimeout == 0 {
		// Synchronous anchoring waits for confirmation inside the request
		writeTimeout = 120 * time.Second
	}

	idleTimeout := cfg.HttpServer.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}

	maxHeaderBytes := cfg.HttpServer.MaxHeaderBytes
	if maxHeaderBytes == 0 {
		maxHeaderBytes = 1 << 20 // 1 MB
	}

	httpServer := &http.Server{
		Addr:           cfg.HttpListenAddr,
		Handler:        mux,
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxHeaderBytes: maxHeaderBytes,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Printf("HTTP server listening on %s", cfg.HttpListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("HTTP server startup failed: %v", err)
		}
		logger.Println("HTTP server stopped listening.")
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Printf("Received shutdown signal: %s, starting graceful shutdown of Sample Gateway...", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	logger.Println("Shutting down HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server shutdown failed: %v", err)
	} else {
		logger.Println("HTTP server shutdown.")
	}

	wg.Wait()
	logger.Println("Sample Gateway shutdown.")
}
