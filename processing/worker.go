// Package worker is the anchor engine: a pool of goroutines that consume
// anchor requests from the queue, drive the ledger submission and patch the
// replica with the resulting transaction id.
package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"sampletrace/blockchain/types"
	"sampletrace/config"
	"sampletrace/internal/messaging/consumer"
	"sampletrace/internal/models"
	"sampletrace/ledger/statemachine"
	"sampletrace/storage/store"
)

// Worker anchors queued steps on the ledger
type Worker struct {
	workerConfig       config.WorkerConfig
	consumerRetryDelay time.Duration // Parsed from workerConfig.ConsumerRetryDelay
	submitTimeout      time.Duration // Parsed from workerConfig.SubmitTimeout

	logger    *log.Logger
	store     store.Store
	consumer  consumer.Consumer
	submitter statemachine.Submitter
}

// New creates a new Worker instance
func New(cfg config.WorkerConfig, logger *log.Logger, s store.Store, c consumer.Consumer, sub statemachine.Submitter) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	// Parse time duration strings
	consumerRetryDelay, err := time.ParseDuration(cfg.ConsumerRetryDelay)
	if err != nil {
		logger.Printf("Warning: Invalid consumer_retry_delay '%s', using default 5s", cfg.ConsumerRetryDelay)
		consumerRetryDelay = 5 * time.Second
	}

	submitTimeout, err := time.ParseDuration(cfg.SubmitTimeout)
	if err != nil {
		logger.Printf("Warning: Invalid submit_timeout '%s', using default 90s", cfg.SubmitTimeout)
		submitTimeout = 90 * time.Second
	}

	return &Worker{
		workerConfig:       cfg,
		consumerRetryDelay: consumerRetryDelay,
		submitTimeout:      submitTimeout,
		logger:             logger,
		store:              s,
		consumer:           c,
		submitter:          sub,
	}
}

// Run starts the worker pool and blocks until the context is cancelled
func (w *Worker) Run(ctx context.Context) {
	w.logger.Printf("Starting anchor worker pool with concurrency: %d", w.workerConfig.Concurrency)
	var wg sync.WaitGroup
	for i := 0; i < w.workerConfig.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.logger.Printf("Worker %d started", workerID)
			w.consumeLoop(ctx, workerID)
			w.logger.Printf("Worker %d stopped", workerID)
		}(i + 1)
	}
	wg.Wait()
	w.logger.Println("Anchor worker pool stopped.")
}

// consumeLoop is the main loop for one worker goroutine
func (w *Worker) consumeLoop(ctx context.Context, workerID int) {
	for {
		msg, ack, err := w.consumer.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				w.logger.Printf("Worker %d: Context cancelled, stopping.", workerID)
				return
			}
			w.logger.Printf("Worker %d: Consumer error: %v", workerID, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.consumerRetryDelay):
			}
			continue
		}
		if msg == nil {
			continue
		}
		ack(w.handleMessage(ctx, workerID, msg))
	}
}

// handleMessage runs one anchor request end to end. The return value is the
// ack decision: true deletes the message, false requeues it for another
// attempt.
func (w *Worker) handleMessage(ctx context.Context, workerID int, msg *models.AnchorMessage) bool {
	if msg.SampleID == "" || !msg.Step.Valid() || msg.Hash == "" {
		w.logger.Printf("Worker %d: Discarding malformed anchor request (request_id: %s)", workerID, msg.RequestID)
		return true
	}

	submitCtx, cancel := context.WithTimeout(ctx, w.submitTimeout)
	outcome := w.submitter.Submit(submitCtx, msg.SampleID, int(msg.Step), msg.Hash)
	cancel()

	if !outcome.Verified() && !outcome.HashRecorded {
		switch outcome.FailureReason {
		case types.ReasonSignerUnavailable, types.ReasonSubmissionFailed:
			// Temporary conditions: requeue and try again later
			w.logger.Printf("Worker %d: Anchor attempt for sample %s step %d failed (%s), requeueing",
				workerID, msg.SampleID, msg.Step, outcome.FailureReason)
			return false
		default:
			// Reverts and divergent slots will not heal on retry; the
			// reconciler surfaces them as drift
			w.logger.Printf("Worker %d: Anchor attempt for sample %s step %d unrecoverable (%s), dropping",
				workerID, msg.SampleID, msg.Step, outcome.FailureReason)
			return true
		}
	}

	err := w.store.UpdateStepAnchor(ctx, msg.SampleID, msg.Step, outcome.TransactionID, outcome.HashRecorded)
	if err != nil {
		if errors.Is(err, store.ErrSampleNotFound) {
			w.logger.Printf("Worker %d: Sample %s unknown to replica, dropping anchor request %s",
				workerID, msg.SampleID, msg.RequestID)
			return true
		}
		w.logger.Printf("Worker %d: Failed to patch replica for sample %s step %d: %v",
			workerID, msg.SampleID, msg.Step, err)
		return false
	}

	w.logger.Printf("Worker %d: Anchored sample %s step %d (tx: %s, hash_recorded: %t)",
		workerID, msg.SampleID, msg.Step, outcome.TransactionID, outcome.HashRecorded)
	return true
}
