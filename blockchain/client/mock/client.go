package mock

import (
	"context"
	"fmt"
	"log"
	"sync"

	"sampletrace/blockchain/types"

	"github.com/google/uuid"
)

// Ledger is an in-memory ledger client for local runs and tests. It keeps the
// contract's full ordering semantics: recordStep succeeds only for exactly
// the next step of a sample, so races resolve the same way they do on chain.
type Ledger struct {
	mu      sync.Mutex
	logger  *log.Logger
	records map[string]*types.SampleRecord
	height  uint64

	// Failure injection knobs for tests
	FailRecordStep    bool
	FailEstimation    bool
	FailProofTransfer bool
	Disconnected      bool
}

// NewLedger creates an empty in-memory ledger
func NewLedger(logger *log.Logger) *Ledger {
	return &Ledger{
		logger:  logger,
		records: make(map[string]*types.SampleRecord),
	}
}

// Connected reports the simulated connection state
func (l *Ledger) Connected() bool {
	return !l.Disconnected
}

// Config returns nil; the mock ledger has no configuration
func (l *Ledger) Config() any { return nil }

// Close is a no-op
func (l *Ledger) Close() error { return nil }

// RecordStep applies the contract's ordering guard in memory
func (l *Ledger) RecordStep(ctx context.Context, sampleID string, step int, hash string, gasLimit uint64) (*types.Proof, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.FailRecordStep {
		return nil, fmt.Errorf("injected recordStep failure")
	}
	if hash == "" {
		return nil, fmt.Errorf("execution reverted: empty hash")
	}
	if step < 1 || step > 4 {
		return nil, fmt.Errorf("execution reverted: step %d out of range", step)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[sampleID]
	if !ok {
		record = &types.SampleRecord{SampleID: sampleID}
		l.records[sampleID] = record
	}
	if step <= record.CurrentStep {
		return nil, types.ErrStepAlreadyRecorded
	}
	if step != record.CurrentStep+1 {
		return nil, fmt.Errorf("execution reverted: step %d out of order (current: %d)", step, record.CurrentStep)
	}

	record.StepHashes[step-1] = hash
	record.CurrentStep = step
	l.height++

	txID := "0xmock" + uuid.NewString()
	if l.logger != nil {
		l.logger.Printf("Mock ledger: recorded sample %s step %d (tx: %s)", sampleID, step, txID)
	}
	return &types.Proof{TransactionID: txID, BlockHeight: l.height}, nil
}

// EstimateRecordStepGas returns a fixed estimate, or an injected failure
func (l *Ledger) EstimateRecordStepGas(ctx context.Context, sampleID string, step int, hash string) (uint64, error) {
	if l.FailEstimation {
		return 0, fmt.Errorf("injected estimation failure")
	}
	return 90000, nil
}

// SubmitProofTransfer simulates the fallback anchor transfer
func (l *Ledger) SubmitProofTransfer(ctx context.Context, sampleID string, step int) (*types.Proof, error) {
	if l.FailProofTransfer {
		return nil, fmt.Errorf("injected proof transfer failure")
	}
	l.mu.Lock()
	l.height++
	height := l.height
	l.mu.Unlock()
	return &types.Proof{TransactionID: "0xfallback" + uuid.NewString(), BlockHeight: height}, nil
}

// GetSample returns the in-memory contract state for a sample
func (l *Ledger) GetSample(ctx context.Context, sampleID string) (*types.SampleRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[sampleID]
	if !ok {
		// The contract returns the zero record for unknown samples
		return &types.SampleRecord{SampleID: sampleID}, nil
	}
	copied := *record
	return &copied, nil
}

// VerifyStep checks a hash against the in-memory contract state
func (l *Ledger) VerifyStep(ctx context.Context, sampleID string, step int, hash string) (bool, error) {
	record, err := l.GetSample(ctx, sampleID)
	if err != nil {
		return false, err
	}
	recorded := record.HashForStep(step)
	return recorded != "" && recorded == hash, nil
}
