package blockchain

import (
	"context"

	"sampletrace/blockchain/types"
)

// LedgerClient defines the generic interface for the sample-ledger contract
// This interface is blockchain-agnostic and can be implemented by different blockchain clients
type LedgerClient interface {
	// RecordStep anchors a step hash on the ledger contract. The contract is
	// the authoritative ordering guard: it reverts unless step is exactly
	// currentOnChainStep(sampleID)+1 and hash is non-empty. A revert caused
	// by a taken slot is returned as types.ErrStepAlreadyRecorded.
	// gasLimit of 0 lets the backend apply its own policy.
	RecordStep(ctx context.Context, sampleID string, step int, hash string, gasLimit uint64) (*types.Proof, error)

	// EstimateRecordStepGas estimates the fee units for a RecordStep call.
	// Backends without a fee-estimation phase return types.ErrGasEstimationUnsupported.
	EstimateRecordStepGas(ctx context.Context, sampleID string, step int, hash string) (uint64, error)

	// SubmitProofTransfer submits the minimal fallback value transfer whose
	// confirmed transaction id serves as a timestamped anchor when RecordStep
	// cannot succeed. It does NOT store the step hash on chain.
	SubmitProofTransfer(ctx context.Context, sampleID string, step int) (*types.Proof, error)

	// GetSample reads the per-sample contract state (hashes + current step)
	GetSample(ctx context.Context, sampleID string) (*types.SampleRecord, error)

	// VerifyStep is a read-only equality check of a step hash against the contract
	VerifyStep(ctx context.Context, sampleID string, step int, hash string) (bool, error)

	// Connected reports whether the signer credential is usable and the
	// client is attached to the expected network
	Connected() bool

	// Close closes the ledger client and releases resources
	Close() error

	// Config returns the configuration associated with the client
	Config() any // Return any to accommodate different config types
}
