package submitter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	blockchain "sampletrace/blockchain/client"
	"sampletrace/blockchain/types"
	"sampletrace/config"
)

// TransactionSubmitter drives one anchoring attempt through the full
// degradation ladder: estimate, record, retry with bumped gas, then fall
// back to a proof transfer. Submit never returns an error; every outcome,
// including total failure, is expressed in the SubmitOutcome so the caller
// can persist the replica row regardless.
type TransactionSubmitter struct {
	client blockchain.LedgerClient
	logger *log.Logger

	estimationTimeout   time.Duration
	confirmationTimeout time.Duration
	defaultGasLimit     uint64
	retryFactor         float64
}

// NewTransactionSubmitter builds a submitter from the shared blockchain policy
func NewTransactionSubmitter(ledgerClient blockchain.LedgerClient, cfg *config.BlockchainConfig, logger *log.Logger) (*TransactionSubmitter, error) {
	estTimeout, err := time.ParseDuration(cfg.GasEstimationTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid gas_estimation_timeout %q: %w", cfg.GasEstimationTimeout, err)
	}
	confTimeout, err := time.ParseDuration(cfg.ConfirmationTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid confirmation_timeout %q: %w", cfg.ConfirmationTimeout, err)
	}
	return &TransactionSubmitter{
		client:              ledgerClient,
		logger:              logger,
		estimationTimeout:   estTimeout,
		confirmationTimeout: confTimeout,
		defaultGasLimit:     cfg.DefaultGasLimit,
		retryFactor:         cfg.GasRetryFactor,
	}, nil
}

// Submit anchors one step hash on the ledger. The returned outcome always
// reflects what actually happened on chain; it never carries a transaction
// id that was not confirmed.
func (s *TransactionSubmitter) Submit(ctx context.Context, sampleID string, step int, hash string) types.SubmitOutcome {
	if !s.client.Connected() {
		s.logger.Printf("Submit skipped for sample %s step %d: ledger client not connected", sampleID, step)
		return types.SubmitOutcome{FailureReason: types.ReasonSignerUnavailable}
	}

	gasLimit := s.estimateGas(ctx, sampleID, step, hash)

	proof, err := s.recordStep(ctx, sampleID, step, hash, gasLimit)
	if err == nil {
		return types.SubmitOutcome{
			TransactionID: proof.TransactionID,
			BlockHeight:   proof.BlockHeight,
			HashRecorded:  true,
		}
	}
	if errors.Is(err, types.ErrStepAlreadyRecorded) {
		return s.resolveAlreadyRecorded(ctx, sampleID, step, hash)
	}
	s.logger.Printf("recordStep failed for sample %s step %d (gas=%d): %v", sampleID, step, gasLimit, err)

	// One retry with a bumped gas limit before giving up on the contract path
	retryGas := s.bumpGas(gasLimit)
	proof, retryErr := s.recordStep(ctx, sampleID, step, hash, retryGas)
	if retryErr == nil {
		s.logger.Printf("recordStep retry succeeded for sample %s step %d (gas=%d)", sampleID, step, retryGas)
		return types.SubmitOutcome{
			TransactionID: proof.TransactionID,
			BlockHeight:   proof.BlockHeight,
			HashRecorded:  true,
		}
	}
	if errors.Is(retryErr, types.ErrStepAlreadyRecorded) {
		return s.resolveAlreadyRecorded(ctx, sampleID, step, hash)
	}
	s.logger.Printf("recordStep retry failed for sample %s step %d (gas=%d): %v", sampleID, step, retryGas, retryErr)

	return s.fallbackTransfer(ctx, sampleID, step, retryErr)
}

// estimateGas runs fee estimation under its own deadline. Any estimation
// problem degrades to the configured default limit rather than blocking
// the submission.
func (s *TransactionSubmitter) estimateGas(ctx context.Context, sampleID string, step int, hash string) uint64 {
	estCtx, cancel := context.WithTimeout(ctx, s.estimationTimeout)
	defer cancel()

	estimated, err := s.client.EstimateRecordStepGas(estCtx, sampleID, step, hash)
	if errors.Is(err, types.ErrGasEstimationUnsupported) {
		return 0 // backend applies its own policy
	}
	if err != nil {
		s.logger.Printf("gas estimation failed for sample %s step %d, using default %d: %v",
			sampleID, step, s.defaultGasLimit, err)
		return s.defaultGasLimit
	}
	return estimated
}

func (s *TransactionSubmitter) recordStep(ctx context.Context, sampleID string, step int, hash string, gasLimit uint64) (*types.Proof, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.confirmationTimeout)
	defer cancel()
	return s.client.RecordStep(callCtx, sampleID, step, hash, gasLimit)
}

// resolveAlreadyRecorded handles the lost-race case: another submitter filled
// the slot first. When the on-chain hash matches ours the step is effectively
// anchored even though this call produced no transaction of its own.
func (s *TransactionSubmitter) resolveAlreadyRecorded(ctx context.Context, sampleID string, step int, hash string) types.SubmitOutcome {
	matches, err := s.client.VerifyStep(ctx, sampleID, step, hash)
	if err != nil {
		s.logger.Printf("verify after slot conflict failed for sample %s step %d: %v", sampleID, step, err)
		return types.SubmitOutcome{FailureReason: types.ReasonStepAlreadyRecorded}
	}
	if !matches {
		s.logger.Printf("slot conflict with DIVERGENT hash for sample %s step %d", sampleID, step)
		return types.SubmitOutcome{FailureReason: types.ReasonStepAlreadyRecorded}
	}
	return types.SubmitOutcome{
		HashRecorded:  true,
		FailureReason: types.ReasonStepAlreadyRecorded,
	}
}

// fallbackTransfer obtains a timestamped proof when the contract path is
// exhausted. The step hash is NOT stored on chain by this path.
func (s *TransactionSubmitter) fallbackTransfer(ctx context.Context, sampleID string, step int, recordErr error) types.SubmitOutcome {
	reason := types.ReasonSubmissionFailed
	if strings.Contains(strings.ToLower(recordErr.Error()), "revert") {
		reason = types.ReasonContractReverted
	}

	callCtx, cancel := context.WithTimeout(ctx, s.confirmationTimeout)
	defer cancel()
	proof, err := s.client.SubmitProofTransfer(callCtx, sampleID, step)
	if err != nil {
		s.logger.Printf("fallback proof transfer failed for sample %s step %d: %v", sampleID, step, err)
		return types.SubmitOutcome{FailureReason: reason}
	}
	s.logger.Printf("fallback proof transfer anchored sample %s step %d as %s", sampleID, step, proof.TransactionID)
	return types.SubmitOutcome{
		TransactionID: proof.TransactionID,
		BlockHeight:   proof.BlockHeight,
		HashRecorded:  false,
		FailureReason: types.ReasonFallbackUsed,
	}
}

func (s *TransactionSubmitter) bumpGas(gasLimit uint64) uint64 {
	base := gasLimit
	if base == 0 {
		base = s.defaultGasLimit
	}
	bumped := uint64(float64(base) * s.retryFactor)
	if bumped <= base {
		bumped = base + 1
	}
	return bumped
}
