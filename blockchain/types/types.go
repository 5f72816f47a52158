package types

import "errors"

// Proof is the on-chain credential returned after a confirmed transaction
type Proof struct {
	TransactionID string // Transaction id/hash of the confirmed transaction
	BlockHeight   uint64 // Block the transaction was included in (0 if the backend does not report it)
}

// SampleRecord is the per-sample state held by the ledger contract:
// one hash slot per custody step plus the current step counter.
type SampleRecord struct {
	SampleID    string
	StepHashes  [4]string
	CurrentStep int
}

// HashForStep returns the recorded hash for a 1-based step, or "" when the
// contract holds nothing for that slot.
func (r *SampleRecord) HashForStep(step int) string {
	if step < 1 || step > len(r.StepHashes) {
		return ""
	}
	return r.StepHashes[step-1]
}

// FailureReason classifies why a submission did not produce an on-chain
// hash record. Stored on the audit log so degraded steps stay explainable.
type FailureReason string

const (
	ReasonNone                FailureReason = ""
	ReasonSignerUnavailable   FailureReason = "signer_unavailable"
	ReasonStepAlreadyRecorded FailureReason = "step_already_recorded"
	ReasonContractReverted    FailureReason = "contract_reverted"
	ReasonSubmissionFailed    FailureReason = "submission_failed"
	ReasonFallbackUsed        FailureReason = "fallback_proof_transfer"
)

// SubmitOutcome is the result of one TransactionSubmitter.Submit call.
// TransactionID may be empty; HashRecorded is true only when the id came
// from a successful recordStep call rather than a fallback transfer.
type SubmitOutcome struct {
	TransactionID string
	BlockHeight   uint64
	HashRecorded  bool
	FailureReason FailureReason
}

// Verified reports whether any confirmed transaction id was obtained
func (o SubmitOutcome) Verified() bool {
	return o.TransactionID != ""
}

// ErrStepAlreadyRecorded signals the contract rejected recordStep because the
// slot is taken: a concurrent submitter won the race. Callers must treat this
// as a distinguished, non-fatal condition rather than a generic failure.
var ErrStepAlreadyRecorded = errors.New("step already recorded on chain")

// ErrGasEstimationUnsupported is returned by ledger backends that have no fee
// estimation phase (e.g. ChainMaker); the submitter skips straight to the
// default gas policy.
var ErrGasEstimationUnsupported = errors.New("gas estimation not supported by this backend")
