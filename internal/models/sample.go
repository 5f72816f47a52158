package models

import (
	"fmt"
	"time"
)

// StepType identifies one of the four ordered custody steps
type StepType int

const (
	StepCollection StepType = 1
	StepTransport  StepType = 2
	StepSequencing StepType = 3
	StepAnalysis   StepType = 4

	// FinalStep is the last custody step; a sample at this step is terminal
	FinalStep = StepAnalysis
)

// String returns the human-readable step name used in timeline entries
func (s StepType) String() string {
	switch s {
	case StepCollection:
		return "Collection"
	case StepTransport:
		return "Transport"
	case StepSequencing:
		return "Sequencing"
	case StepAnalysis:
		return "Analysis"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Valid reports whether the step number is within the 1..4 custody range
func (s StepType) Valid() bool {
	return s >= StepCollection && s <= StepAnalysis
}

// SampleStatus is derived from the current step of a sample
type SampleStatus string

const (
	StatusCollected SampleStatus = "Collected"
	StatusInTransit SampleStatus = "InTransit"
	StatusSequenced SampleStatus = "Sequenced"
	StatusCompleted SampleStatus = "Completed"
)

// StatusForStep maps a step number to the sample status it produces
func StatusForStep(step StepType) SampleStatus {
	switch step {
	case StepCollection:
		return StatusCollected
	case StepTransport:
		return StatusInTransit
	case StepSequencing:
		return StatusSequenced
	case StepAnalysis:
		return StatusCompleted
	default:
		return StatusCollected
	}
}

// TimelineEntry records one completed custody step with its proof material.
// Immutable once created, except that TransactionID, Verified and
// OnChainHashRecorded may be patched later when an anchor arrives
// asynchronously after the initial replica write.
type TimelineEntry struct {
	Step          StepType       `json:"step"`
	Name          string         `json:"name"`
	Hash          string         `json:"hash"`
	TransactionID string         `json:"transaction_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Details       map[string]any `json:"details"`

	// Verified means a confirmed transaction id was obtained for this step.
	// OnChainHashRecorded means the id came from a real recordStep call, not
	// from a fallback proof transfer; the two must never be conflated.
	Verified            bool `json:"verified"`
	OnChainHashRecorded bool `json:"onchain_hash_recorded"`
}

// Sample is the aggregate root for one physical specimen's lifecycle.
// It is only ever mutated through the state machine.
type Sample struct {
	SampleID    string          `json:"sample_id"`
	PatientID   string          `json:"patient_id"`
	Status      SampleStatus    `json:"status"`
	CurrentStep StepType        `json:"current_step"`
	HashChain   []string        `json:"hash_chain"`
	// TransactionIDs has one slot per completed step; a slot is "" when no
	// anchor was obtained for that step.
	TransactionIDs []string        `json:"transaction_ids"`
	Timeline       []TimelineEntry `json:"timeline"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// LastHash returns the tip of the hash chain, or "" for a fresh sample
func (s *Sample) LastHash() string {
	if len(s.HashChain) == 0 {
		return ""
	}
	return s.HashChain[len(s.HashChain)-1]
}

// Completed reports whether the sample has reached the terminal step
func (s *Sample) Completed() bool {
	return s.CurrentStep >= FinalStep
}

// StepTransaction is one row of the append-only audit log: a record of an
// attempted ledger write, created once per ApplyStep invocation regardless of
// the on-chain outcome.
type StepTransaction struct {
	ID             string    `json:"id"`
	StepType       StepType  `json:"step_type"`
	SampleID       string    `json:"sample_id"`
	Hash           string    `json:"hash"`
	TransactionID  string    `json:"transaction_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	PayloadDigest  string    `json:"payload_digest"`
	SignerIdentity string    `json:"signer_identity"`
	// FailureReason is empty when the anchor was obtained via recordStep
	FailureReason string `json:"failure_reason,omitempty"`
}
