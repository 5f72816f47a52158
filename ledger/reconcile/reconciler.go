// Package reconcile compares the off-chain replica against the on-chain
// contract state and classifies per-step drift. It is the audit surface:
// strictly read-only against both stores.
package reconcile

import (
	"context"
	"fmt"
	"log"

	blockchain "sampletrace/blockchain/client"
	"sampletrace/internal/models"
	"sampletrace/storage/store"
)

// DriftKind classifies the agreement between replica and contract for one step
type DriftKind string

const (
	// Consistent means the replica hash is recorded and matches on chain
	Consistent DriftKind = "Consistent"
	// OffchainOnly means the replica holds the step but no on-chain hash
	// record exists for it (fallback path used or submission never attempted)
	OffchainOnly DriftKind = "OffchainOnly"
	// OnchainMismatch means the contract holds a DIFFERENT hash for a step
	// the replica claims was recorded: a lost race or data corruption
	OnchainMismatch DriftKind = "OnchainMismatch"
	// OnchainMissingHash means the replica claims the hash was recorded on
	// chain but the contract slot is empty
	OnchainMissingHash DriftKind = "OnchainMissingHash"
)

// StepReport is the drift classification for one custody step
type StepReport struct {
	Step  models.StepType `json:"step"`
	Name  string          `json:"name"`
	Drift DriftKind       `json:"drift"`
	// ReplicaHash is always set; OnChainHash is "" when the contract slot
	// is empty
	ReplicaHash string `json:"replica_hash"`
	OnChainHash string `json:"onchain_hash,omitempty"`
}

// Report covers every step the replica has recorded for one sample
type Report struct {
	SampleID        string          `json:"sample_id"`
	ReplicaStep     models.StepType `json:"replica_step"`
	OnChainStep     int             `json:"onchain_step"`
	Steps           []StepReport    `json:"steps"`
	ConsistentSteps int             `json:"consistent_steps"`
	DriftedSteps    int             `json:"drifted_steps"`
}

// Reconciler builds drift reports from the replica and the ledger contract
type Reconciler struct {
	replica store.Store
	ledger  blockchain.LedgerClient
	logger  *log.Logger
}

// NewReconciler creates a read-only reconciler over the two stores
func NewReconciler(replica store.Store, ledger blockchain.LedgerClient, logger *log.Logger) *Reconciler {
	return &Reconciler{replica: replica, ledger: ledger, logger: logger}
}

// Check classifies every recorded step of one sample. Mutates nothing.
func (r *Reconciler) Check(ctx context.Context, sampleID string) (*Report, error) {
	sample, err := r.replica.GetSample(ctx, sampleID)
	if err != nil {
		return nil, err
	}

	record, err := r.ledger.GetSample(ctx, sampleID)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract state for sample %s: %w", sampleID, err)
	}

	report := &Report{
		SampleID:    sampleID,
		ReplicaStep: sample.CurrentStep,
		OnChainStep: record.CurrentStep,
	}

	for _, entry := range sample.Timeline {
		stepReport := StepReport{
			Step:        entry.Step,
			Name:        entry.Name,
			ReplicaHash: entry.Hash,
			OnChainHash: record.HashForStep(int(entry.Step)),
		}
		stepReport.Drift = classify(entry, stepReport.OnChainHash)
		if stepReport.Drift == Consistent {
			report.ConsistentSteps++
		} else {
			report.DriftedSteps++
			r.logger.Printf("Drift on sample %s step %d (%s): %s", sampleID, entry.Step, entry.Name, stepReport.Drift)
		}
		report.Steps = append(report.Steps, stepReport)
	}
	return report, nil
}

func classify(entry models.TimelineEntry, onChainHash string) DriftKind {
	if !entry.OnChainHashRecorded {
		// The replica never claimed an on-chain hash record for this step.
		// A matching slot can still exist when a concurrent writer won the
		// recordStep race with the same hash.
		if onChainHash == entry.Hash {
			return Consistent
		}
		return OffchainOnly
	}
	switch onChainHash {
	case entry.Hash:
		return Consistent
	case "":
		return OnchainMissingHash
	default:
		return OnchainMismatch
	}
}
