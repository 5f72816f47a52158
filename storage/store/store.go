// Package store is the off-chain replica of per-sample custody state: the
// source of truth for queries, updated by the state machine and patched by
// the anchor engine. Losing a replica write loses queryability entirely, so
// write failures surface as typed errors instead of degraded flags.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sampletrace/internal/models"
)

// ErrSampleNotFound is returned by reads for unknown sample ids
var ErrSampleNotFound = errors.New("sample not found")

// ErrStepGap is returned when an appended step would skip ahead of the
// sample's recorded progress
var ErrStepGap = errors.New("step is ahead of the sample's current step")

// WriteError wraps persistence-backend failures. Distinct from a missing
// on-chain anchor: the step did NOT progress and the caller must retry.
type WriteError struct {
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("replica write failed during %s: %v", e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SampleFilter narrows ListSamples results; zero values match everything
type SampleFilter struct {
	PatientID string
	Status    models.SampleStatus
	Limit     int
}

// Store defines the replica persistence interface consumed by the state
// machine, the anchor engine and the query surface
type Store interface {
	// CreateSample persists a freshly collected sample with its first
	// timeline entry and the audit record of the attempt.
	CreateSample(ctx context.Context, sample *models.Sample, tx *models.StepTransaction) error

	// AppendStep records one step transition. Idempotent per
	// (sampleID, entry.Step): a replayed call must not duplicate the
	// timeline entry; it no-ops, or patches only the anchor fields
	// (TransactionID/Verified/OnChainHashRecorded) when an id arrived after
	// the initial write. The audit record is appended on every call.
	AppendStep(ctx context.Context, sampleID string, entry models.TimelineEntry, tx *models.StepTransaction) (*models.Sample, error)

	// UpdateStepAnchor patches the anchor fields of an already-recorded
	// step; used by the asynchronous anchoring path.
	UpdateStepAnchor(ctx context.Context, sampleID string, step models.StepType, txID string, hashRecorded bool) error

	// GetSample returns the full aggregate or ErrSampleNotFound
	GetSample(ctx context.Context, sampleID string) (*models.Sample, error)

	// ListSamples returns samples matching the filter, newest first
	ListSamples(ctx context.Context, filter SampleFilter) ([]*models.Sample, error)

	// ListTransactions returns the append-only audit log for a sample,
	// bounded by the time range when from/to are non-zero
	ListTransactions(ctx context.Context, sampleID string, from, to time.Time) ([]*models.StepTransaction, error)

	// Close releases the underlying persistence resources
	Close()
}
