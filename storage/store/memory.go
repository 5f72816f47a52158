package store

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"sampletrace/internal/models"
)

var errInjectedWriteFailure = errors.New("injected write failure")

// MemoryStore keeps the replica in process memory. Used for local runs
// without Postgres and as the store double in tests.
type MemoryStore struct {
	mu           sync.RWMutex
	logger       *log.Logger
	samples      map[string]*models.Sample
	transactions []*models.StepTransaction

	// FailWrites makes every write return a WriteError, for testing the
	// fatal replica-failure path
	FailWrites bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *log.Logger) *MemoryStore {
	return &MemoryStore{
		logger:  logger,
		samples: make(map[string]*models.Sample),
	}
}

var _ Store = (*MemoryStore)(nil) // Compile-time interface check

// Close is a no-op for the in-memory store
func (m *MemoryStore) Close() {}

func (m *MemoryStore) writeError(op string) error {
	return &WriteError{Op: op, Err: errInjectedWriteFailure}
}

// CreateSample persists a freshly collected sample
func (m *MemoryStore) CreateSample(ctx context.Context, sample *models.Sample, tx *models.StepTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return m.writeError("CreateSample")
	}
	m.samples[sample.SampleID] = copySample(sample)
	if tx != nil {
		m.transactions = append(m.transactions, copyTransaction(tx))
	}
	return nil
}

// AppendStep records one step transition, idempotently per (sampleID, step)
func (m *MemoryStore) AppendStep(ctx context.Context, sampleID string, entry models.TimelineEntry, tx *models.StepTransaction) (*models.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return nil, m.writeError("AppendStep")
	}

	sample, ok := m.samples[sampleID]
	if !ok {
		return nil, ErrSampleNotFound
	}

	switch {
	case entry.Step <= sample.CurrentStep:
		// Replay: patch anchor fields only if an id arrived late
		existing := &sample.Timeline[entry.Step-1]
		if existing.TransactionID == "" && entry.TransactionID != "" {
			existing.TransactionID = entry.TransactionID
			existing.Verified = entry.Verified
			existing.OnChainHashRecorded = entry.OnChainHashRecorded
			sample.TransactionIDs[entry.Step-1] = entry.TransactionID
			sample.UpdatedAt = time.Now()
		}
	case entry.Step == sample.CurrentStep+1:
		sample.Timeline = append(sample.Timeline, entry)
		sample.HashChain = append(sample.HashChain, entry.Hash)
		sample.TransactionIDs = append(sample.TransactionIDs, entry.TransactionID)
		sample.CurrentStep = entry.Step
		sample.Status = models.StatusForStep(entry.Step)
		sample.UpdatedAt = time.Now()
	default:
		return nil, ErrStepGap
	}

	if tx != nil {
		m.transactions = append(m.transactions, copyTransaction(tx))
	}
	return copySample(sample), nil
}

// UpdateStepAnchor patches the anchor fields of a recorded step
func (m *MemoryStore) UpdateStepAnchor(ctx context.Context, sampleID string, step models.StepType, txID string, hashRecorded bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return m.writeError("UpdateStepAnchor")
	}
	sample, ok := m.samples[sampleID]
	if !ok {
		return ErrSampleNotFound
	}
	if int(step) < 1 || int(step) > len(sample.Timeline) {
		return ErrStepGap
	}
	e := &sample.Timeline[step-1]
	e.TransactionID = txID
	e.Verified = txID != ""
	e.OnChainHashRecorded = hashRecorded
	sample.TransactionIDs[step-1] = txID
	sample.UpdatedAt = time.Now()
	return nil
}

// GetSample returns a copy of the aggregate
func (m *MemoryStore) GetSample(ctx context.Context, sampleID string) (*models.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sample, ok := m.samples[sampleID]
	if !ok {
		return nil, ErrSampleNotFound
	}
	return copySample(sample), nil
}

// ListSamples returns matching samples, newest first
func (m *MemoryStore) ListSamples(ctx context.Context, filter SampleFilter) ([]*models.Sample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*models.Sample, 0, len(m.samples))
	for _, sample := range m.samples {
		if filter.PatientID != "" && sample.PatientID != filter.PatientID {
			continue
		}
		if filter.Status != "" && sample.Status != filter.Status {
			continue
		}
		result = append(result, copySample(sample))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// ListTransactions returns the audit log for a sample
func (m *MemoryStore) ListTransactions(ctx context.Context, sampleID string, from, to time.Time) ([]*models.StepTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*models.StepTransaction
	for _, tx := range m.transactions {
		if tx.SampleID != sampleID {
			continue
		}
		if !from.IsZero() && tx.Timestamp.Before(from) {
			continue
		}
		if !to.IsZero() && tx.Timestamp.After(to) {
			continue
		}
		result = append(result, copyTransaction(tx))
	}
	return result, nil
}

func copySample(s *models.Sample) *models.Sample {
	copied := *s
	copied.HashChain = append([]string(nil), s.HashChain...)
	copied.TransactionIDs = append([]string(nil), s.TransactionIDs...)
	copied.Timeline = append([]models.TimelineEntry(nil), s.Timeline...)
	return &copied
}

func copyTransaction(t *models.StepTransaction) *models.StepTransaction {
	copied := *t
	return &copied
}
