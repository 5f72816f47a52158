package reconcile

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"sampletrace/blockchain/client/mock"
	"sampletrace/internal/models"
	"sampletrace/storage/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[TEST] ", log.LstdFlags)
}

// seedSample writes a sample with the given timeline directly into the store
func seedSample(t *testing.T, replica *store.MemoryStore, sampleID string, entries []models.TimelineEntry) {
	t.Helper()
	now := time.Now().UTC()
	sample := &models.Sample{
		SampleID:    sampleID,
		PatientID:   "PAT-1",
		Status:      models.StatusForStep(entries[0].Step),
		CurrentStep: entries[0].Step,
		HashChain:   []string{entries[0].Hash},
		TransactionIDs: []string{entries[0].TransactionID},
		Timeline:    entries[:1],
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, replica.CreateSample(context.Background(), sample, nil))
	for _, entry := range entries[1:] {
		_, err := replica.AppendStep(context.Background(), sampleID, entry, nil)
		require.NoError(t, err)
	}
}

func entry(step models.StepType, hash string, verified, recorded bool) models.TimelineEntry {
	return models.TimelineEntry{
		Step:                step,
		Name:                step.String(),
		Hash:                hash,
		Timestamp:           time.Now().UTC(),
		Details:             map[string]any{},
		Verified:            verified,
		OnChainHashRecorded: recorded,
	}
}

func TestCheckConsistent(t *testing.T) {
	ledger := mock.NewLedger(nil)
	replica := store.NewMemoryStore(testLogger())
	rec := NewReconciler(replica, ledger, testLogger())

	_, err := ledger.RecordStep(context.Background(), "SMP-1", 1, "h1", 0)
	require.NoError(t, err)
	_, err = ledger.RecordStep(context.Background(), "SMP-1", 2, "h2", 0)
	require.NoError(t, err)

	e1 := entry(models.StepCollection, "h1", true, true)
	e1.TransactionID = "0xabc"
	e2 := entry(models.StepTransport, "h2", true, true)
	e2.TransactionID = "0xdef"
	seedSample(t, replica, "SMP-1", []models.TimelineEntry{e1, e2})

	report, err := rec.Check(context.Background(), "SMP-1")
	require.NoError(t, err)

	assert.Equal(t, 2, report.ConsistentSteps)
	assert.Equal(t, 0, report.DriftedSteps)
	assert.Equal(t, 2, report.OnChainStep)
	for _, step := range report.Steps {
		assert.Equal(t, Consistent, step.Drift)
	}
}

func TestCheckOffchainOnly(t *testing.T) {
	ledger := mock.NewLedger(nil)
	replica := store.NewMemoryStore(testLogger())
	rec := NewReconciler(replica, ledger, testLogger())

	// Fallback path: verified via proof transfer, hash never stored on chain
	e1 := entry(models.StepCollection, "h1", true, false)
	e1.TransactionID = "0xfallback1"
	seedSample(t, replica, "SMP-1", []models.TimelineEntry{e1})

	report, err := rec.Check(context.Background(), "SMP-1")
	require.NoError(t, err)

	require.Len(t, report.Steps, 1)
	assert.Equal(t, OffchainOnly, report.Steps[0].Drift)
	assert.Equal(t, 1, report.DriftedSteps)
}

func TestCheckOnchainMismatch(t *testing.T) {
	ledger := mock.NewLedger(nil)
	replica := store.NewMemoryStore(testLogger())
	rec := NewReconciler(replica, ledger, testLogger())

	_, err := ledger.RecordStep(context.Background(), "SMP-1", 1, "other-hash", 0)
	require.NoError(t, err)

	e1 := entry(models.StepCollection, "h1", true, true)
	e1.TransactionID = "0xabc"
	seedSample(t, replica, "SMP-1", []models.TimelineEntry{e1})

	report, err := rec.Check(context.Background(), "SMP-1")
	require.NoError(t, err)

	require.Len(t, report.Steps, 1)
	assert.Equal(t, OnchainMismatch, report.Steps[0].Drift)
	assert.Equal(t, "other-hash", report.Steps[0].OnChainHash)
}

func TestCheckOnchainMissingHash(t *testing.T) {
	ledger := mock.NewLedger(nil)
	replica := store.NewMemoryStore(testLogger())
	rec := NewReconciler(replica, ledger, testLogger())

	// Replica claims an on-chain record but the contract slot is empty
	e1 := entry(models.StepCollection, "h1", true, true)
	e1.TransactionID = "0xabc"
	seedSample(t, replica, "SMP-1", []models.TimelineEntry{e1})

	report, err := rec.Check(context.Background(), "SMP-1")
	require.NoError(t, err)

	require.Len(t, report.Steps, 1)
	assert.Equal(t, OnchainMissingHash, report.Steps[0].Drift)
}

func TestCheckUnknownSample(t *testing.T) {
	rec := NewReconciler(store.NewMemoryStore(testLogger()), mock.NewLedger(nil), testLogger())

	_, err := rec.Check(context.Background(), "SMP-missing")
	assert.ErrorIs(t, err, store.ErrSampleNotFound)
}

func TestCheckLostRaceSameHashIsConsistent(t *testing.T) {
	ledger := mock.NewLedger(nil)
	replica := store.NewMemoryStore(testLogger())
	rec := NewReconciler(replica, ledger, testLogger())

	// A concurrent writer recorded the same hash; the local attempt saw
	// the slot taken and stored OnChainHashRecorded=false
	_, err := ledger.RecordStep(context.Background(), "SMP-1", 1, "h1", 0)
	require.NoError(t, err)
	seedSample(t, replica, "SMP-1", []models.TimelineEntry{entry(models.StepCollection, "h1", false, false)})

	report, err := rec.Check(context.Background(), "SMP-1")
	require.NoError(t, err)
	assert.Equal(t, Consistent, report.Steps[0].Drift)
}
