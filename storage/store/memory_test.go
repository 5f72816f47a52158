package store

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"sampletrace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[TEST] ", log.LstdFlags)
}

func entry(step models.StepType, hash, txID string) models.TimelineEntry {
	return models.TimelineEntry{
		Step:                step,
		Name:                step.String(),
		Hash:                hash,
		TransactionID:       txID,
		Timestamp:           time.Now().UTC(),
		Details:             map[string]any{},
		Verified:            txID != "",
		OnChainHashRecorded: txID != "",
	}
}

func audit(sampleID string, step models.StepType) *models.StepTransaction {
	return &models.StepTransaction{
		ID:             "audit-" + sampleID + "-" + step.String(),
		StepType:       step,
		SampleID:       sampleID,
		Hash:           "h",
		Timestamp:      time.Now().UTC(),
		PayloadDigest:  "d",
		SignerIdentity: "signer",
	}
}

func seed(t *testing.T, m *MemoryStore, sampleID string) {
	t.Helper()
	now := time.Now().UTC()
	e := entry(models.StepCollection, "h1", "0xtx1")
	sample := &models.Sample{
		SampleID:       sampleID,
		PatientID:      "PAT-1",
		Status:         models.StatusCollected,
		CurrentStep:    models.StepCollection,
		HashChain:      []string{e.Hash},
		TransactionIDs: []string{e.TransactionID},
		Timeline:       []models.TimelineEntry{e},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, m.CreateSample(context.Background(), sample, audit(sampleID, models.StepCollection)))
}

func TestAppendStepAdvances(t *testing.T) {
	m := NewMemoryStore(testLogger())
	seed(t, m, "SMP-1")

	sample, err := m.AppendStep(context.Background(), "SMP-1", entry(models.StepTransport, "h2", "0xtx2"), audit("SMP-1", models.StepTransport))
	require.NoError(t, err)

	assert.Equal(t, models.StepTransport, sample.CurrentStep)
	assert.Equal(t, models.StatusInTransit, sample.Status)
	assert.Equal(t, []string{"h1", "h2"}, sample.HashChain)
	assert.Len(t, sample.Timeline, 2)
}

func TestAppendStepIdempotentReplay(t *testing.T) {
	m := NewMemoryStore(testLogger())
	seed(t, m, "SMP-1")

	// Replaying the recorded step must not duplicate the timeline entry
	sample, err := m.AppendStep(context.Background(), "SMP-1", entry(models.StepCollection, "h1", "0xtx1"), nil)
	require.NoError(t, err)
	assert.Len(t, sample.Timeline, 1)
	assert.Equal(t, models.StepCollection, sample.CurrentStep)
}

func TestAppendStepReplayPatchesLateAnchor(t *testing.T) {
	m := NewMemoryStore(testLogger())
	seed(t, m, "SMP-1")

	// Step written without an anchor, id arrives on a later replay
	_, err := m.AppendStep(context.Background(), "SMP-1", entry(models.StepTransport, "h2", ""), nil)
	require.NoError(t, err)

	sample, err := m.AppendStep(context.Background(), "SMP-1", entry(models.StepTransport, "h2", "0xlate"), nil)
	require.NoError(t, err)

	assert.Len(t, sample.Timeline, 2)
	assert.Equal(t, "0xlate", sample.Timeline[1].TransactionID)
	assert.True(t, sample.Timeline[1].Verified)
	assert.Equal(t, "0xlate", sample.TransactionIDs[1])
}

func TestAppendStepGapRejected(t *testing.T) {
	m := NewMemoryStore(testLogger())
	seed(t, m, "SMP-1")

	_, err := m.AppendStep(context.Background(), "SMP-1", entry(models.StepAnalysis, "h4", ""), nil)
	assert.ErrorIs(t, err, ErrStepGap)
}

func TestAppendStepUnknownSample(t *testing.T) {
	m := NewMemoryStore(testLogger())

	_, err := m.AppendStep(context.Background(), "SMP-missing", entry(models.StepTransport, "h2", ""), nil)
	assert.ErrorIs(t, err, ErrSampleNotFound)
}

func TestUpdateStepAnchor(t *testing.T) {
	m := NewMemoryStore(testLogger())
	seed(t, m, "SMP-1")
	_, err := m.AppendStep(context.Background(), "SMP-1", entry(models.StepTransport, "h2", ""), nil)
	require.NoError(t, err)

	require.NoError(t, m.UpdateStepAnchor(context.Background(), "SMP-1", models.StepTransport, "0xpatched", true))

	sample, err := m.GetSample(context.Background(), "SMP-1")
	require.NoError(t, err)
	assert.Equal(t, "0xpatched", sample.Timeline[1].TransactionID)
	assert.True(t, sample.Timeline[1].Verified)
	assert.True(t, sample.Timeline[1].OnChainHashRecorded)
}

func TestGetSampleReturnsCopy(t *testing.T) {
	m := NewMemoryStore(testLogger())
	seed(t, m, "SMP-1")

	first, err := m.GetSample(context.Background(), "SMP-1")
	require.NoError(t, err)
	first.HashChain[0] = "tampered"
	first.Timeline[0].Hash = "tampered"

	second, err := m.GetSample(context.Background(), "SMP-1")
	require.NoError(t, err)
	assert.Equal(t, "h1", second.HashChain[0])
	assert.Equal(t, "h1", second.Timeline[0].Hash)
}

func TestListSamplesFilters(t *testing.T) {
	m := NewMemoryStore(testLogger())
	seed(t, m, "SMP-1")
	seed(t, m, "SMP-2")

	all, err := m.ListSamples(context.Background(), SampleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byPatient, err := m.ListSamples(context.Background(), SampleFilter{PatientID: "PAT-other"})
	require.NoError(t, err)
	assert.Empty(t, byPatient)

	limited, err := m.ListSamples(context.Background(), SampleFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestListTransactionsTimeRange(t *testing.T) {
	m := NewMemoryStore(testLogger())
	seed(t, m, "SMP-1")
	_, err := m.AppendStep(context.Background(), "SMP-1", entry(models.StepTransport, "h2", ""), audit("SMP-1", models.StepTransport))
	require.NoError(t, err)

	all, err := m.ListTransactions(context.Background(), "SMP-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	none, err := m.ListTransactions(context.Background(), "SMP-1", time.Now().Add(time.Hour), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFailWritesSurfacesWriteError(t *testing.T) {
	m := NewMemoryStore(testLogger())
	seed(t, m, "SMP-1")
	m.FailWrites = true

	_, err := m.AppendStep(context.Background(), "SMP-1", entry(models.StepTransport, "h2", ""), nil)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "AppendStep", writeErr.Op)
}
