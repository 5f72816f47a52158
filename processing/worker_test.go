package worker

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"sampletrace/blockchain/client/mock"
	"sampletrace/config"
	"sampletrace/internal/messaging/consumer"
	"sampletrace/internal/models"
	"sampletrace/ledger/submitter"
	"sampletrace/storage/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[TEST] ", log.LstdFlags)
}

func newTestWorker(t *testing.T, ledger *mock.Ledger, replica *store.MemoryStore, queue *consumer.MockConsumer) *Worker {
	t.Helper()
	blockchainCfg := &config.BlockchainConfig{GasEstimationTimeout: "1s", ConfirmationTimeout: "2s"}
	blockchainCfg.SetDefaults()
	sub, err := submitter.NewTransactionSubmitter(ledger, blockchainCfg, testLogger())
	require.NoError(t, err)

	cfg := config.WorkerConfig{Concurrency: 2, ConsumerRetryDelay: "10ms", SubmitTimeout: "2s"}
	return New(cfg, testLogger(), replica, queue, sub)
}

func seedUnverifiedSample(t *testing.T, replica *store.MemoryStore, sampleID, hash string) {
	t.Helper()
	now := time.Now().UTC()
	sample := &models.Sample{
		SampleID:    sampleID,
		PatientID:   "PAT-1",
		Status:      models.StatusCollected,
		CurrentStep: models.StepCollection,
		HashChain:   []string{hash},
		TransactionIDs: []string{""},
		Timeline: []models.TimelineEntry{{
			Step:      models.StepCollection,
			Name:      models.StepCollection.String(),
			Hash:      hash,
			Timestamp: now,
			Details:   map[string]any{},
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, replica.CreateSample(context.Background(), sample, nil))
}

func waitForVerified(t *testing.T, replica *store.MemoryStore, sampleID string, step models.StepType) *models.Sample {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		sample, err := replica.GetSample(context.Background(), sampleID)
		require.NoError(t, err)
		if sample.Timeline[step-1].Verified {
			return sample
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("sample %s step %d never became verified", sampleID, step)
	return nil
}

func TestWorkerAnchorsQueuedStep(t *testing.T) {
	ledger := mock.NewLedger(nil)
	replica := store.NewMemoryStore(testLogger())
	queue := consumer.NewMockConsumer(testLogger())
	w := newTestWorker(t, ledger, replica, queue)

	seedUnverifiedSample(t, replica, "SMP-1", "h1")
	queue.Enqueue(&models.AnchorMessage{
		RequestID: uuid.NewString(),
		SampleID:  "SMP-1",
		Step:      models.StepCollection,
		Hash:      "h1",
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	sample := waitForVerified(t, replica, "SMP-1", models.StepCollection)
	cancel()
	<-done

	entry := sample.Timeline[0]
	assert.True(t, entry.Verified)
	assert.True(t, entry.OnChainHashRecorded)
	assert.NotEmpty(t, entry.TransactionID)

	matches, err := ledger.VerifyStep(context.Background(), "SMP-1", 1, "h1")
	require.NoError(t, err)
	assert.True(t, matches)
}

func TestWorkerDiscardsMalformedMessage(t *testing.T) {
	ledger := mock.NewLedger(nil)
	replica := store.NewMemoryStore(testLogger())
	queue := consumer.NewMockConsumer(testLogger())
	w := newTestWorker(t, ledger, replica, queue)

	handled := w.handleMessage(context.Background(), 1, &models.AnchorMessage{
		RequestID: uuid.NewString(),
		SampleID:  "",
		Step:      models.StepCollection,
		Hash:      "h1",
	})
	assert.True(t, handled, "malformed messages are dropped, not requeued")
}

func TestWorkerRequeuesOnTemporaryFailure(t *testing.T) {
	ledger := mock.NewLedger(nil)
	ledger.FailRecordStep = true
	ledger.FailProofTransfer = true
	replica := store.NewMemoryStore(testLogger())
	queue := consumer.NewMockConsumer(testLogger())
	w := newTestWorker(t, ledger, replica, queue)

	seedUnverifiedSample(t, replica, "SMP-1", "h1")
	handled := w.handleMessage(context.Background(), 1, &models.AnchorMessage{
		RequestID: uuid.NewString(),
		SampleID:  "SMP-1",
		Step:      models.StepCollection,
		Hash:      "h1",
	})
	assert.False(t, handled, "total submission failure is temporary, message requeued")
}

func TestWorkerDropsWhenSampleUnknown(t *testing.T) {
	ledger := mock.NewLedger(nil)
	replica := store.NewMemoryStore(testLogger())
	queue := consumer.NewMockConsumer(testLogger())
	w := newTestWorker(t, ledger, replica, queue)

	handled := w.handleMessage(context.Background(), 1, &models.AnchorMessage{
		RequestID: uuid.NewString(),
		SampleID:  "SMP-missing",
		Step:      models.StepCollection,
		Hash:      "h1",
	})
	assert.True(t, handled, "anchor for unknown sample is dropped")
}
