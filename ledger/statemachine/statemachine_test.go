package statemachine

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"

	"sampletrace/blockchain/client/mock"
	"sampletrace/blockchain/types"
	"sampletrace/config"
	"sampletrace/internal/models"
	"sampletrace/ledger/hashchain"
	"sampletrace/ledger/submitter"
	"sampletrace/storage/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.New(os.Stdout, "[TEST] ", log.LstdFlags)
}

func newTestMachine(t *testing.T, ledger *mock.Ledger) (*StateMachine, *store.MemoryStore) {
	t.Helper()
	cfg := &config.BlockchainConfig{}
	cfg.SetDefaults()
	sub, err := submitter.NewTransactionSubmitter(ledger, cfg, testLogger())
	require.NoError(t, err)
	replica := store.NewMemoryStore(testLogger())
	return NewStateMachine(replica, sub, "0xtestsigner", testLogger()), replica
}

func mustCollect(t *testing.T, sm *StateMachine) *models.Sample {
	t.Helper()
	sample, stepTx, err := sm.Collect(context.Background(), "", "PAT-1", map[string]any{"site": "clinic-a"})
	require.NoError(t, err)
	require.NotNil(t, stepTx)
	return sample
}

func TestCollectCreatesVerifiedSample(t *testing.T) {
	sm, replica := newTestMachine(t, mock.NewLedger(nil))

	sample := mustCollect(t, sm)

	assert.Equal(t, models.StepCollection, sample.CurrentStep)
	assert.Equal(t, models.StatusCollected, sample.Status)
	require.Len(t, sample.Timeline, 1)
	assert.True(t, sample.Timeline[0].Verified)
	assert.True(t, sample.Timeline[0].OnChainHashRecorded)
	assert.Equal(t, sample.HashChain[0], sample.Timeline[0].Hash)

	stored, err := replica.GetSample(context.Background(), sample.SampleID)
	require.NoError(t, err)
	assert.Equal(t, sample.SampleID, stored.SampleID)
}

func TestCollectDuplicateRejected(t *testing.T) {
	sm, _ := newTestMachine(t, mock.NewLedger(nil))
	sample := mustCollect(t, sm)

	_, _, err := sm.Collect(context.Background(), sample.SampleID, "PAT-1", map[string]any{})
	assert.ErrorIs(t, err, ErrSampleExists)
}

func TestApplyStepAdvancesChain(t *testing.T) {
	sm, _ := newTestMachine(t, mock.NewLedger(nil))
	sample := mustCollect(t, sm)

	updated, stepTx, err := sm.ApplyStep(context.Background(), sample.SampleID, models.StepTransport,
		map[string]any{"logistics_id": "LOG-9", "pickup": "clinic-a", "delivery": "lab-b"})
	require.NoError(t, err)

	assert.Equal(t, models.StepTransport, updated.CurrentStep)
	assert.Equal(t, models.StatusInTransit, updated.Status)
	require.Len(t, updated.HashChain, 2)
	require.Len(t, updated.Timeline, 2)
	assert.Equal(t, updated.HashChain[1], updated.Timeline[1].Hash)
	assert.Equal(t, "0xtestsigner", stepTx.SignerIdentity)
	assert.NotEmpty(t, stepTx.PayloadDigest)

	// The recorded hash must be reproducible from the timeline
	entry := updated.Timeline[1]
	assert.True(t, hashchain.Verify(entry.Hash, updated.HashChain[0], entry.Details, entry.Timestamp))
}

func TestApplyStepOutOfOrder(t *testing.T) {
	sm, _ := newTestMachine(t, mock.NewLedger(nil))
	sample := mustCollect(t, sm)

	_, _, err := sm.ApplyStep(context.Background(), sample.SampleID, models.StepSequencing, map[string]any{})

	var oooErr *OutOfOrderStepError
	require.ErrorAs(t, err, &oooErr)
	assert.Equal(t, models.StepCollection, oooErr.Current)
	assert.Equal(t, models.StepSequencing, oooErr.Requested)

	// The sample must be unchanged after a rejected step
	stored, _, err2 := sm.ApplyStep(context.Background(), sample.SampleID, models.StepTransport, map[string]any{})
	require.NoError(t, err2)
	assert.Equal(t, models.StepTransport, stored.CurrentStep)
}

func TestApplyStepTerminalSample(t *testing.T) {
	sm, _ := newTestMachine(t, mock.NewLedger(nil))
	sample := mustCollect(t, sm)

	for _, step := range []models.StepType{models.StepTransport, models.StepSequencing, models.StepAnalysis} {
		_, _, err := sm.ApplyStep(context.Background(), sample.SampleID, step, map[string]any{"step": int(step)})
		require.NoError(t, err)
	}

	_, _, err := sm.ApplyStep(context.Background(), sample.SampleID, models.StepAnalysis, map[string]any{})
	assert.ErrorIs(t, err, ErrSampleCompleted)
}

func TestApplyStepUnknownSample(t *testing.T) {
	sm, _ := newTestMachine(t, mock.NewLedger(nil))

	_, _, err := sm.ApplyStep(context.Background(), "SMP-missing", models.StepTransport, map[string]any{})
	assert.ErrorIs(t, err, store.ErrSampleNotFound)
}

func TestApplyStepDegradesOnSubmissionFailure(t *testing.T) {
	ledger := mock.NewLedger(nil)
	ledger.FailRecordStep = true
	ledger.FailProofTransfer = true
	sm, _ := newTestMachine(t, ledger)

	sample := mustCollect(t, sm)
	require.False(t, sample.Timeline[0].Verified)

	updated, stepTx, err := sm.ApplyStep(context.Background(), sample.SampleID, models.StepTransport, map[string]any{})
	require.NoError(t, err)

	assert.Equal(t, models.StepTransport, updated.CurrentStep)
	assert.False(t, updated.Timeline[1].Verified)
	assert.Empty(t, updated.TransactionIDs[1])
	assert.Equal(t, string(types.ReasonSubmissionFailed), stepTx.FailureReason)
}

func TestApplyStepFallbackKeepsDistinction(t *testing.T) {
	ledger := mock.NewLedger(nil)
	ledger.FailRecordStep = true
	sm, _ := newTestMachine(t, ledger)

	sample := mustCollect(t, sm)

	entry := sample.Timeline[0]
	assert.True(t, entry.Verified)
	assert.False(t, entry.OnChainHashRecorded)
}

func TestApplyStepReplicaWriteFailureIsFatal(t *testing.T) {
	sm, replica := newTestMachine(t, mock.NewLedger(nil))
	sample := mustCollect(t, sm)

	replica.FailWrites = true
	_, _, err := sm.ApplyStep(context.Background(), sample.SampleID, models.StepTransport, map[string]any{})

	var writeErr *store.WriteError
	require.ErrorAs(t, err, &writeErr)

	// Step did not progress; the retry after recovery must succeed
	replica.FailWrites = false
	updated, _, err := sm.ApplyStep(context.Background(), sample.SampleID, models.StepTransport, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, models.StepTransport, updated.CurrentStep)
}

func TestConcurrentApplyStepSameStep(t *testing.T) {
	sm, replica := newTestMachine(t, mock.NewLedger(nil))
	sample := mustCollect(t, sm)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = sm.ApplyStep(context.Background(), sample.SampleID, models.StepTransport, map[string]any{"worker": i})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var oooErr *OutOfOrderStepError
		assert.True(t, errors.As(err, &oooErr), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)

	stored, err := replica.GetSample(context.Background(), sample.SampleID)
	require.NoError(t, err)
	assert.Equal(t, models.StepTransport, stored.CurrentStep)
	assert.Len(t, stored.Timeline, 2)
}

// capturingProducer records published anchor requests for assertions
type capturingProducer struct {
	mu       sync.Mutex
	messages []*models.AnchorMessage
}

func (p *capturingProducer) Publish(ctx context.Context, msg *models.AnchorMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func TestAsyncModePublishesAnchorRequest(t *testing.T) {
	sm, replica := newTestMachine(t, mock.NewLedger(nil))
	queue := &capturingProducer{}
	sm.EnableAsyncAnchoring(queue)

	sample := mustCollect(t, sm)
	_, _, err := sm.ApplyStep(context.Background(), sample.SampleID, models.StepTransport, map[string]any{})
	require.NoError(t, err)

	// No synchronous anchor: replica entries are unverified until the
	// anchor engine patches them
	stored, err := replica.GetSample(context.Background(), sample.SampleID)
	require.NoError(t, err)
	assert.False(t, stored.Timeline[0].Verified)
	assert.False(t, stored.Timeline[1].Verified)

	require.Len(t, queue.messages, 2)
	assert.Equal(t, sample.SampleID, queue.messages[1].SampleID)
	assert.Equal(t, models.StepTransport, queue.messages[1].Step)
	assert.Equal(t, stored.Timeline[1].Hash, queue.messages[1].Hash)
}
