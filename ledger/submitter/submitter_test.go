package submitter

import (
	"context"
	"log"
	"os"
	"testing"

	"sampletrace/blockchain/client/mock"
	"sampletrace/blockchain/types"
	"sampletrace/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubmitter(t *testing.T, ledger *mock.Ledger) *TransactionSubmitter {
	t.Helper()
	cfg := &config.BlockchainConfig{}
	cfg.SetDefaults()
	logger := log.New(os.Stdout, "[TEST] ", log.LstdFlags)
	sub, err := NewTransactionSubmitter(ledger, cfg, logger)
	require.NoError(t, err)
	return sub
}

func TestSubmitRecordsStep(t *testing.T) {
	ledger := mock.NewLedger(nil)
	sub := newTestSubmitter(t, ledger)

	outcome := sub.Submit(context.Background(), "SAMPLE-1", 1, "hash-1")

	assert.True(t, outcome.Verified())
	assert.True(t, outcome.HashRecorded)
	assert.Equal(t, types.ReasonNone, outcome.FailureReason)
	assert.NotEmpty(t, outcome.TransactionID)

	matches, err := ledger.VerifyStep(context.Background(), "SAMPLE-1", 1, "hash-1")
	require.NoError(t, err)
	assert.True(t, matches)
}

func TestSubmitEstimationFailureStillRecords(t *testing.T) {
	ledger := mock.NewLedger(nil)
	ledger.FailEstimation = true
	sub := newTestSubmitter(t, ledger)

	outcome := sub.Submit(context.Background(), "SAMPLE-1", 1, "hash-1")

	assert.True(t, outcome.HashRecorded)
	assert.True(t, outcome.Verified())
}

func TestSubmitDisconnectedSigner(t *testing.T) {
	ledger := mock.NewLedger(nil)
	ledger.Disconnected = true
	sub := newTestSubmitter(t, ledger)

	outcome := sub.Submit(context.Background(), "SAMPLE-1", 1, "hash-1")

	assert.False(t, outcome.Verified())
	assert.False(t, outcome.HashRecorded)
	assert.Equal(t, types.ReasonSignerUnavailable, outcome.FailureReason)
}

func TestSubmitFallbackTransfer(t *testing.T) {
	ledger := mock.NewLedger(nil)
	ledger.FailRecordStep = true
	sub := newTestSubmitter(t, ledger)

	outcome := sub.Submit(context.Background(), "SAMPLE-1", 1, "hash-1")

	assert.True(t, outcome.Verified())
	assert.False(t, outcome.HashRecorded)
	assert.Equal(t, types.ReasonFallbackUsed, outcome.FailureReason)
}

func TestSubmitTotalFailure(t *testing.T) {
	ledger := mock.NewLedger(nil)
	ledger.FailRecordStep = true
	ledger.FailProofTransfer = true
	sub := newTestSubmitter(t, ledger)

	outcome := sub.Submit(context.Background(), "SAMPLE-1", 1, "hash-1")

	assert.False(t, outcome.Verified())
	assert.False(t, outcome.HashRecorded)
	assert.Equal(t, types.ReasonSubmissionFailed, outcome.FailureReason)
}

func TestSubmitLostRaceWithMatchingHash(t *testing.T) {
	ledger := mock.NewLedger(nil)
	sub := newTestSubmitter(t, ledger)

	_, err := ledger.RecordStep(context.Background(), "SAMPLE-1", 1, "hash-1", 0)
	require.NoError(t, err)

	outcome := sub.Submit(context.Background(), "SAMPLE-1", 1, "hash-1")

	assert.True(t, outcome.HashRecorded)
	assert.False(t, outcome.Verified())
	assert.Equal(t, types.ReasonStepAlreadyRecorded, outcome.FailureReason)
}

func TestSubmitLostRaceWithDivergentHash(t *testing.T) {
	ledger := mock.NewLedger(nil)
	sub := newTestSubmitter(t, ledger)

	_, err := ledger.RecordStep(context.Background(), "SAMPLE-1", 1, "other-hash", 0)
	require.NoError(t, err)

	outcome := sub.Submit(context.Background(), "SAMPLE-1", 1, "hash-1")

	assert.False(t, outcome.HashRecorded)
	assert.Equal(t, types.ReasonStepAlreadyRecorded, outcome.FailureReason)
}

func TestSubmitOutOfOrderRevertFallsBack(t *testing.T) {
	ledger := mock.NewLedger(nil)
	sub := newTestSubmitter(t, ledger)

	// Step 3 with nothing recorded yet reverts on both contract attempts
	outcome := sub.Submit(context.Background(), "SAMPLE-1", 3, "hash-3")

	assert.True(t, outcome.Verified())
	assert.False(t, outcome.HashRecorded)
	assert.Equal(t, types.ReasonFallbackUsed, outcome.FailureReason)
}

func TestBumpGas(t *testing.T) {
	ledger := mock.NewLedger(nil)
	sub := newTestSubmitter(t, ledger)

	assert.Equal(t, uint64(150000), sub.bumpGas(100000))
	// Zero means backend policy: the bump starts from the default limit
	assert.Equal(t, uint64(450000), sub.bumpGas(0))
}
