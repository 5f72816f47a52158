// Package statemachine is the sole writer of sample custody state. It
// enforces the strictly linear Collection -> Transport -> Sequencing ->
// Analysis progression, computes the hash chain, drives the ledger
// submission and persists the replica plus the audit log.
package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"sampletrace/blockchain/types"
	"sampletrace/internal/messaging/producer"
	"sampletrace/internal/models"
	"sampletrace/ledger/hashchain"
	"sampletrace/storage/store"

	"github.com/google/uuid"
)

// ErrSampleCompleted rejects step applications against a terminal sample
var ErrSampleCompleted = errors.New("sample has completed all custody steps")

// ErrSampleExists rejects a Collect for an id that is already tracked
var ErrSampleExists = errors.New("sample already exists")

// OutOfOrderStepError reports a precondition violation: the requested step is
// not exactly one past the sample's current step. The sample is unchanged.
type OutOfOrderStepError struct {
	SampleID  string
	Current   models.StepType
	Requested models.StepType
}

func (e *OutOfOrderStepError) Error() string {
	return fmt.Sprintf("out-of-order step for sample %s: current step %d, requested %d",
		e.SampleID, e.Current, e.Requested)
}

// Submitter is the ledger-submission collaborator. Submit never fails; the
// outcome carries the degradation state instead.
type Submitter interface {
	Submit(ctx context.Context, sampleID string, step int, hash string) types.SubmitOutcome
}

// StateMachine serializes custody-step writes per sample. At most one
// ApplyStep is in flight per sample id; the ledger contract remains the
// correctness backstop for races across processes.
type StateMachine struct {
	replica        store.Store
	submitter      Submitter
	signerIdentity string
	logger         *log.Logger

	// anchorQueue, when set, switches submission to fire-and-forget: the
	// replica is written unverified and the anchor engine completes the
	// verification out of band.
	anchorQueue producer.Producer

	locks keyedMutex
}

// NewStateMachine creates a state machine in synchronous submission mode
func NewStateMachine(replica store.Store, sub Submitter, signerIdentity string, logger *log.Logger) *StateMachine {
	return &StateMachine{
		replica:        replica,
		submitter:      sub,
		signerIdentity: signerIdentity,
		logger:         logger,
	}
}

// EnableAsyncAnchoring switches the machine to fire-and-forget submission
// through the given queue. Call before serving traffic.
func (sm *StateMachine) EnableAsyncAnchoring(queue producer.Producer) {
	sm.anchorQueue = queue
}

// Collect creates a new sample at the Collection step. sampleID may be empty,
// in which case one is generated.
func (sm *StateMachine) Collect(ctx context.Context, sampleID, patientID string, payload map[string]any) (*models.Sample, *models.StepTransaction, error) {
	if sampleID == "" {
		sampleID = "SMP-" + uuid.NewString()
	}
	if patientID == "" {
		return nil, nil, errors.New("patient id is required")
	}

	unlock := sm.locks.lock(sampleID)
	defer unlock()

	if _, err := sm.replica.GetSample(ctx, sampleID); err == nil {
		return nil, nil, ErrSampleExists
	} else if !errors.Is(err, store.ErrSampleNotFound) {
		return nil, nil, err
	}

	now := time.Now().UTC()
	hash := hashchain.Compute(hashchain.Genesis, payload, now)
	outcome := sm.anchor(ctx, sampleID, models.StepCollection, hash)

	entry := sm.buildEntry(models.StepCollection, hash, payload, now, outcome)
	sample := &models.Sample{
		SampleID:       sampleID,
		PatientID:      patientID,
		Status:         models.StatusCollected,
		CurrentStep:    models.StepCollection,
		HashChain:      []string{hash},
		TransactionIDs: []string{outcome.TransactionID},
		Timeline:       []models.TimelineEntry{entry},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	stepTx := sm.buildAudit(sampleID, models.StepCollection, hash, payload, now, outcome)

	if err := sm.replica.CreateSample(ctx, sample, stepTx); err != nil {
		return nil, nil, err
	}
	sm.logger.Printf("Collected sample %s for patient %s (verified=%t)", sampleID, patientID, entry.Verified)

	sm.publishAnchorRequest(ctx, sampleID, models.StepCollection, hash, stepTx.ID, now)
	return sample, stepTx, nil
}

// ApplyStep advances a sample by exactly one custody step. Submission
// failures degrade the step to verified=false; only precondition violations
// and replica write failures fail the call.
func (sm *StateMachine) ApplyStep(ctx context.Context, sampleID string, step models.StepType, payload map[string]any) (*models.Sample, *models.StepTransaction, error) {
	if !step.Valid() {
		return nil, nil, &OutOfOrderStepError{SampleID: sampleID, Requested: step}
	}

	unlock := sm.locks.lock(sampleID)
	defer unlock()

	sample, err := sm.replica.GetSample(ctx, sampleID)
	if err != nil {
		return nil, nil, err
	}
	if sample.Completed() {
		return nil, nil, ErrSampleCompleted
	}
	if step != sample.CurrentStep+1 {
		return nil, nil, &OutOfOrderStepError{SampleID: sampleID, Current: sample.CurrentStep, Requested: step}
	}

	now := time.Now().UTC()
	hash := hashchain.Compute(sample.LastHash(), payload, now)
	outcome := sm.anchor(ctx, sampleID, step, hash)

	entry := sm.buildEntry(step, hash, payload, now, outcome)
	stepTx := sm.buildAudit(sampleID, step, hash, payload, now, outcome)

	updated, err := sm.replica.AppendStep(ctx, sampleID, entry, stepTx)
	if err != nil {
		return nil, nil, err
	}
	sm.logger.Printf("Applied step %d (%s) to sample %s (verified=%t, hash_recorded=%t)",
		step, step, sampleID, entry.Verified, entry.OnChainHashRecorded)

	sm.publishAnchorRequest(ctx, sampleID, step, hash, stepTx.ID, now)
	return updated, stepTx, nil
}

// anchor runs the synchronous submission, or skips it when the async queue
// is configured.
func (sm *StateMachine) anchor(ctx context.Context, sampleID string, step models.StepType, hash string) types.SubmitOutcome {
	if sm.anchorQueue != nil {
		return types.SubmitOutcome{}
	}
	return sm.submitter.Submit(ctx, sampleID, int(step), hash)
}

// publishAnchorRequest enqueues the step for the anchor engine in async
// mode. A publish failure leaves the step unverified; the reconciler
// surfaces it as off-chain-only drift.
func (sm *StateMachine) publishAnchorRequest(ctx context.Context, sampleID string, step models.StepType, hash, requestID string, now time.Time) {
	if sm.anchorQueue == nil {
		return
	}
	msg := &models.AnchorMessage{
		RequestID:         requestID,
		SampleID:          sampleID,
		Step:              step,
		Hash:              hash,
		EnqueuedTimestamp: strconv.FormatInt(now.Unix(), 10),
	}
	if err := sm.anchorQueue.Publish(ctx, msg); err != nil {
		sm.logger.Printf("Failed to enqueue anchor request for sample %s step %d: %v", sampleID, step, err)
	}
}

func (sm *StateMachine) buildEntry(step models.StepType, hash string, payload map[string]any, now time.Time, outcome types.SubmitOutcome) models.TimelineEntry {
	return models.TimelineEntry{
		Step:                step,
		Name:                step.String(),
		Hash:                hash,
		TransactionID:       outcome.TransactionID,
		Timestamp:           now,
		Details:             payload,
		Verified:            outcome.Verified(),
		OnChainHashRecorded: outcome.HashRecorded,
	}
}

func (sm *StateMachine) buildAudit(sampleID string, step models.StepType, hash string, payload map[string]any, now time.Time, outcome types.SubmitOutcome) *models.StepTransaction {
	return &models.StepTransaction{
		ID:             uuid.NewString(),
		StepType:       step,
		SampleID:       sampleID,
		Hash:           hash,
		TransactionID:  outcome.TransactionID,
		Timestamp:      now,
		PayloadDigest:  hashchain.PayloadDigest(payload),
		SignerIdentity: sm.signerIdentity,
		FailureReason:  string(outcome.FailureReason),
	}
}

// keyedMutex hands out one mutex per sample id. Entries are reference
// counted and removed once the last holder releases, so the map does not
// grow with the total number of samples ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*lockEntry)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &lockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
