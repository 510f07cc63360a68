package executor_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solcron/keeper/internal/chainclient"
	"github.com/solcron/keeper/internal/domain"
	"github.com/solcron/keeper/internal/executor"
	"github.com/solcron/keeper/internal/keypair"
)

// fakeSubmitter is a minimal executor.ChainSubmitter driven by fields,
// in the style of the teacher's mock collaborators.
type fakeSubmitter struct {
	blockhash  [32]byte
	simResult  *chainclient.SimulationResult
	simErr     error
	sendResult string
	sendErr    error
	sendCalls  int
}

func (f *fakeSubmitter) LatestBlockhash(ctx context.Context) ([32]byte, error) {
	return f.blockhash, nil
}

func (f *fakeSubmitter) SimulateTransaction(ctx context.Context, tx *chainclient.Transaction) (*chainclient.SimulationResult, error) {
	return f.simResult, f.simErr
}

func (f *fakeSubmitter) SendAndConfirmTransaction(ctx context.Context, tx *chainclient.Transaction) (string, error) {
	f.sendCalls++
	return f.sendResult, f.sendErr
}

type fakeStore struct {
	recorded    chan *domain.ExecutionRecord
	statsCalled chan bool
}

func (f *fakeStore) RecordExecution(ctx context.Context, rec *domain.ExecutionRecord) error {
	f.recorded <- rec
	return nil
}

func (f *fakeStore) UpdateKeeperStats(ctx context.Context, day time.Time, success bool, feePaid int64) error {
	f.statsCalled <- success
	return nil
}

func newTestKeypair(t *testing.T) *keypair.Keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return &keypair.Keypair{Public: pub, Private: priv}
}

func validTargetProgram() string {
	var raw [32]byte
	raw[0] = 7
	return base58.Encode(raw[:])
}

func TestExecutor_SuccessfulExecutionRecordsResult(t *testing.T) {
	kp := newTestKeypair(t)
	submitter := &fakeSubmitter{sendResult: "sig-123"}
	store := &fakeStore{recorded: make(chan *domain.ExecutionRecord, 1), statsCalled: make(chan bool, 1)}

	in := make(chan domain.ExecutionRequest, 1)
	exec := executor.New(submitter, store, chainclient.ZeroRegistryReader{}, kp, 1, time.Millisecond, false, in)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = exec.Start(ctx) }()

	in <- domain.ExecutionRequest{
		Job:      domain.Job{JobID: 1, TargetProgram: validTargetProgram()},
		Priority: domain.PriorityHigh,
	}

	select {
	case rec := <-store.recorded:
		assert.True(t, rec.Success)
		require.NotNil(t, rec.Signature)
		assert.Equal(t, "sig-123", *rec.Signature)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for execution to be recorded")
	}

	assert.NoError(t, exec.Stop())
}

func TestExecutor_SimulationFailureSkipsSubmit(t *testing.T) {
	kp := newTestKeypair(t)
	submitter := &fakeSubmitter{
		simResult:  &chainclient.SimulationResult{Err: errors.New("insufficient funds")},
		sendResult: "should-not-be-used",
	}
	store := &fakeStore{recorded: make(chan *domain.ExecutionRecord, 1), statsCalled: make(chan bool, 1)}

	in := make(chan domain.ExecutionRequest, 1)
	exec := executor.New(submitter, store, chainclient.ZeroRegistryReader{}, kp, 1, time.Millisecond, true, in)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = exec.Start(ctx) }()

	in <- domain.ExecutionRequest{Job: domain.Job{JobID: 2, TargetProgram: validTargetProgram()}, Priority: domain.PriorityNormal}

	select {
	case rec := <-store.recorded:
		assert.False(t, rec.Success, "expected simulation failure to block execution")
		assert.Equal(t, 0, submitter.sendCalls, "expected SendAndConfirmTransaction not to be called")
		assert.NotNil(t, rec.Error)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for execution to be recorded")
	}

	_ = exec.Stop()
}

func TestExecutor_RetriesSendThenRecordsFailure(t *testing.T) {
	kp := newTestKeypair(t)
	submitter := &fakeSubmitter{sendErr: errors.New("temporarily unavailable")}
	store := &fakeStore{recorded: make(chan *domain.ExecutionRecord, 1), statsCalled: make(chan bool, 1)}

	in := make(chan domain.ExecutionRequest, 1)
	exec := executor.New(submitter, store, chainclient.ZeroRegistryReader{}, kp, 3, time.Millisecond, false, in)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = exec.Start(ctx) }()

	in <- domain.ExecutionRequest{Job: domain.Job{JobID: 3, TargetProgram: validTargetProgram()}, Priority: domain.PriorityLow}

	select {
	case rec := <-store.recorded:
		assert.False(t, rec.Success, "expected execution to fail after exhausting retries")
		assert.Equal(t, 3, submitter.sendCalls)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for execution to be recorded")
	}

	_ = exec.Stop()
}

func TestExecutor_QueueStatsBeforeStart(t *testing.T) {
	kp := newTestKeypair(t)
	submitter := &fakeSubmitter{}
	store := &fakeStore{recorded: make(chan *domain.ExecutionRecord, 1), statsCalled: make(chan bool, 1)}
	in := make(chan domain.ExecutionRequest, 1)

	exec := executor.New(submitter, store, chainclient.ZeroRegistryReader{}, kp, 1, time.Millisecond, false, in)

	size, priority := exec.QueueStats()
	assert.Equal(t, 0, size)
	assert.Equal(t, domain.PriorityLow, priority)

	assert.Equal(t, 0, exec.ClearQueue())
}
