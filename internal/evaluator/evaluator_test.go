package evaluator_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solcron/keeper/internal/chainclient"
	"github.com/solcron/keeper/internal/domain"
	"github.com/solcron/keeper/internal/evaluator"
)

func baseJob() domain.Job {
	return domain.Job{
		JobID:       1,
		IsActive:    true,
		Balance:     10,
		MinBalance:  1,
		TriggerType: domain.TriggerTime,
	}
}

func ptrInt64(v int64) *int64 { return &v }

func TestEvaluate_TimeTrigger_FirstFire(t *testing.T) {
	job := baseJob()
	job.TriggerParams.Interval = ptrInt64(60)

	now := time.Now()
	result, err := evaluator.New(nil).Evaluate(context.Background(), job, now)
	require.NoError(t, err)
	assert.True(t, result.ShouldExecute)
	assert.Equal(t, "Time interval elapsed", result.Reason)
	assert.Nil(t, result.NextCheckTime)
}

func TestEvaluate_TimeTrigger_NotYet(t *testing.T) {
	job := baseJob()
	job.TriggerParams.Interval = ptrInt64(60)
	now := time.Now()
	lastExecuted := now.Add(-30 * time.Second)
	job.LastExecuted = &lastExecuted

	result, err := evaluator.New(nil).Evaluate(context.Background(), job, now)
	require.NoError(t, err)
	assert.False(t, result.ShouldExecute)
	assert.Equal(t, "Waiting for interval (60s)", result.Reason)

	want := lastExecuted.Add(60 * time.Second)
	require.NotNil(t, result.NextCheckTime)
	assert.True(t, result.NextCheckTime.Equal(want))
}

func TestEvaluate_BalanceGate(t *testing.T) {
	job := baseJob()
	job.Balance = 5
	job.MinBalance = 5

	result, err := evaluator.New(nil).Evaluate(context.Background(), job, time.Now())
	require.NoError(t, err)
	assert.False(t, result.ShouldExecute)
	assert.Equal(t, "Insufficient balance", result.Reason)
}

func TestEvaluate_UnknownTriggerType(t *testing.T) {
	job := baseJob()
	job.TriggerType = "xyz"

	result, err := evaluator.New(nil).Evaluate(context.Background(), job, time.Now())
	require.NoError(t, err)
	assert.False(t, result.ShouldExecute)
	assert.Equal(t, "Unknown trigger type: xyz", result.Reason)
}

func TestEvaluate_ConditionalBalanceCondition(t *testing.T) {
	job := baseJob()
	job.TriggerType = domain.TriggerConditional
	condition := "balance > 5"
	job.TriggerParams.Condition = &condition

	result, err := evaluator.New(nil).Evaluate(context.Background(), job, time.Now())
	require.NoError(t, err)
	assert.True(t, result.ShouldExecute)
}

func TestEvaluate_ConditionalUnknownConditionDefaultsFalse(t *testing.T) {
	job := baseJob()
	job.TriggerType = domain.TriggerConditional
	condition := "something_weird"
	job.TriggerParams.Condition = &condition

	result, err := evaluator.New(nil).Evaluate(context.Background(), job, time.Now())
	require.NoError(t, err)
	assert.False(t, result.ShouldExecute)
	assert.Equal(t, "unknown condition", result.Reason)
}

// fakeAccountChecker lets the account_exists condition be tested without
// a live RPC manager.
type fakeAccountChecker struct {
	account *chainclient.Account
	err     error
}

func (f *fakeAccountChecker) GetAccountData(ctx context.Context, pubkey [32]byte) (*chainclient.Account, error) {
	return f.account, f.err
}

func TestEvaluate_ConditionalAccountExists(t *testing.T) {
	job := baseJob()
	job.TriggerType = domain.TriggerConditional
	condition := "account_exists:11111111111111111111111111111111"
	job.TriggerParams.Condition = &condition

	checker := &fakeAccountChecker{account: &chainclient.Account{Lamports: 1}}
	result, err := evaluator.New(checker).Evaluate(context.Background(), job, time.Now())
	require.NoError(t, err)
	assert.True(t, result.ShouldExecute)
}

func TestEvaluate_HybridConjunction(t *testing.T) {
	job := baseJob()
	job.TriggerType = domain.TriggerHybrid
	job.TriggerParams.TimeInterval = ptrInt64(60)
	now := time.Now()
	lastExecuted := now.Add(-30 * time.Second)
	job.LastExecuted = &lastExecuted

	result, err := evaluator.New(nil).Evaluate(context.Background(), job, now)
	require.NoError(t, err)
	assert.False(t, result.ShouldExecute, "expected hybrid to block on unmet time sub-check")
}

func TestEvaluate_MissingRequiredParamIsError(t *testing.T) {
	job := baseJob()

	_, err := evaluator.New(nil).Evaluate(context.Background(), job, time.Now())
	assert.Error(t, err)
}
