package repository_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solcron/keeper/internal/domain"
	sqlstorage "github.com/solcron/keeper/internal/storage/sql"
	"github.com/solcron/keeper/internal/storage/sql/repository"
)

func openTestStore(t *testing.T) *repository.Store {
	t.Helper()
	pgURL := os.Getenv("TEST_POSTGRES_URL")
	if pgURL == "" {
		t.Skip("TEST_POSTGRES_URL not set, skipping PostgreSQL tests")
	}

	ctx := context.Background()
	store, err := sqlstorage.NewPostgresStore(ctx, pgURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.DB().Exec("TRUNCATE TABLE executions, keeper_stats, jobs CASCADE")
		store.Close()
	})

	return store
}

func TestUpsertAndGetEligibleJobs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := now.Add(-time.Minute)

	job := &domain.Job{
		JobID:             1,
		Owner:             "owner-1",
		TargetProgram:     "prog",
		TargetInstruction: "execute",
		TriggerType:       domain.TriggerTime,
		TriggerParams:     domain.TriggerParams{Interval: ptrInt64(60)},
		Balance:           1000,
		MinBalance:        100,
		GasLimit:          200000,
		IsActive:          true,
		LastChecked:       &stale,
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	eligible, err := store.GetEligibleJobs(ctx, now)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, job.JobID, eligible[0].JobID)
	assert.Equal(t, domain.TriggerTime, eligible[0].TriggerType)
}

func TestGetEligibleJobsExcludesRecentlyChecked(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	recent := now.Add(-time.Second)

	job := &domain.Job{
		JobID:             2,
		Owner:             "owner-2",
		TargetProgram:     "prog",
		TargetInstruction: "execute",
		TriggerType:       domain.TriggerTime,
		TriggerParams:     domain.TriggerParams{Interval: ptrInt64(60)},
		Balance:           1000,
		MinBalance:        100,
		IsActive:          true,
		LastChecked:       &recent,
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	eligible, err := store.GetEligibleJobs(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestGetEligibleJobsOrdersNeverExecutedFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := now.Add(-time.Minute)
	executedLong := now.Add(-48 * time.Hour)

	executedJob := &domain.Job{
		JobID:             10,
		Owner:             "owner-10",
		TargetProgram:     "prog",
		TargetInstruction: "execute",
		TriggerType:       domain.TriggerTime,
		TriggerParams:     domain.TriggerParams{Interval: ptrInt64(60)},
		Balance:           1000,
		MinBalance:        100,
		IsActive:          true,
		LastChecked:       &stale,
		LastExecuted:      &executedLong,
	}
	neverExecutedJob := &domain.Job{
		JobID:             11,
		Owner:             "owner-11",
		TargetProgram:     "prog",
		TargetInstruction: "execute",
		TriggerType:       domain.TriggerTime,
		TriggerParams:     domain.TriggerParams{Interval: ptrInt64(60)},
		Balance:           1000,
		MinBalance:        100,
		IsActive:          true,
		LastChecked:       &stale,
	}

	// Insert the already-executed job first so a buggy ORDER BY keyed on
	// last_checked (which is identical for both rows here) would return
	// rows in insertion order rather than never-executed-first.
	require.NoError(t, store.UpsertJob(ctx, executedJob))
	require.NoError(t, store.UpsertJob(ctx, neverExecutedJob))

	eligible, err := store.GetEligibleJobs(ctx, now)
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	assert.Equal(t, neverExecutedJob.JobID, eligible[0].JobID, "never-executed job must sort first")
	assert.Equal(t, executedJob.JobID, eligible[1].JobID)
}

func TestRecordExecutionAndHistory(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	job := &domain.Job{
		JobID:             3,
		Owner:             "owner-3",
		TargetProgram:     "prog",
		TargetInstruction: "execute",
		TriggerType:       domain.TriggerTime,
		TriggerParams:     domain.TriggerParams{Interval: ptrInt64(60)},
		Balance:           1000,
		MinBalance:        100,
		IsActive:          true,
	}
	require.NoError(t, store.UpsertJob(ctx, job))

	sig := "sig-1"
	require.NoError(t, store.RecordExecution(ctx, &domain.ExecutionRecord{
		JobID:         job.JobID,
		KeeperAddress: "keeper-1",
		Timestamp:     time.Now().UTC(),
		Success:       true,
		Signature:     &sig,
	}))

	history, err := store.GetExecutionHistory(ctx, job.JobID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "keeper-1", history[0].KeeperAddress)
	assert.True(t, history[0].Success)
}

func TestUpdateKeeperStatsIsAdditive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	day := time.Now().UTC()

	require.NoError(t, store.UpdateKeeperStats(ctx, day, true, 100))
	require.NoError(t, store.UpdateKeeperStats(ctx, day, false, 50))

	stats, err := store.GetKeeperStats(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SuccessfulExecutions)
	assert.Equal(t, int64(1), stats.FailedExecutions)
	assert.Equal(t, int64(150), stats.TotalFeesEarned)
}

func ptrInt64(v int64) *int64 { return &v }
