package monitor_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solcron/keeper/internal/domain"
	"github.com/solcron/keeper/internal/evaluator"
	"github.com/solcron/keeper/internal/monitor"
)

// fakeStore is a minimal in-memory monitor.Store for unit testing, in
// the style of the teacher's mock storage types.
type fakeStore struct {
	mu      sync.Mutex
	active  []*domain.Job
	checked []uint64
}

func (f *fakeStore) GetActiveJobs(ctx context.Context) ([]*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Job(nil), f.active...), nil
}

func (f *fakeStore) GetEligibleJobs(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var eligible []*domain.Job
	for _, j := range f.active {
		if j.IsActive && j.Balance > j.MinBalance {
			eligible = append(eligible, j)
		}
	}
	return eligible, nil
}

func (f *fakeStore) UpdateJobChecked(ctx context.Context, jobID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checked = append(f.checked, jobID)
	return nil
}

func ptrInt64(v int64) *int64 { return &v }

func TestMonitor_FirstFireEnqueuesHighPriority(t *testing.T) {
	store := &fakeStore{active: []*domain.Job{{
		JobID:       1,
		IsActive:    true,
		Balance:     10,
		MinBalance:  1,
		TriggerType: domain.TriggerTime,
		TriggerParams: domain.TriggerParams{
			Interval: ptrInt64(60),
		},
	}}}

	out := make(chan domain.ExecutionRequest, 1)
	m := monitor.New(store, evaluator.New(nil), out, time.Hour, 4, time.Minute)

	ctx := context.Background()
	require.NoError(t, m.RefreshCache(ctx))
	require.NoError(t, m.ForceJobCheck(ctx, 1))

	select {
	case req := <-out:
		assert.Equal(t, domain.PriorityHigh, req.Priority)
	default:
		t.Fatal("expected an execution request to be queued")
	}
}

func TestMonitor_RefreshCachePopulatesStats(t *testing.T) {
	store := &fakeStore{active: []*domain.Job{{
		JobID:       1,
		IsActive:    true,
		Balance:     10,
		MinBalance:  1,
		TriggerType: domain.TriggerTime,
	}}}

	out := make(chan domain.ExecutionRequest, 4)
	m := monitor.New(store, evaluator.New(nil), out, time.Hour, 4, time.Minute)

	require.NoError(t, m.RefreshCache(context.Background()))

	total, active, _ := m.CacheStats()
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, active)
}

func TestMonitor_ForceJobCheckUnknownJobErrors(t *testing.T) {
	store := &fakeStore{}
	out := make(chan domain.ExecutionRequest, 1)
	m := monitor.New(store, evaluator.New(nil), out, time.Hour, 4, time.Minute)

	assert.Error(t, m.ForceJobCheck(context.Background(), 999))
}
