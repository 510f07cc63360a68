package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solcron/keeper/internal/domain"
)

func TestExecutionQueue_PriorityThenFIFO(t *testing.T) {
	q := newExecutionQueue()
	base := time.Now()

	reqLow := domain.ExecutionRequest{Job: domain.Job{JobID: 1}, Priority: domain.PriorityLow}
	reqNormal1 := domain.ExecutionRequest{Job: domain.Job{JobID: 2}, Priority: domain.PriorityNormal}
	reqHigh := domain.ExecutionRequest{Job: domain.Job{JobID: 3}, Priority: domain.PriorityHigh}
	reqNormal2 := domain.ExecutionRequest{Job: domain.Job{JobID: 4}, Priority: domain.PriorityNormal}

	q.push(reqLow, base.Add(1*time.Second))
	q.push(reqNormal1, base.Add(2*time.Second))
	q.push(reqHigh, base.Add(3*time.Second))
	q.push(reqNormal2, base.Add(4*time.Second))

	wantOrder := []uint64{3, 2, 4, 1}
	for _, wantJobID := range wantOrder {
		req, ok := q.pop()
		require.True(t, ok, "pop: queue empty early, wanted job %d", wantJobID)
		assert.Equal(t, wantJobID, req.Job.JobID)
	}

	_, ok := q.pop()
	assert.False(t, ok, "expected queue to be empty")
}

func TestExecutionQueue_PeekPriorityEmptyIsLow(t *testing.T) {
	q := newExecutionQueue()
	assert.Equal(t, domain.PriorityLow, q.peekPriority())
}

func TestExecutionQueue_PeekPriorityReflectsNext(t *testing.T) {
	q := newExecutionQueue()
	now := time.Now()
	q.push(domain.ExecutionRequest{Priority: domain.PriorityLow}, now)
	q.push(domain.ExecutionRequest{Priority: domain.PriorityCritical}, now.Add(time.Second))

	assert.Equal(t, domain.PriorityCritical, q.peekPriority())
}
