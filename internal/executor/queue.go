package executor

import (
	"container/heap"
	"time"

	"github.com/solcron/keeper/internal/domain"
)

// prioritizedRequest is one queued execution request, timestamped at
// enqueue time so the heap can break priority ties in FIFO order,
// mirroring executor.rs's PrioritizedExecution ordering (priority
// descending, then queued_at ascending).
type prioritizedRequest struct {
	request domain.ExecutionRequest
	queued  time.Time
	index   int
}

// priorityQueue is a max-priority heap with FIFO tie-break, replacing
// the original's BinaryHeap<PrioritizedExecution>. The heap does no
// locking of its own; the Executor guards every access with its queueMu.
type priorityQueue []*prioritizedRequest

func (q priorityQueue) Len() int { return len(q) }

func (q priorityQueue) Less(i, j int) bool {
	if q[i].request.Priority != q[j].request.Priority {
		return q[i].request.Priority > q[j].request.Priority
	}
	return q[i].queued.Before(q[j].queued)
}

func (q priorityQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *priorityQueue) Push(x any) {
	item := x.(*prioritizedRequest)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// executionQueue wraps priorityQueue behind heap.Interface bookkeeping,
// giving the Executor a push/pop API in terms of domain.ExecutionRequest
// rather than the heap internals.
type executionQueue struct {
	items priorityQueue
}

func newExecutionQueue() *executionQueue {
	q := &executionQueue{}
	heap.Init(&q.items)
	return q
}

func (q *executionQueue) push(req domain.ExecutionRequest, now time.Time) {
	heap.Push(&q.items, &prioritizedRequest{request: req, queued: now})
}

// pop removes and returns the highest-priority, oldest-queued request.
// The second return is false if the queue is empty.
func (q *executionQueue) pop() (domain.ExecutionRequest, bool) {
	if q.items.Len() == 0 {
		return domain.ExecutionRequest{}, false
	}
	item := heap.Pop(&q.items).(*prioritizedRequest)
	return item.request, true
}

func (q *executionQueue) len() int {
	return q.items.Len()
}

// peekPriority returns the priority of the next item to be popped,
// defaulting to PriorityLow when the queue is empty (matching
// get_queue_stats's unwrap_or(ExecutionPriority::Low)).
func (q *executionQueue) peekPriority() domain.ExecutionPriority {
	if q.items.Len() == 0 {
		return domain.PriorityLow
	}
	return q.items[0].request.Priority
}
