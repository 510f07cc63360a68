package domain

import "time"

// Job is the durable record of one registered automation contract.
// Rows are never invented by the worker: they arrive via an external
// refresh process that calls Store.UpsertJob keyed on JobID, and are
// mutated locally only by UpdateJobChecked and by that same refresh.
type Job struct {
	JobID              uint64
	Owner              string
	TargetProgram      string
	TargetInstruction  string
	TriggerType        TriggerType
	TriggerParams      TriggerParams
	Balance            int64
	MinBalance         int64
	GasLimit           int64
	IsActive           bool
	LastChecked        *time.Time
	LastExecuted       *time.Time
	ExecutionCount     uint64
	FailedCount        uint64
	CachedData         []byte
}

// Validate checks the invariants spec.md §3 places on a Job record:
// non-negative balance and last_checked never preceding last_executed.
func (j Job) Validate() error {
	if j.Balance < 0 {
		return ErrNegativeBalance
	}
	if j.JobID == 0 {
		return ErrJobIDRequired
	}
	if len(j.TargetInstruction) > 50 {
		return ErrInstructionTooLong
	}
	if !j.TriggerType.Valid() {
		return ErrUnknownTriggerType
	}
	if j.LastChecked != nil && j.LastExecuted != nil && j.LastChecked.Before(*j.LastExecuted) {
		return ErrLastCheckedBeforeExecuted
	}
	return nil
}

// ExecutionRecord is one append-only log entry for an execution attempt.
// Records are never updated once inserted.
type ExecutionRecord struct {
	ID             int64
	JobID          uint64
	KeeperAddress  string
	Timestamp      time.Time
	Success        bool
	Signature      *string
	Error          *string
	GasUsed        *int64
	FeePaid        *int64
}

// KeeperDailyStats is the additive daily aggregate of a keeper's
// execution outcomes, keyed by calendar date (UTC).
type KeeperDailyStats struct {
	Date                 time.Time
	SuccessfulExecutions int64
	FailedExecutions     int64
	TotalFeesEarned      int64
}

// ExecutionPriority ranks in-flight execution requests. Higher values
// sort first out of the executor's priority queue.
type ExecutionPriority int

const (
	PriorityLow ExecutionPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p ExecutionPriority) String() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityNormal:
		return "Normal"
	case PriorityHigh:
		return "High"
	case PriorityCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// ExecutionRequest is the in-flight message produced by the Monitor for
// every job whose evaluator fired. It is owned by whoever currently
// holds it: the Monitor until it is sent, the Executor's queue
// afterward.
type ExecutionRequest struct {
	Job      Job
	Reason   string
	Priority ExecutionPriority
	QueuedAt time.Time
	// RequestID correlates one firing across the Monitor's enqueue log
	// line and the Executor's queue/execute/submit log lines, for tracing
	// a single execution end to end across both components' independent
	// log streams. It is not stored in the ExecutionRecord.
	RequestID string
}
