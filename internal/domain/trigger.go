package domain

import "fmt"

// TriggerType identifies which predicate governs whether a job is due
// for execution. The string values are wire-compatible with the
// on-chain-assigned job records the worker never originates itself.
type TriggerType string

const (
	TriggerTime        TriggerType = "time"
	TriggerConditional TriggerType = "conditional"
	TriggerLog         TriggerType = "log"
	TriggerHybrid      TriggerType = "hybrid"
)

// NewTriggerType validates a raw trigger_type string.
func NewTriggerType(s string) (TriggerType, error) {
	switch t := TriggerType(s); t {
	case TriggerTime, TriggerConditional, TriggerLog, TriggerHybrid:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownTriggerType, s)
	}
}

// Valid reports whether t is one of the recognized trigger types.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerTime, TriggerConditional, TriggerLog, TriggerHybrid:
		return true
	default:
		return false
	}
}

// TriggerParams is the decoded shape of a job's trigger_params JSONB blob.
// Every field is optional; which ones are required depends on the job's
// TriggerType and is enforced by the evaluator, not here.
type TriggerParams struct {
	// Interval is the time-trigger period in seconds.
	Interval *int64 `json:"interval,omitempty"`
	// Condition is the conditional-trigger predicate string.
	Condition *string `json:"condition,omitempty"`
	// EventSignature names the on-chain event a log trigger watches for.
	EventSignature *string `json:"event_signature,omitempty"`
	// TimeInterval is the time sub-check used by hybrid triggers.
	TimeInterval *int64 `json:"time_interval,omitempty"`
}
