package domain

import "errors"

// Sentinel errors returned by domain-level validation. Storage and
// execution errors have their own richer taxonomy in internal/keeperr;
// these are for constructing/validating in-memory domain values.
var (
	ErrUnknownTriggerType = errors.New("unknown trigger type")
	ErrNegativeBalance    = errors.New("balance must be non-negative")
	ErrJobIDRequired      = errors.New("job id is required")
	ErrInstructionTooLong = errors.New("target instruction exceeds 50 characters")
	ErrLastCheckedBeforeExecuted = errors.New("last_checked precedes last_executed")
)
