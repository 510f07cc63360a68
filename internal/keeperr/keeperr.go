// Package keeperr defines the keeper's error taxonomy: one umbrella type
// carrying a Kind so callers can branch on category without parsing
// strings, grounded on the teacher's internal/application/worker/errors.go
// retry-classification pattern and generalized to the full kind list
// spec.md §7 enumerates.
package keeperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error for logging, metrics, and retry decisions.
type Kind string

const (
	KindConfig              Kind = "config"
	KindDatabase             Kind = "database"
	KindRPC                  Kind = "rpc"
	KindChainClient          Kind = "chain-client"
	KindSerialization        Kind = "serialization"
	KindIO                   Kind = "io"
	KindHTTP                 Kind = "http"
	KindWebSocket            Kind = "websocket"
	KindMonitoring           Kind = "monitoring"
	KindExecution            Kind = "execution"
	KindEvaluation           Kind = "evaluation"
	KindInvalidJob           Kind = "invalid-job"
	KindInsufficientBalance  Kind = "insufficient-balance"
	KindTransaction          Kind = "transaction"
	KindNotRegistered        Kind = "not-registered"
	KindAlreadyRegistered    Kind = "already-registered"
	KindInvalidTrigger       Kind = "invalid-trigger"
	KindRateLimit            Kind = "rate-limit"
	KindInternal             Kind = "internal"
)

// Error is the keeper's error umbrella. It always carries a Kind and
// usually wraps an underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error of the given kind around an existing error. If err
// is nil, Wrap returns nil so call sites can use it unconditionally:
//
//	return keeperr.Wrap(keeperr.KindDatabase, "upsert job", err)
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and
// KindInternal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// RetryableError marks an error as transient. The RPC Manager's own
// retry loop does not need this — it retries everything up to its
// attempt budget — but it tags the error it ultimately gives up on so a
// caller further up the stack (e.g. a status report, or a future
// Executor refinement that wants to fail fast on non-transient errors)
// can tell "every endpoint was tried and failed" apart from a
// synchronous validation error.
type RetryableError struct {
	Err error
}

func (e RetryableError) Error() string { return e.Err.Error() }
func (e RetryableError) Unwrap() error { return e.Err }

// Transient wraps err to mark it retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return RetryableError{Err: err}
}

// IsRetryable reports whether err (or something it wraps) was marked
// transient via Transient.
func IsRetryable(err error) bool {
	var retryable RetryableError
	return errors.As(err, &retryable)
}
