// Package evaluator decides whether a job is due for execution,
// grounded directly on the original source's evaluator.rs. It never
// mutates a Job and never panics: every error is surfaced to the caller
// so the Monitor can log and move on.
package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/solcron/keeper/internal/chainclient"
	"github.com/solcron/keeper/internal/domain"
	"github.com/solcron/keeper/internal/keeperr"
)

// PermissiveUnknownCondition preserves the original keeper-node's
// "unknown condition" default (always true) as a named, flippable
// constant. The default below it takes the safer reading instead: an
// unrecognized condition string does not authorize a spend.
const PermissiveUnknownCondition = false

// Result is the outcome of evaluating one job against the clock (and,
// for conditional triggers, against chain state).
type Result struct {
	ShouldExecute bool
	Reason        string
	NextCheckTime *time.Time
}

// AccountChecker is the narrow slice of the RPC Manager the evaluator
// needs for account_exists conditions.
type AccountChecker interface {
	GetAccountData(ctx context.Context, pubkey [32]byte) (*chainclient.Account, error)
}

// Evaluator evaluates jobs against their trigger predicate.
type Evaluator struct {
	accounts AccountChecker
}

// New builds an Evaluator. accounts may be nil if no conditional
// trigger in the job population ever uses account_exists.
func New(accounts AccountChecker) *Evaluator {
	return &Evaluator{accounts: accounts}
}

// Evaluate checks the job's active/balance gates and, if both pass,
// dispatches on job.TriggerType. An unrecognized trigger type is not an
// error: it evaluates to should_execute=false so the Monitor can log
// and move on without treating misconfigured jobs as a system failure.
func (e *Evaluator) Evaluate(ctx context.Context, job domain.Job, now time.Time) (Result, error) {
	if !job.IsActive {
		return Result{ShouldExecute: false, Reason: "Job is not active"}, nil
	}
	if job.Balance <= job.MinBalance {
		return Result{ShouldExecute: false, Reason: "Insufficient balance"}, nil
	}

	switch job.TriggerType {
	case domain.TriggerTime:
		return e.evaluateTime(job, now)
	case domain.TriggerConditional:
		return e.evaluateConditional(ctx, job, now)
	case domain.TriggerLog:
		return e.evaluateLog(job, now)
	case domain.TriggerHybrid:
		return e.evaluateHybrid(ctx, job, now)
	default:
		slog.Warn("unknown trigger type", slog.String("trigger_type", string(job.TriggerType)))
		return Result{ShouldExecute: false, Reason: fmt.Sprintf("Unknown trigger type: %s", job.TriggerType)}, nil
	}
}

func (e *Evaluator) evaluateTime(job domain.Job, now time.Time) (Result, error) {
	if job.TriggerParams.Interval == nil {
		return Result{}, keeperr.New(keeperr.KindInvalidTrigger, "missing or invalid interval in time trigger")
	}
	interval := time.Duration(*job.TriggerParams.Interval) * time.Second

	var shouldExecute bool
	if job.LastExecuted == nil {
		shouldExecute = true
	} else {
		shouldExecute = now.Sub(*job.LastExecuted) >= interval
	}

	var nextCheck *time.Time
	if !shouldExecute {
		if job.LastExecuted != nil {
			t := job.LastExecuted.Add(interval)
			nextCheck = &t
		} else {
			t := now.Add(interval)
			nextCheck = &t
		}
	}

	reason := "Time interval elapsed"
	if !shouldExecute {
		reason = fmt.Sprintf("Waiting for interval (%ds)", *job.TriggerParams.Interval)
	}

	return Result{ShouldExecute: shouldExecute, Reason: reason, NextCheckTime: nextCheck}, nil
}

func (e *Evaluator) evaluateConditional(ctx context.Context, job domain.Job, now time.Time) (Result, error) {
	if job.TriggerParams.Condition == nil {
		return Result{}, keeperr.New(keeperr.KindInvalidTrigger, "missing condition in conditional trigger")
	}

	shouldExecute, reason, err := e.evaluateCondition(ctx, job, *job.TriggerParams.Condition)
	if err != nil {
		return Result{}, err
	}

	next := now.Add(60 * time.Second)
	return Result{ShouldExecute: shouldExecute, Reason: reason, NextCheckTime: &next}, nil
}

func (e *Evaluator) evaluateLog(job domain.Job, now time.Time) (Result, error) {
	if job.TriggerParams.EventSignature == nil {
		return Result{}, keeperr.New(keeperr.KindInvalidTrigger, "missing event_signature in log trigger")
	}

	shouldExecute := job.LastExecuted == nil || now.Sub(*job.LastExecuted) > 300*time.Second

	reason := "Waiting for event"
	if shouldExecute {
		reason = "Event condition met"
	}

	next := now.Add(30 * time.Second)
	return Result{ShouldExecute: shouldExecute, Reason: reason, NextCheckTime: &next}, nil
}

func (e *Evaluator) evaluateHybrid(ctx context.Context, job domain.Job, now time.Time) (Result, error) {
	shouldExecute := true
	var reasons []string

	if job.TriggerParams.TimeInterval != nil {
		interval := time.Duration(*job.TriggerParams.TimeInterval) * time.Second
		met := job.LastExecuted == nil || now.Sub(*job.LastExecuted) >= interval
		if !met {
			shouldExecute = false
			reasons = append(reasons, fmt.Sprintf("Time interval not met (%ds)", *job.TriggerParams.TimeInterval))
		} else {
			reasons = append(reasons, "Time interval met")
		}
	}

	if job.TriggerParams.Condition != nil {
		conditionMet, conditionReason, err := e.evaluateCondition(ctx, job, *job.TriggerParams.Condition)
		if err != nil {
			return Result{}, err
		}
		if !conditionMet {
			shouldExecute = false
		}
		reasons = append(reasons, conditionReason)
	}

	if job.TriggerParams.EventSignature != nil {
		met := job.LastExecuted == nil || now.Sub(*job.LastExecuted) > 60*time.Second
		if !met {
			shouldExecute = false
			reasons = append(reasons, "Event condition not met")
		} else {
			reasons = append(reasons, "Event condition met")
		}
	}

	next := now.Add(30 * time.Second)
	return Result{ShouldExecute: shouldExecute, Reason: strings.Join(reasons, "; "), NextCheckTime: &next}, nil
}

// evaluateCondition implements the conditional trigger's small grammar.
func (e *Evaluator) evaluateCondition(ctx context.Context, job domain.Job, condition string) (bool, string, error) {
	switch {
	case strings.HasPrefix(condition, "balance >"):
		return e.evaluateBalanceCondition(job, condition)
	case strings.HasPrefix(condition, "account_exists:"):
		return e.evaluateAccountExistsCondition(ctx, condition)
	case strings.Contains(condition, "token_balance >"):
		return true, "Token condition evaluation placeholder", nil
	default:
		slog.Warn("unknown condition format", slog.String("condition", condition))
		if PermissiveUnknownCondition {
			return true, "unknown condition - defaulting to true", nil
		}
		return false, "unknown condition", nil
	}
}

func (e *Evaluator) evaluateBalanceCondition(job domain.Job, condition string) (bool, string, error) {
	parts := strings.Fields(condition)
	if len(parts) != 3 {
		return false, "Invalid balance condition format", nil
	}

	threshold, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return false, "", keeperr.Wrap(keeperr.KindInvalidTrigger, "invalid balance threshold", err)
	}

	result := uint64(job.Balance) > threshold
	return result, fmt.Sprintf("Balance %d %s %d", job.Balance, parts[1], threshold), nil
}

func (e *Evaluator) evaluateAccountExistsCondition(ctx context.Context, condition string) (bool, string, error) {
	pubkeyStr := strings.TrimPrefix(condition, "account_exists:")

	decoded, err := base58.Decode(pubkeyStr)
	if err != nil || len(decoded) != 32 {
		return false, "", keeperr.New(keeperr.KindInvalidTrigger, "invalid public key")
	}
	var pubkey [32]byte
	copy(pubkey[:], decoded)

	if e.accounts == nil {
		return false, "Error checking account", nil
	}

	account, err := e.accounts.GetAccountData(ctx, pubkey)
	if err != nil {
		slog.Warn("error checking account existence", slog.String("error", err.Error()))
		return false, "Error checking account", nil
	}
	if account == nil {
		return false, "Account does not exist", nil
	}
	return true, "Account exists", nil
}
