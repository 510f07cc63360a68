// Package executor pops the highest-priority due job off its queue and
// submits a signed execute_job transaction for it, grounded on the
// original source's executor.rs.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"github.com/solcron/keeper/internal/chainclient"
	"github.com/solcron/keeper/internal/domain"
	"github.com/solcron/keeper/internal/keeperr"
	"github.com/solcron/keeper/internal/keypair"
)

const (
	// idleEmptyQueueDelay is how long the loop waits for a new request
	// when the queue is empty, matching executor.rs's 500ms idle sleep.
	idleEmptyQueueDelay = 500 * time.Millisecond
	// executionSpacingDelay is the pause between consecutive executions,
	// matching executor.rs's 100ms spacing sleep.
	executionSpacingDelay = 100 * time.Millisecond
	// placeholderFeeLamports mirrors the original's hardcoded fee_paid
	// placeholder; spec.md §9 flags real fee accounting as future work.
	placeholderFeeLamports = 5000
)

// ChainSubmitter is the slice of the RPC Manager the Executor needs to
// build, simulate, and submit transactions.
type ChainSubmitter interface {
	LatestBlockhash(ctx context.Context) ([32]byte, error)
	SimulateTransaction(ctx context.Context, tx *chainclient.Transaction) (*chainclient.SimulationResult, error)
	SendAndConfirmTransaction(ctx context.Context, tx *chainclient.Transaction) (string, error)
}

// Store is the slice of persistence the Executor needs to record
// outcomes.
type Store interface {
	RecordExecution(ctx context.Context, rec *domain.ExecutionRecord) error
	UpdateKeeperStats(ctx context.Context, day time.Time, success bool, feePaid int64) error
}

// Executor is a single goroutine that both receives execution requests
// and processes them off a local priority queue. Collapsing the
// original's two-task, shared-heap-plus-mutex shape into one goroutine
// leaves a single producer and consumer; a small queueMu is still held
// around every queue access so QueueStats/ClearQueue can be called from
// outside this loop.
type Executor struct {
	rpc               ChainSubmitter
	store             Store
	registry          chainclient.RegistryReader
	keypair           *keypair.Keypair
	keeperPub         [32]byte
	maxRetries        uint32
	retryDelay        time.Duration
	simulationEnabled bool

	in <-chan domain.ExecutionRequest

	queueMu sync.Mutex
	queue   *executionQueue

	done chan struct{}
	wg   sync.WaitGroup
}

// New builds an Executor. in is owned by the caller (the Monitor); the
// Executor only receives.
func New(
	rpc ChainSubmitter,
	store Store,
	registry chainclient.RegistryReader,
	kp *keypair.Keypair,
	maxRetries uint32,
	retryDelay time.Duration,
	simulationEnabled bool,
	in <-chan domain.ExecutionRequest,
) *Executor {
	var pub [32]byte
	copy(pub[:], kp.Public)

	return &Executor{
		rpc:               rpc,
		store:             store,
		registry:          registry,
		keypair:           kp,
		keeperPub:         pub,
		maxRetries:        maxRetries,
		retryDelay:        retryDelay,
		simulationEnabled: simulationEnabled,
		in:                in,
		queue:             newExecutionQueue(),
		done:              make(chan struct{}),
	}
}

// Start runs the receive-or-process loop until ctx is cancelled or Stop
// is called.
func (e *Executor) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "executor started", slog.String("keeper", e.keypair.Address()))

	for {
		e.queueMu.Lock()
		pending := e.queue.len() > 0
		e.queueMu.Unlock()

		if !pending {
			select {
			case req, ok := <-e.in:
				if !ok {
					slog.WarnContext(ctx, "execution request channel closed")
					return nil
				}
				e.enqueue(req)
			case <-ctx.Done():
				return ctx.Err()
			case <-e.done:
				return nil
			case <-time.After(idleEmptyQueueDelay):
			}
			continue
		}

		select {
		case req, ok := <-e.in:
			if !ok {
				slog.WarnContext(ctx, "execution request channel closed")
				return nil
			}
			e.enqueue(req)
			continue
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return nil
		default:
		}

		e.queueMu.Lock()
		req, ok := e.queue.pop()
		e.queueMu.Unlock()
		if !ok {
			continue
		}

		e.wg.Add(1)
		e.execute(ctx, req)
		e.wg.Done()

		select {
		case <-time.After(executionSpacingDelay):
		case <-ctx.Done():
			return ctx.Err()
		case <-e.done:
			return nil
		}
	}
}

// Stop gracefully stops the executor, waiting for any in-flight
// execution to finish.
func (e *Executor) Stop() error {
	close(e.done)
	e.wg.Wait()
	return nil
}

func (e *Executor) enqueue(req domain.ExecutionRequest) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	e.queue.push(req, time.Now())
	slog.Debug("queued execution request", slog.Uint64("job_id", req.Job.JobID), slog.String("priority", req.Priority.String()), slog.String("request_id", req.RequestID))
}

// QueueStats reports the queue depth and the priority of the next item
// that would be popped, for status reporting.
func (e *Executor) QueueStats() (size int, nextPriority domain.ExecutionPriority) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	return e.queue.len(), e.queue.peekPriority()
}

// ClearQueue discards every pending request and returns how many were
// dropped.
func (e *Executor) ClearQueue() int {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()
	dropped := e.queue.len()
	e.queue = newExecutionQueue()
	return dropped
}

type executionOutcome struct {
	success   bool
	signature *string
	errMsg    *string
	gasUsed   int64
	feePaid   int64
}

func (e *Executor) execute(ctx context.Context, req domain.ExecutionRequest) {
	job := req.Job
	slog.InfoContext(ctx, "executing job", slog.Uint64("job_id", job.JobID), slog.String("priority", req.Priority.String()), slog.String("request_id", req.RequestID))

	outcome := e.run(ctx, job, req.RequestID)
	if err := e.recordResult(ctx, job, outcome); err != nil {
		slog.ErrorContext(ctx, "failed to record execution result", slog.Uint64("job_id", job.JobID), slog.String("request_id", req.RequestID), slog.String("error", err.Error()))
	}
}

func (e *Executor) run(ctx context.Context, job domain.Job, requestID string) executionOutcome {
	targetProgramID, err := parsePubkey(job.TargetProgram)
	if err != nil {
		msg := fmt.Sprintf("failed to build instruction: invalid target program: %v", err)
		return executionOutcome{errMsg: &msg}
	}

	instruction, err := chainclient.BuildExecuteJobInstruction(
		chainclient.RegistryProgramID, chainclient.SystemProgramID, targetProgramID, job.JobID, e.keeperPub, e.registry,
	)
	if err != nil {
		msg := fmt.Sprintf("failed to build instruction: %v", err)
		return executionOutcome{errMsg: &msg}
	}

	blockhash, err := e.rpc.LatestBlockhash(ctx)
	if err != nil {
		msg := fmt.Sprintf("failed to get blockhash: %v", err)
		return executionOutcome{errMsg: &msg}
	}

	message := chainclient.CompileMessage(instruction, e.keeperPub, blockhash)
	tx := chainclient.SignTransaction(message, e.keypair.Private)

	if e.simulationEnabled {
		sim, simErr := e.rpc.SimulateTransaction(ctx, tx)
		if simErr != nil {
			slog.WarnContext(ctx, "failed to simulate transaction, continuing anyway", slog.Uint64("job_id", job.JobID), slog.String("request_id", requestID), slog.String("error", simErr.Error()))
		} else if sim.Err != nil {
			msg := fmt.Sprintf("Simulation failed: %v", sim.Err)
			return executionOutcome{errMsg: &msg}
		}
	}

	return e.submitWithRetry(ctx, job, tx, requestID)
}

func (e *Executor) submitWithRetry(ctx context.Context, job domain.Job, tx *chainclient.Transaction, requestID string) executionOutcome {
	var lastErr error

	for attempt := uint32(0); attempt < e.maxRetries; attempt++ {
		signature, err := e.rpc.SendAndConfirmTransaction(ctx, tx)
		if err == nil {
			slog.InfoContext(ctx, "job executed successfully", slog.Uint64("job_id", job.JobID), slog.String("request_id", requestID), slog.String("signature", signature))
			return executionOutcome{success: true, signature: &signature, feePaid: placeholderFeeLamports}
		}

		lastErr = err
		slog.WarnContext(ctx, "job execution attempt failed", slog.Uint64("job_id", job.JobID), slog.String("request_id", requestID), slog.Int("attempt", int(attempt)+1), slog.String("error", err.Error()))

		if attempt < e.maxRetries-1 {
			delay := e.retryDelay * time.Duration(uint32(1)<<attempt)
			select {
			case <-ctx.Done():
				msg := ctx.Err().Error()
				return executionOutcome{errMsg: &msg}
			case <-time.After(delay):
			}
		}
	}

	msg := lastErr.Error()
	return executionOutcome{errMsg: &msg}
}

func (e *Executor) recordResult(ctx context.Context, job domain.Job, o executionOutcome) error {
	record := &domain.ExecutionRecord{
		JobID:         job.JobID,
		KeeperAddress: e.keypair.Address(),
		Timestamp:     time.Now(),
		Success:       o.success,
		Signature:     o.signature,
		Error:         o.errMsg,
		GasUsed:       &o.gasUsed,
		FeePaid:       &o.feePaid,
	}

	if err := e.store.RecordExecution(ctx, record); err != nil {
		return keeperr.Wrap(keeperr.KindDatabase, "record execution", err)
	}

	if err := e.store.UpdateKeeperStats(ctx, time.Now().UTC(), o.success, o.feePaid); err != nil {
		return keeperr.Wrap(keeperr.KindDatabase, "update keeper stats", err)
	}

	if o.success {
		slog.InfoContext(ctx, "execution recorded", slog.Uint64("job_id", job.JobID))
	} else {
		slog.WarnContext(ctx, "execution failure recorded", slog.Uint64("job_id", job.JobID))
	}
	return nil
}

func parsePubkey(s string) ([32]byte, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return [32]byte{}, keeperr.Wrap(keeperr.KindInvalidJob, "invalid base58 address", err)
	}
	if len(decoded) != 32 {
		return [32]byte{}, keeperr.New(keeperr.KindInvalidJob, fmt.Sprintf("address must decode to 32 bytes, got %d", len(decoded)))
	}
	var out [32]byte
	copy(out[:], decoded)
	return out, nil
}
