// Package monitor drives trigger evaluation against the active job
// population at a configured cadence, grounded on the original source's
// monitor.rs and on the teacher's internal/worker.Worker ticker-loop
// shape (schedule/process timers selected alongside ctx.Done(), a
// sync.WaitGroup to join in-flight goroutines on shutdown).
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/solcron/keeper/internal/domain"
	"github.com/solcron/keeper/internal/evaluator"
	"github.com/solcron/keeper/internal/keeperr"
)

const (
	cacheRefreshInterval = 5 * time.Minute
	cleanupInterval      = time.Hour
)

// Store is the slice of persistence the Monitor needs.
type Store interface {
	GetActiveJobs(ctx context.Context) ([]*domain.Job, error)
	GetEligibleJobs(ctx context.Context, now time.Time) ([]*domain.Job, error)
	UpdateJobChecked(ctx context.Context, jobID uint64) error
}

// CachedJob is the Monitor's in-memory view of one active job.
type CachedJob struct {
	Job                 domain.Job
	LastEvaluation      time.Time
	NextCheckTime       *time.Time
	EvaluationCount     uint64
	ConsecutiveFailures uint32
}

// Monitor polls the store, evaluates due jobs, and feeds firing jobs
// into an outbound channel for the executor.
type Monitor struct {
	store             Store
	evaluator         *evaluator.Evaluator
	out               chan<- domain.ExecutionRequest
	pollInterval      time.Duration
	maxConcurrentJobs int
	jobCacheTTL       time.Duration

	mu    sync.RWMutex
	cache map[uint64]*CachedJob

	done chan struct{}
	wg   sync.WaitGroup
}

// New builds a Monitor. out is owned by the caller; the Monitor only sends.
func New(store Store, eval *evaluator.Evaluator, out chan<- domain.ExecutionRequest, pollInterval time.Duration, maxConcurrentJobs int, jobCacheTTL time.Duration) *Monitor {
	return &Monitor{
		store:             store,
		evaluator:         eval,
		out:               out,
		pollInterval:      pollInterval,
		maxConcurrentJobs: maxConcurrentJobs,
		jobCacheTTL:       jobCacheTTL,
		cache:             make(map[uint64]*CachedJob),
		done:              make(chan struct{}),
	}
}

// Start runs the poll/refresh/cleanup ticker loop until ctx is cancelled
// or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	slog.InfoContext(ctx, "monitor started", slog.Duration("poll_interval", m.pollInterval))

	pollTicker := time.NewTicker(m.pollInterval)
	refreshTicker := time.NewTicker(cacheRefreshInterval)
	cleanupTicker := time.NewTicker(cleanupInterval)
	defer pollTicker.Stop()
	defer refreshTicker.Stop()
	defer cleanupTicker.Stop()

	for {
		select {
		case <-pollTicker.C:
			if err := m.runMonitoringCycle(ctx); err != nil {
				slog.ErrorContext(ctx, "monitoring cycle failed", slog.String("error", err.Error()))
			}
		case <-refreshTicker.C:
			if err := m.RefreshCache(ctx); err != nil {
				slog.ErrorContext(ctx, "cache refresh failed", slog.String("error", err.Error()))
			}
		case <-cleanupTicker.C:
			m.cleanupCache()
		case <-ctx.Done():
			slog.InfoContext(ctx, "monitor context cancelled, shutting down")
			m.wg.Wait()
			return ctx.Err()
		case <-m.done:
			slog.InfoContext(ctx, "monitor stopped")
			m.wg.Wait()
			return nil
		}
	}
}

// Stop gracefully stops the monitor.
func (m *Monitor) Stop() error {
	close(m.done)
	return nil
}

func (m *Monitor) runMonitoringCycle(ctx context.Context) error {
	jobs, err := m.jobsToCheck(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxConcurrentJobs)
	for _, job := range jobs {
		job := *job
		m.wg.Add(1)
		g.Go(func() error {
			defer m.wg.Done()
			if err := m.processJob(gctx, job); err != nil {
				slog.WarnContext(gctx, "error processing job", slog.Uint64("job_id", job.JobID), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	return g.Wait()
}

// jobsToCheck builds the to-check list: cached jobs whose next check
// time has arrived, falling back to a fresh database read when the
// cache yields nothing (cold start, or every cached entry still fresh).
func (m *Monitor) jobsToCheck(ctx context.Context) ([]*domain.Job, error) {
	now := time.Now()

	m.mu.RLock()
	var fromCache []*domain.Job
	for _, cached := range m.cache {
		due := false
		if cached.NextCheckTime != nil {
			due = !now.Before(*cached.NextCheckTime)
		} else {
			due = now.Sub(cached.LastEvaluation) >= m.jobCacheTTL
		}
		if due {
			job := cached.Job
			fromCache = append(fromCache, &job)
		}
	}
	m.mu.RUnlock()

	if len(fromCache) > 0 {
		return fromCache, nil
	}

	return m.store.GetEligibleJobs(ctx, now)
}

func (m *Monitor) processJob(ctx context.Context, job domain.Job) error {
	if err := m.store.UpdateJobChecked(ctx, job.JobID); err != nil {
		slog.WarnContext(ctx, "failed to update job check time", slog.Uint64("job_id", job.JobID), slog.String("error", err.Error()))
	}

	result, err := m.evaluator.Evaluate(ctx, job, time.Now())
	if err != nil {
		m.recordFailure(job.JobID)
		return keeperr.Wrap(keeperr.KindEvaluation, "evaluate job", err)
	}

	m.updateCache(job, result)

	if !result.ShouldExecute {
		slog.DebugContext(ctx, "job not ready", slog.Uint64("job_id", job.JobID), slog.String("reason", result.Reason))
		return nil
	}

	priority := determinePriority(job)
	request := domain.ExecutionRequest{
		Job:       job,
		Reason:    result.Reason,
		Priority:  priority,
		QueuedAt:  time.Now(),
		RequestID: uuid.NewString(),
	}

	select {
	case m.out <- request:
		slog.DebugContext(ctx, "job queued for execution", slog.Uint64("job_id", job.JobID), slog.String("reason", result.Reason), slog.String("request_id", request.RequestID))
		return nil
	default:
		return keeperr.New(keeperr.KindInternal, "execution queue full")
	}
}

func (m *Monitor) updateCache(job domain.Job, result evaluator.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, ok := m.cache[job.JobID]
	if !ok {
		cached = &CachedJob{Job: job}
		m.cache[job.JobID] = cached
	}
	cached.Job = job
	cached.LastEvaluation = time.Now()
	cached.NextCheckTime = result.NextCheckTime
	cached.EvaluationCount++
	cached.ConsecutiveFailures = 0
}

// recordFailure bumps a cached job's ConsecutiveFailures after an
// evaluation error. A job that isn't cached yet is left untracked.
func (m *Monitor) recordFailure(jobID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cached, ok := m.cache[jobID]
	if !ok {
		return
	}
	cached.ConsecutiveFailures++
}

// determinePriority mirrors the original's priority ladder, checked in
// order: never-executed or stale-beyond-a-day jobs are High, a job
// still failing more often than it succeeds is Critical, a job executed
// over a hundred times is deprioritized to Low, everything else Normal.
func determinePriority(job domain.Job) domain.ExecutionPriority {
	if job.LastExecuted == nil {
		return domain.PriorityHigh
	}
	if time.Since(*job.LastExecuted) > 24*time.Hour {
		return domain.PriorityHigh
	}
	if job.FailedCount > 5 && job.FailedCount > job.ExecutionCount/2 {
		return domain.PriorityCritical
	}
	if job.ExecutionCount > 100 {
		return domain.PriorityLow
	}
	return domain.PriorityNormal
}

// RefreshCache reloads the active job population from the store,
// preserving existing CachedJob counters and dropping entries for jobs
// that left the active set. It also serves as the cold-start path when
// the cache is empty.
func (m *Monitor) RefreshCache(ctx context.Context) error {
	active, err := m.store.GetActiveJobs(ctx)
	if err != nil {
		return keeperr.Wrap(keeperr.KindDatabase, "refresh job cache", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[uint64]struct{}, len(active))
	for _, job := range active {
		seen[job.JobID] = struct{}{}
		if cached, ok := m.cache[job.JobID]; ok {
			cached.Job = *job
		} else {
			m.cache[job.JobID] = &CachedJob{Job: *job, LastEvaluation: time.Now()}
		}
	}

	for jobID := range m.cache {
		if _, ok := seen[jobID]; !ok {
			delete(m.cache, jobID)
		}
	}

	slog.InfoContext(ctx, "job cache refreshed", slog.Int("jobs", len(m.cache)))
	return nil
}

// cleanupCache evicts cache entries whose last evaluation is older than
// 10x the cache TTL.
func (m *Monitor) cleanupCache() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-10 * m.jobCacheTTL)
	removed := 0
	for jobID, cached := range m.cache {
		if cached.LastEvaluation.Before(cutoff) {
			delete(m.cache, jobID)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("cleaned up stale cache entries", slog.Int("removed", removed))
	}
}

// CacheStats returns (total jobs, active jobs, pending jobs) for status
// reporting.
func (m *Monitor) CacheStats() (total, active, pending int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := time.Now()
	for _, cached := range m.cache {
		total++
		if cached.Job.IsActive {
			active++
			if cached.NextCheckTime == nil || !now.Before(*cached.NextCheckTime) {
				pending++
			}
		}
	}
	return total, active, pending
}

// ForceJobCheck immediately evaluates a cached job, bypassing its timer.
func (m *Monitor) ForceJobCheck(ctx context.Context, jobID uint64) error {
	m.mu.RLock()
	cached, ok := m.cache[jobID]
	m.mu.RUnlock()

	if !ok {
		return keeperr.New(keeperr.KindInvalidJob, "job not found in cache")
	}

	return m.processJob(ctx, cached.Job)
}
