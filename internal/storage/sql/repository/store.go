// Package repository implements the keeper's persistence operations
// directly against database/sql, grounded on the teacher's
// storage/sql/repository package and on the original source's
// database.rs. A sqlc-generated query layer (the teacher's approach)
// cannot be reproduced without running a code generator, so every query
// here is hand-written, parameterized SQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/solcron/keeper/internal/domain"
	"github.com/solcron/keeper/internal/keeperr"
)

// Store implements the keeper's job, execution, and stats persistence
// against a PostgreSQL database.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-connected, already-migrated *sql.DB.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// UpsertJob inserts a job or replaces it by job_id, bumping updated_at.
func (s *Store) UpsertJob(ctx context.Context, j *domain.Job) error {
	params, err := json.Marshal(j.TriggerParams)
	if err != nil {
		return keeperr.Wrap(keeperr.KindSerialization, "marshal trigger params", err)
	}

	const q = `
INSERT INTO jobs (
	job_id, owner, target_program, target_instruction, trigger_type,
	trigger_params, balance, min_balance, gas_limit, is_active,
	last_checked, last_executed, execution_count, failed_count,
	cached_data, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
ON CONFLICT (job_id) DO UPDATE SET
	owner = excluded.owner,
	target_program = excluded.target_program,
	target_instruction = excluded.target_instruction,
	trigger_type = excluded.trigger_type,
	trigger_params = excluded.trigger_params,
	balance = excluded.balance,
	min_balance = excluded.min_balance,
	gas_limit = excluded.gas_limit,
	is_active = excluded.is_active,
	last_checked = excluded.last_checked,
	last_executed = excluded.last_executed,
	execution_count = excluded.execution_count,
	failed_count = excluded.failed_count,
	cached_data = excluded.cached_data,
	updated_at = now()`

	_, err = s.db.ExecContext(ctx, q,
		j.JobID, j.Owner, j.TargetProgram, j.TargetInstruction, string(j.TriggerType),
		params, j.Balance, j.MinBalance, j.GasLimit, j.IsActive,
		j.LastChecked, j.LastExecuted, j.ExecutionCount, j.FailedCount, j.CachedData,
	)
	if err != nil {
		return keeperr.Wrap(keeperr.KindDatabase, "upsert job", err)
	}
	return nil
}

// GetActiveJobs returns every active job, ordered by last_checked ASC
// NULLS FIRST.
func (s *Store) GetActiveJobs(ctx context.Context) ([]*domain.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM jobs
WHERE is_active
ORDER BY last_checked ASC NULLS FIRST`

	return s.queryJobs(ctx, q)
}

// GetEligibleJobs returns active, sufficiently-funded jobs whose
// last_checked is either unset or older than 30 seconds, ordered
// by last_executed ASC NULLS FIRST (never-executed jobs first), capped at
// 50 rows.
func (s *Store) GetEligibleJobs(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM jobs
WHERE is_active
  AND balance > min_balance
  AND (last_checked IS NULL OR last_checked < $1)
ORDER BY last_executed ASC NULLS FIRST
LIMIT 50`

	return s.queryJobs(ctx, q, now.Add(-30*time.Second))
}

const jobColumns = `job_id, owner, target_program, target_instruction, trigger_type,
	trigger_params, balance, min_balance, gas_limit, is_active,
	last_checked, last_executed, execution_count, failed_count, cached_data`

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, keeperr.Wrap(keeperr.KindDatabase, "query jobs", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, keeperr.Wrap(keeperr.KindDatabase, "iterate jobs", err)
	}
	return jobs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var triggerType string
	var params []byte

	err := row.Scan(
		&j.JobID, &j.Owner, &j.TargetProgram, &j.TargetInstruction, &triggerType,
		&params, &j.Balance, &j.MinBalance, &j.GasLimit, &j.IsActive,
		&j.LastChecked, &j.LastExecuted, &j.ExecutionCount, &j.FailedCount, &j.CachedData,
	)
	if err != nil {
		return nil, keeperr.Wrap(keeperr.KindDatabase, "scan job", err)
	}

	tt, err := domain.NewTriggerType(triggerType)
	if err != nil {
		return nil, keeperr.Wrap(keeperr.KindInvalidTrigger, "job trigger type", err)
	}
	j.TriggerType = tt

	if len(params) > 0 {
		if err := json.Unmarshal(params, &j.TriggerParams); err != nil {
			return nil, keeperr.Wrap(keeperr.KindSerialization, "unmarshal trigger params", err)
		}
	}

	return &j, nil
}

// UpdateJobChecked stamps last_checked = now for the given job.
func (s *Store) UpdateJobChecked(ctx context.Context, jobID uint64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE jobs SET last_checked = now() WHERE job_id = $1`, jobID)
	if err != nil {
		return keeperr.Wrap(keeperr.KindDatabase, "update job checked", err)
	}
	return requireRowsAffected(res)
}

// RecordExecution appends an execution record for a job.
func (s *Store) RecordExecution(ctx context.Context, e *domain.ExecutionRecord) error {
	const q = `
INSERT INTO executions (job_id, keeper_address, signature, success, error_message, gas_used, fee_paid, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, q,
		e.JobID, e.KeeperAddress, e.Signature, e.Success, e.Error, e.GasUsed, e.FeePaid, e.Timestamp)
	if err != nil {
		return keeperr.Wrap(keeperr.KindDatabase, "record execution", err)
	}
	return nil
}

// UpdateKeeperStats additively upserts day's execution counters.
func (s *Store) UpdateKeeperStats(ctx context.Context, day time.Time, success bool, fee int64) error {
	succeeded, failed := int64(1), int64(0)
	if !success {
		succeeded, failed = 0, 1
	}

	const q = `
INSERT INTO keeper_stats (day, jobs_executed, jobs_failed, total_fees_earned, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (day) DO UPDATE SET
	jobs_executed = keeper_stats.jobs_executed + excluded.jobs_executed,
	jobs_failed = keeper_stats.jobs_failed + excluded.jobs_failed,
	total_fees_earned = keeper_stats.total_fees_earned + excluded.total_fees_earned,
	updated_at = now()`

	_, err := s.db.ExecContext(ctx, q, day.Truncate(24*time.Hour), succeeded, failed, fee)
	if err != nil {
		return keeperr.Wrap(keeperr.KindDatabase, "update keeper stats", err)
	}
	return nil
}

// GetExecutionHistory returns the newest-first page of executions for a job.
func (s *Store) GetExecutionHistory(ctx context.Context, jobID uint64, limit int) ([]*domain.ExecutionRecord, error) {
	const q = `
SELECT id, job_id, keeper_address, signature, success, error_message, gas_used, fee_paid, executed_at
FROM executions
WHERE job_id = $1
ORDER BY executed_at DESC
LIMIT $2`

	rows, err := s.db.QueryContext(ctx, q, jobID, limit)
	if err != nil {
		return nil, keeperr.Wrap(keeperr.KindDatabase, "query execution history", err)
	}
	defer rows.Close()

	var records []*domain.ExecutionRecord
	for rows.Next() {
		var e domain.ExecutionRecord
		if err := rows.Scan(
			&e.ID, &e.JobID, &e.KeeperAddress, &e.Signature, &e.Success, &e.Error, &e.GasUsed, &e.FeePaid, &e.Timestamp,
		); err != nil {
			return nil, keeperr.Wrap(keeperr.KindDatabase, "scan execution", err)
		}
		records = append(records, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, keeperr.Wrap(keeperr.KindDatabase, "iterate executions", err)
	}
	return records, nil
}

// GetKeeperStats returns the additive daily aggregate for day, or a
// zero-value result if the keeper has no recorded activity that day.
func (s *Store) GetKeeperStats(ctx context.Context, day time.Time) (*domain.KeeperDailyStats, error) {
	const q = `
SELECT day, jobs_executed, jobs_failed, total_fees_earned
FROM keeper_stats
WHERE day = $1`

	stats := &domain.KeeperDailyStats{Date: day.Truncate(24 * time.Hour)}
	err := s.db.QueryRowContext(ctx, q, stats.Date).Scan(
		&stats.Date, &stats.SuccessfulExecutions, &stats.FailedExecutions, &stats.TotalFeesEarned,
	)
	if err == sql.ErrNoRows {
		return stats, nil
	}
	if err != nil {
		return nil, keeperr.Wrap(keeperr.KindDatabase, "get keeper stats", err)
	}
	return stats, nil
}

// CleanupOldData deletes executions older than days and stats older
// than 365 days. days is bound as a numeric make_interval() argument,
// not interpolated into the SQL string.
func (s *Store) CleanupOldData(ctx context.Context, days int) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM executions WHERE executed_at < now() - make_interval(days => $1)`, days,
	); err != nil {
		return keeperr.Wrap(keeperr.KindDatabase, "cleanup old executions", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM keeper_stats WHERE day < now() - make_interval(days => 365)`,
	); err != nil {
		return keeperr.Wrap(keeperr.KindDatabase, "cleanup old stats", err)
	}

	return nil
}

func requireRowsAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return keeperr.Wrap(keeperr.KindDatabase, "rows affected", err)
	}
	if n == 0 {
		return keeperr.Wrap(keeperr.KindInvalidJob, "update job checked", ErrJobNotFound)
	}
	return nil
}
