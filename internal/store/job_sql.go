package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LeadPipe/internal/util"
)

// sqlJobRepo implements JobRepo on the jobs table shared by SQLite and Postgres.
// Timestamps are written in UTC so SQLite's text comparison orders them correctly.
type sqlJobRepo struct {
	db      *sql.DB
	dialect dialect
}

var _ JobRepo = (*sqlJobRepo)(nil)

func (r *sqlJobRepo) EnqueueJob(ctx context.Context, kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	id := util.GenerateJobID()
	now := time.Now().UTC()

	if dedupeKey != "" {
		var existingID string
		err := r.db.QueryRowContext(ctx, r.dialect.bind(
			`SELECT id FROM jobs WHERE dedupe_key = ? AND status NOT IN ('done', 'canceled')`),
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug("JobRepo.EnqueueJob: dedupe hit", "backend", r.dialect, "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("dedupe check failed: %w", err)
		}
	}

	_, err := r.db.ExecContext(ctx, r.dialect.bind(
		`INSERT INTO jobs (id, kind, run_at, payload_json, status, attempt, max_attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?, ?)`),
		id, kind, runAt.UTC(), payloadJSON, DefaultMaxAttempts, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue job failed: %w", err)
	}
	slog.Debug("JobRepo.EnqueueJob", "backend", r.dialect, "id", id, "kind", kind, "runAt", runAt)
	return id, nil
}

func (r *sqlJobRepo) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	now = now.UTC()
	if r.dialect == dialectPostgres {
		return r.queryJobs(ctx,
			`UPDATE jobs SET status = 'running', locked_at = $1, updated_at = $1
			 WHERE id IN (
			   SELECT id FROM jobs WHERE status = 'queued' AND run_at <= $1
			   ORDER BY run_at ASC LIMIT $2
			   FOR UPDATE SKIP LOCKED
			 )
			 RETURNING `+jobColumns,
			now, limit,
		)
	}

	// SQLite serializes writers, so select-then-update inside one transaction is safe.
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs begin failed: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = 'queued' AND run_at <= ? ORDER BY run_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs query failed: %w", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = 'running', locked_at = ?, updated_at = ? WHERE id = ?`,
			now, now, jobs[i].ID,
		); err != nil {
			return nil, fmt.Errorf("mark job running failed: %w", err)
		}
		locked := now
		jobs[i].Status = JobStatusRunning
		jobs[i].LockedAt = &locked
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("claim due jobs commit failed: %w", err)
	}
	return jobs, nil
}

func (r *sqlJobRepo) CompleteJob(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.bind(
		`UPDATE jobs SET status = 'done', locked_at = NULL, updated_at = ? WHERE id = ?`),
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("complete job failed: %w", err)
	}
	return nil
}

func (r *sqlJobRepo) FailJob(ctx context.Context, id string, errMsg string, nextRunAt time.Time) error {
	now := time.Now().UTC()

	var attempt, maxAttempts int
	err := r.db.QueryRowContext(ctx, r.dialect.bind(`SELECT attempt, max_attempts FROM jobs WHERE id = ?`), id).
		Scan(&attempt, &maxAttempts)
	if err != nil {
		return fmt.Errorf("fail job lookup failed: %w", err)
	}

	attempt++
	if attempt >= maxAttempts {
		_, err = r.db.ExecContext(ctx, r.dialect.bind(
			`UPDATE jobs SET status = 'failed', attempt = ?, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`),
			attempt, errMsg, now, id,
		)
	} else {
		_, err = r.db.ExecContext(ctx, r.dialect.bind(
			`UPDATE jobs SET status = 'queued', attempt = ?, last_error = ?, run_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`),
			attempt, errMsg, nextRunAt.UTC(), now, id,
		)
	}
	if err != nil {
		return fmt.Errorf("fail job update failed: %w", err)
	}
	return nil
}

func (r *sqlJobRepo) CancelJob(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.bind(
		`UPDATE jobs SET status = 'canceled', locked_at = NULL, updated_at = ? WHERE id = ?`),
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("cancel job failed: %w", err)
	}
	return nil
}

func (r *sqlJobRepo) CancelJobsByDedupeKey(ctx context.Context, dedupeKey string) (int, error) {
	result, err := r.db.ExecContext(ctx, r.dialect.bind(
		`UPDATE jobs SET status = 'canceled', locked_at = NULL, updated_at = ?
		 WHERE dedupe_key = ? AND status IN ('queued', 'running')`),
		time.Now().UTC(), dedupeKey,
	)
	if err != nil {
		return 0, fmt.Errorf("cancel jobs by dedupe key failed: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

func (r *sqlJobRepo) RequeueStaleRunningJobs(ctx context.Context, staleBefore time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, r.dialect.bind(
		`UPDATE jobs SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'running' AND locked_at < ?`),
		time.Now().UTC(), staleBefore.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("JobRepo.RequeueStaleRunningJobs", "backend", r.dialect, "requeued", n)
	}
	return int(n), nil
}

func (r *sqlJobRepo) GetJob(ctx context.Context, id string) (*Job, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.bind(`SELECT `+jobColumns+` FROM jobs WHERE id = ?`), id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job failed: %w", err)
	}
	return &j, nil
}

func (r *sqlJobRepo) ListQueuedJobs(ctx context.Context) ([]Job, error) {
	return r.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE status = 'queued' ORDER BY run_at ASC`)
}

func (r *sqlJobRepo) queryJobs(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("job query failed: %w", err)
	}
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]Job, error) {
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("job iteration failed: %w", err)
	}
	return jobs, nil
}
