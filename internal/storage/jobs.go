package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts = 3
	// retryBase is the delay after the first failed attempt; it doubles per attempt.
	retryBase = 2 * time.Second
)

const jobColumns = `id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error, result`

// EnqueueJob stores job as pending. A zero RunAfter means now and a zero
// MaxAttempts means defaultMaxAttempts.
func (s *Store) EnqueueJob(ctx context.Context, job Job) error {
	now := time.Now()
	runAfter := job.RunAfter
	if runAfter.IsZero() {
		runAfter = now
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, JobPending, maxAttempts,
		formatTime(runAfter), formatTime(now), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	return j, err
}

// ClaimNextJob marks the oldest runnable pending job of jobType as running
// and returns it, or nil when none is due. Selection and update are one
// statement, so two workers never claim the same job.
func (s *Store) ClaimNextJob(ctx context.Context, jobType string) (*Job, error) {
	now := formatTime(time.Now())
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = ? AND type = ? AND run_after <= ?
			ORDER BY run_after, created_at
			LIMIT 1
		)
		RETURNING `+jobColumns,
		JobRunning, now, JobPending, jobType, now,
	)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming %s job: %w", jobType, err)
	}
	return &j, nil
}

// CompleteJob marks a job completed with result.
func (s *Store) CompleteJob(ctx context.Context, id, result string) error {
	return s.updateJob(ctx, id,
		`UPDATE jobs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		JobCompleted, result, formatTime(time.Now()), id)
}

// FailJob records a failed attempt. With retry set, the job goes back to
// pending after an exponential delay until max_attempts is used up; without
// it the job fails at once.
func (s *Store) FailJob(ctx context.Context, id, errMsg string, retry bool) error {
	j, err := s.GetJob(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	attempts := j.Attempts + 1
	if !retry || attempts >= j.MaxAttempts {
		return s.updateJob(ctx, id,
			`UPDATE jobs SET status = ?, attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			JobFailed, attempts, errMsg, formatTime(now), id)
	}

	delay := retryBase << (attempts - 1)
	return s.updateJob(ctx, id,
		`UPDATE jobs SET status = ?, attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
		JobPending, attempts, errMsg, formatTime(now.Add(delay)), formatTime(now), id)
}

func (s *Store) updateJob(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err := row.Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError, &j.Result,
	)
	if err != nil {
		return Job{}, err
	}
	j.LastError = lastError.String

	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&j.RunAfter, runAfter}, {&j.CreatedAt, createdAt}, {&j.UpdatedAt, updatedAt}} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return Job{}, fmt.Errorf("parsing job %s timestamps: %w", j.ID, err)
		}
	}
	return j, nil
}
