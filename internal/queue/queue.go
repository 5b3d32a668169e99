package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"banksync/internal/database"
)

// Status is a job's lifecycle state:
// queued -> processing -> completed | queued (retry) | dead
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusDead       Status = "dead"
)

// Job is one durable queue row. The id is the caller's identity key;
// completed and dead rows are retained, so re-enqueueing the same key
// within the retention window is a no-op.
type Job struct {
	ID          string         `db:"id"`
	Payload     string         `db:"payload"`
	Status      Status         `db:"status"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	LastError   sql.NullString `db:"last_error"`
	NextRunAt   time.Time      `db:"next_run_at"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

// Queue is a durable at-least-once work queue backed by the database
type Queue struct {
	db          *database.DB
	logger      *slog.Logger
	maxAttempts int
	backoff     time.Duration
}

// New creates a queue. backoff is the base of the exponential retry delay.
func New(db *database.DB, logger *slog.Logger, maxAttempts int, backoff time.Duration) *Queue {
	return &Queue{
		db:          db,
		logger:      logger.With("component", "queue"),
		maxAttempts: maxAttempts,
		backoff:     backoff,
	}
}

// Enqueue adds a job keyed by id. Returns false when a job with the same
// key already exists in any state: duplicate producer runs are absorbed
// here rather than double-processing.
func (q *Queue) Enqueue(ctx context.Context, id string, payload any) (bool, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO jobs (id, payload, status, attempts, max_attempts, next_run_at, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.db.ExecContext(ctx, query, id, string(data), StatusQueued, q.maxAttempts, now, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// Dequeue leases the oldest runnable job, moving it to processing and
// incrementing its attempt count. Returns nil when nothing is runnable.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	tx, err := q.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	var job Job
	query := `SELECT * FROM jobs WHERE status = ? AND next_run_at <= ? ORDER BY created_at, id LIMIT 1`
	err = tx.GetContext(ctx, &job, query, StatusQueued, time.Now())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select job: %w", err)
	}

	job.Status = StatusProcessing
	job.Attempts++
	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, attempts = ?, updated_at = ? WHERE id = ?`,
		job.Status, job.Attempts, time.Now(), job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to lease job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit lease: %w", err)
	}
	return &job, nil
}

// Complete marks a job done. The row is kept as the dedupe record.
func (q *Queue) Complete(ctx context.Context, job *Job) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, last_error = NULL, updated_at = ? WHERE id = ?`,
		StatusCompleted, time.Now(), job.ID)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Fail records a processing failure. If attempts remain the job goes back
// to queued with exponential backoff; otherwise it is marked dead and
// exhausted=true is returned so the caller can dead-letter it.
func (q *Queue) Fail(ctx context.Context, job *Job, cause error) (exhausted bool, err error) {
	if job.Attempts >= job.MaxAttempts {
		_, err := q.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			StatusDead, cause.Error(), time.Now(), job.ID)
		if err != nil {
			return false, fmt.Errorf("failed to mark job dead: %w", err)
		}
		return true, nil
	}

	delay := q.backoff << (job.Attempts - 1)
	nextRun := time.Now().Add(delay)
	_, err = q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
		StatusQueued, cause.Error(), nextRun, time.Now(), job.ID)
	if err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}

	q.logger.Debug("job requeued",
		"job_id", job.ID,
		"attempt", job.Attempts,
		"next_run_in", delay,
	)
	return false, nil
}

// MarkDead moves a job straight to dead, skipping remaining retries. Used
// for permanent failures where retrying cannot help.
func (q *Queue) MarkDead(ctx context.Context, job *Job, cause error) error {
	_, err := q.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		StatusDead, cause.Error(), time.Now(), job.ID)
	if err != nil {
		return fmt.Errorf("failed to mark job dead: %w", err)
	}
	return nil
}

// Get returns a job row by id
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := q.db.GetContext(ctx, &job, `SELECT * FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}
