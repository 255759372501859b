package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/notifly/gateway/internal/notification_service/domain"
	"github.com/notifly/gateway/internal/notification_service/repository"
)

type pgRetryJobRepository struct {
	db PgxIface
}

// NewPgRetryJobRepository creates the PostgreSQL retry job store.
func NewPgRetryJobRepository(db PgxIface) repository.RetryJobRepository {
	return &pgRetryJobRepository{db: db}
}

func (r *pgRetryJobRepository) Schedule(ctx context.Context, job *domain.RetryJob) error {
	query := `
		INSERT INTO dispatch_retry_jobs (
			id, payload, status, run_at, retry_count, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		job.ID, job.Payload, job.Status, job.RunAt, job.RetryCount, job.LastError, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule retry job: %w", err)
	}
	return nil
}

// AcquireDue claims due jobs with SKIP LOCKED so concurrent pollers divide
// the batch instead of double-publishing.
func (r *pgRetryJobRepository) AcquireDue(ctx context.Context, dueTime time.Time, limit int) ([]*domain.RetryJob, error) {
	query := `
		UPDATE dispatch_retry_jobs
		SET status = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM dispatch_retry_jobs
			WHERE status IN ($3, $4) AND run_at <= $5
			ORDER BY run_at
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, payload, status, run_at, retry_count, last_error, created_at, updated_at
	`
	rows, err := r.db.Query(ctx, query,
		domain.JobStatusProcessing, time.Now().UTC(),
		domain.JobStatusPending, domain.JobStatusRetry, dueTime, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire due retry jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.RetryJob
	for rows.Next() {
		job := &domain.RetryJob{}
		if err := rows.Scan(
			&job.ID, &job.Payload, &job.Status, &job.RunAt, &job.RetryCount,
			&job.LastError, &job.CreatedAt, &job.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan retry job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("retry job rows error: %w", err)
	}
	return jobs, nil
}

func (r *pgRetryJobRepository) MarkCompleted(ctx context.Context, jobID uuid.UUID) error {
	return r.setStatus(ctx, jobID, domain.JobStatusCompleted, sql.NullString{})
}

func (r *pgRetryJobRepository) MarkFailed(ctx context.Context, jobID uuid.UUID, lastError sql.NullString) error {
	return r.setStatus(ctx, jobID, domain.JobStatusFailed, lastError)
}

func (r *pgRetryJobRepository) MarkForRetry(ctx context.Context, jobID uuid.UUID, nextRunAt time.Time, retryCount int, lastError sql.NullString) error {
	query := `
		UPDATE dispatch_retry_jobs
		SET status = $2, run_at = $3, retry_count = $4, last_error = $5, updated_at = $6
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		jobID, domain.JobStatusRetry, nextRunAt, retryCount, lastError, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark retry job for retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrRetryJobNotFound
	}
	return nil
}

func (r *pgRetryJobRepository) setStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus, lastError sql.NullString) error {
	query := `
		UPDATE dispatch_retry_jobs
		SET status = $2, last_error = $3, updated_at = $4
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, jobID, status, lastError, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update retry job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrRetryJobNotFound
	}
	return nil
}
