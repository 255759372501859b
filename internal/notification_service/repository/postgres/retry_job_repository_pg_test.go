package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifly/gateway/internal/notification_service/domain"
	"github.com/notifly/gateway/internal/notification_service/repository"
)

func TestPgRetryJobRepository_Schedule(t *testing.T) {
	ctx := context.Background()

	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	repo := NewPgRetryJobRepository(mockPool)
	job := domain.NewRetryJob(json.RawMessage(`{"title":"Alert"}`), time.Now().UTC().Add(time.Minute))

	mockPool.ExpectExec(`INSERT INTO dispatch_retry_jobs`).
		WithArgs(job.ID, job.Payload, job.Status, job.RunAt, job.RetryCount, job.LastError, job.CreatedAt, job.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Schedule(ctx, job))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPgRetryJobRepository_AcquireDue(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()
	jobColumns := []string{"id", "payload", "status", "run_at", "retry_count", "last_error", "created_at", "updated_at"}

	t.Run("ClaimsDueJobs", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgRetryJobRepository(mockPool)

		jobID := uuid.New()
		payload := json.RawMessage(`{"title":"Alert"}`)
		rows := mockPool.NewRows(jobColumns).
			AddRow(jobID, payload, domain.JobStatusProcessing, now.Add(-time.Minute), 1, sql.NullString{}, now.Add(-time.Hour), now)

		mockPool.ExpectQuery(`UPDATE dispatch_retry_jobs`).
			WithArgs(domain.JobStatusProcessing, pgxmock.AnyArg(),
				domain.JobStatusPending, domain.JobStatusRetry, now, 20).
			WillReturnRows(rows)

		jobs, err := repo.AcquireDue(ctx, now, 20)
		assert.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, jobID, jobs[0].ID)
		assert.Equal(t, payload, jobs[0].Payload)
		assert.Equal(t, 1, jobs[0].RetryCount)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NothingDue", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgRetryJobRepository(mockPool)

		mockPool.ExpectQuery(`UPDATE dispatch_retry_jobs`).
			WithArgs(domain.JobStatusProcessing, pgxmock.AnyArg(),
				domain.JobStatusPending, domain.JobStatusRetry, now, 20).
			WillReturnRows(mockPool.NewRows(jobColumns))

		jobs, err := repo.AcquireDue(ctx, now, 20)
		assert.NoError(t, err)
		assert.Empty(t, jobs)
	})
}

func TestPgRetryJobRepository_StatusTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("MarkCompleted", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgRetryJobRepository(mockPool)
		jobID := uuid.New()

		mockPool.ExpectExec(`UPDATE dispatch_retry_jobs`).
			WithArgs(jobID, domain.JobStatusCompleted, sql.NullString{}, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.MarkCompleted(ctx, jobID))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("MarkFailedKeepsLastError", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgRetryJobRepository(mockPool)
		jobID := uuid.New()
		lastError := sql.NullString{String: "publish failed: nats down", Valid: true}

		mockPool.ExpectExec(`UPDATE dispatch_retry_jobs`).
			WithArgs(jobID, domain.JobStatusFailed, lastError, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.MarkFailed(ctx, jobID, lastError))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("MarkForRetry", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgRetryJobRepository(mockPool)
		jobID := uuid.New()
		nextRun := time.Now().UTC().Add(15 * time.Second)
		lastError := sql.NullString{String: "publish failed: nats down", Valid: true}

		mockPool.ExpectExec(`UPDATE dispatch_retry_jobs`).
			WithArgs(jobID, domain.JobStatusRetry, nextRun, 2, lastError, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.MarkForRetry(ctx, jobID, nextRun, 2, lastError))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("UnknownJobID", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		repo := NewPgRetryJobRepository(mockPool)
		jobID := uuid.New()

		mockPool.ExpectExec(`UPDATE dispatch_retry_jobs`).
			WithArgs(jobID, domain.JobStatusCompleted, sql.NullString{}, pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.MarkCompleted(ctx, jobID)
		assert.ErrorIs(t, err, repository.ErrRetryJobNotFound)
	})
}
