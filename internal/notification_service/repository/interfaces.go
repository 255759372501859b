package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/notifly/gateway/internal/notification_service/domain"
)

// ErrRetryJobNotFound is returned when a retry job lookup matches nothing.
var ErrRetryJobNotFound = errors.New("retry job not found")

// AttemptLogRepository persists the append-only delivery attempt trail.
// There are deliberately no update or delete operations.
type AttemptLogRepository interface {
	Create(ctx context.Context, rec *domain.AttemptRecord) (*domain.AttemptRecord, error)
	List(ctx context.Context, filter domain.AttemptFilter) ([]*domain.AttemptRecord, error)
}

// RetryJobRepository stores deferred dispatch jobs for the retry poller.
type RetryJobRepository interface {
	Schedule(ctx context.Context, job *domain.RetryJob) error
	// AcquireDue atomically claims up to limit jobs due at or before dueTime,
	// marking them processing so concurrent pollers do not double-publish.
	AcquireDue(ctx context.Context, dueTime time.Time, limit int) ([]*domain.RetryJob, error)
	MarkCompleted(ctx context.Context, jobID uuid.UUID) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, lastError sql.NullString) error
	MarkForRetry(ctx context.Context, jobID uuid.UUID, nextRunAt time.Time, retryCount int, lastError sql.NullString) error
}
