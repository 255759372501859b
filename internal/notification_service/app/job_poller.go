package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/notifly/gateway/internal/platform/messagebroker"
	"github.com/notifly/gateway/internal/notification_service/domain"
	"github.com/notifly/gateway/internal/notification_service/repository"
)

// PollerConfig holds configuration specific to the RetryPoller.
type PollerConfig struct {
	PollingInterval time.Duration
	JobBatchSize    int
	MaxRetry        int
}

// RetryPoller acquires due retry jobs and republishes their payloads to the
// dispatch subject. The deferred-execution delay lives entirely in the retry
// table; the poller itself never sleeps on a job.
type RetryPoller struct {
	repo   repository.RetryJobRepository
	broker messagebroker.Client
	logger *slog.Logger
	config PollerConfig
}

// NewRetryPoller creates a RetryPoller instance.
func NewRetryPoller(
	repo repository.RetryJobRepository,
	broker messagebroker.Client,
	logger *slog.Logger,
	cfg PollerConfig,
) *RetryPoller {
	if cfg.PollingInterval <= 0 {
		cfg.PollingInterval = 15 * time.Second
	}
	if cfg.JobBatchSize <= 0 {
		cfg.JobBatchSize = 20
	}
	if cfg.MaxRetry <= 0 {
		cfg.MaxRetry = 3
	}
	return &RetryPoller{
		repo:   repo,
		broker: broker,
		logger: logger.With("service", "retry_poller"),
		config: cfg,
	}
}

// Run polls on the configured interval until ctx is cancelled.
func (p *RetryPoller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.PollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Retry poller stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.PollAndPublishJobs(ctx); err != nil {
				p.logger.ErrorContext(ctx, "Retry poll cycle failed", "error", err)
			}
		}
	}
}

// PollAndPublishJobs claims due jobs and republishes them. It returns the
// number of jobs actually republished this cycle and any critical
// acquisition error.
func (p *RetryPoller) PollAndPublishJobs(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	jobs, err := p.repo.AcquireDue(ctx, now, p.config.JobBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire due retry jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	p.logger.InfoContext(ctx, "Acquired due retry jobs", "count", len(jobs))

	published := 0
	for _, job := range jobs {
		if err := p.broker.Publish(ctx, DispatchJobsSubject, job.Payload); err != nil {
			p.logger.ErrorContext(ctx, "Failed to republish retry job", "job_id", job.ID, "error", err)
			p.handlePublishFailure(ctx, job, err)
			continue
		}
		published++

		if err := p.repo.MarkCompleted(ctx, job.ID); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark retry job completed", "job_id", job.ID, "error", err)
		}
	}
	return published, nil
}

// handlePublishFailure re-arms the job for one more poll cycle unless the
// poller's own retry bound is exhausted, at which point the job is failed.
func (p *RetryPoller) handlePublishFailure(ctx context.Context, job *domain.RetryJob, pubErr error) {
	lastError := sql.NullString{String: "publish failed: " + pubErr.Error(), Valid: true}

	if job.RetryCount+1 >= p.config.MaxRetry {
		if err := p.repo.MarkFailed(ctx, job.ID, lastError); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark retry job failed", "job_id", job.ID, "error", err)
		}
		return
	}

	nextRun := time.Now().UTC().Add(p.config.PollingInterval)
	if err := p.repo.MarkForRetry(ctx, job.ID, nextRun, job.RetryCount+1, lastError); err != nil {
		p.logger.ErrorContext(ctx, "Failed to re-arm retry job", "job_id", job.ID, "error", err)
	}
}
