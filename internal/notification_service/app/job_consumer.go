package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/notifly/gateway/internal/platform/messagebroker"
	"github.com/notifly/gateway/internal/notification_service/domain"
	"github.com/notifly/gateway/internal/notification_service/repository"
)

// DispatchJobsSubject is the queue subject carrying dispatch jobs.
const DispatchJobsSubject = "notifications.dispatch.jobs"

// DispatchJobsQueueGroup shares the subject across service instances.
const DispatchJobsQueueGroup = "notification_dispatch_workers"

// ConsumerConfig bounds the retry behavior of the job consumer.
type ConsumerConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	JobTimeout   time.Duration
}

// JobConsumer is the queue-driven shell around the dispatcher. It invokes the
// engine once per delivery of a job; a transiently failed job is written to
// the retry table with a backoff deadline instead of being retried in-line,
// and a permanently failed one is surfaced as terminal without any retry.
type JobConsumer struct {
	dispatcher *Dispatcher
	retryRepo  repository.RetryJobRepository
	broker     messagebroker.Client
	config     ConsumerConfig
	logger     *slog.Logger
}

// NewJobConsumer creates a JobConsumer.
func NewJobConsumer(
	dispatcher *Dispatcher,
	retryRepo repository.RetryJobRepository,
	broker messagebroker.Client,
	config ConsumerConfig,
	logger *slog.Logger,
) *JobConsumer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryBackoff <= 0 {
		config.RetryBackoff = 60 * time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 60 * time.Second
	}
	return &JobConsumer{
		dispatcher: dispatcher,
		retryRepo:  retryRepo,
		broker:     broker,
		config:     config,
		logger:     logger.With("service", "job_consumer"),
	}
}

// Start subscribes to the dispatch jobs subject and processes deliveries
// until the subscription is torn down.
func (c *JobConsumer) Start(ctx context.Context) (*nats.Subscription, error) {
	handler := func(msg *nats.Msg) {
		jobCtx, cancel := context.WithTimeout(context.Background(), c.config.JobTimeout)
		defer cancel()
		c.HandleJob(jobCtx, msg.Data)
	}
	return c.broker.Subscribe(ctx, DispatchJobsSubject, DispatchJobsQueueGroup, handler)
}

// HandleJob processes one raw job payload. Split from the NATS subscription
// so tests can drive it directly.
func (c *JobConsumer) HandleJob(ctx context.Context, data []byte) {
	var job domain.DispatchJob
	if err := json.Unmarshal(data, &job); err != nil {
		// A payload we cannot parse will not parse next time either.
		c.logger.ErrorContext(ctx, "Failed to unmarshal dispatch job, dropping", "error", err, "data", string(data))
		return
	}

	logger := c.logger.With("job_id", job.ID, "attempt", job.Attempt)
	logger.InfoContext(ctx, "Processing dispatch job", "contacts", job.ContactCount())

	delivered, finalErr := c.runDispatch(ctx, &job)
	if delivered {
		logger.InfoContext(ctx, "Dispatch job delivered")
		return
	}

	if finalErr != nil && domain.IsPermanent(finalErr) {
		// Retrying cannot produce a destination that was never supplied.
		logger.ErrorContext(ctx, "Dispatch job failed permanently, not retrying", "error", finalErr)
		return
	}

	if job.Attempt+1 >= c.config.MaxAttempts {
		retryJobsExhaustedCounter.Inc()
		logger.ErrorContext(ctx, "Dispatch job exhausted retry attempts, abandoning",
			"max_attempts", c.config.MaxAttempts)
		return
	}

	if err := c.scheduleRetry(ctx, &job); err != nil {
		logger.ErrorContext(ctx, "Failed to schedule dispatch retry", "error", err)
		return
	}
	retryJobsScheduledCounter.Inc()
	logger.WarnContext(ctx, "Dispatch job failed, retry scheduled",
		"next_attempt", job.Attempt+1, "backoff", c.config.RetryBackoff)
}

// runDispatch invokes the engine once: full multi-channel fallback for a
// single recipient, bulk fan-out otherwise. The second return value is the
// typed failure used to distinguish permanent from transient errors. On a
// partial bulk failure the job's contact lists are narrowed to the failed
// recipients before the caller reschedules it.
func (c *JobConsumer) runDispatch(ctx context.Context, job *domain.DispatchJob) (bool, error) {
	msg := domain.Message{Title: job.Title, Body: job.Message, CreatedAt: time.Now().UTC()}

	if job.ContactCount() <= 1 {
		destinations := map[domain.ChannelKind][]string{}
		if len(job.Emails) > 0 {
			destinations[domain.ChannelEmail] = job.Emails
		}
		if len(job.Phones) > 0 {
			phones := make([]string, len(job.Phones))
			for i, p := range job.Phones {
				phones[i] = domain.NormalizePhone(p)
			}
			destinations[domain.ChannelSMS] = phones
		}
		if len(job.TelegramChatIDs) > 0 {
			destinations[domain.ChannelTelegram] = job.TelegramChatIDs
		}

		res, err := c.dispatcher.Dispatch(ctx, msg, destinations, job.PreferredChannel)
		if err != nil {
			return false, err
		}
		if !res.Delivered {
			if res.Permanent {
				return false, fmt.Errorf("%w: %s", domain.ErrPermanentFailure, res.FinalError)
			}
			return false, fmt.Errorf("dispatch failed: %s", res.FinalError)
		}
		return true, nil
	}

	bulk := c.dispatcher.DispatchBulk(ctx, msg, job.Emails, job.Phones, job.TelegramChatIDs, job.PreferredChannel)
	if bulk.Failed > 0 {
		// Keep only the recipients that failed, so a retry never re-sends
		// to an address that already got the message.
		job.Emails, job.Phones, job.TelegramChatIDs = nil, nil, nil
		for _, detail := range bulk.Details {
			if detail.Success {
				continue
			}
			switch detail.Channel {
			case domain.ChannelEmail:
				job.Emails = append(job.Emails, detail.Contact)
			case domain.ChannelSMS:
				job.Phones = append(job.Phones, detail.Contact)
			case domain.ChannelTelegram:
				job.TelegramChatIDs = append(job.TelegramChatIDs, detail.Contact)
			}
		}
		return false, fmt.Errorf("bulk dispatch: %d of %d recipients failed", bulk.Failed, bulk.TotalRecipients)
	}
	return true, nil
}

// scheduleRetry persists the job with the attempt counter bumped and a run
// time one backoff away. The poller republishes it when due.
func (c *JobConsumer) scheduleRetry(ctx context.Context, job *domain.DispatchJob) error {
	next := *job
	next.Attempt++

	payload, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal retry payload: %w", err)
	}

	retryJob := domain.NewRetryJob(payload, time.Now().UTC().Add(c.config.RetryBackoff))
	return c.retryRepo.Schedule(ctx, retryJob)
}
