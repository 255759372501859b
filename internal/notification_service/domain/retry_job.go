package domain

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a queued dispatch retry.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetry      JobStatus = "retry"
)

// RetryJob is the durable record behind the deferred re-invocation of a
// dispatch. The poller acquires due jobs and republishes their payload to the
// queue; the consumer decides whether another retry is warranted.
type RetryJob struct {
	ID         uuid.UUID       `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	Status     JobStatus       `json:"status"`
	RunAt      time.Time       `json:"run_at"`
	RetryCount int             `json:"retry_count"`
	LastError  sql.NullString  `json:"last_error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewRetryJob creates a pending job that becomes due at runAt.
func NewRetryJob(payload json.RawMessage, runAt time.Time) *RetryJob {
	now := time.Now().UTC()
	return &RetryJob{
		ID:        uuid.New(),
		Payload:   payload,
		Status:    JobStatusPending,
		RunAt:     runAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DispatchJob is the queue payload for an asynchronous dispatch. A payload
// with a single contact overall is dispatched with full channel fallback; a
// payload with several is fanned out as a bulk send.
type DispatchJob struct {
	ID               uuid.UUID   `json:"id"`
	Title            string      `json:"title"`
	Message          string      `json:"message"`
	Emails           []string    `json:"emails,omitempty"`
	Phones           []string    `json:"phones,omitempty"`
	TelegramChatIDs  []string    `json:"telegram_chat_ids,omitempty"`
	PreferredChannel ChannelKind `json:"preferred_channel,omitempty"`
	// Attempt counts deliveries of this job so far, so the bound on retries
	// survives the round-trip through the retry table.
	Attempt int `json:"attempt"`
}

// ContactCount is the number of individual addresses across all channels.
func (j *DispatchJob) ContactCount() int {
	return len(j.Emails) + len(j.Phones) + len(j.TelegramChatIDs)
}
