package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChannelKind identifies a delivery channel. The set is closed: adding a
// channel means adding one adapter, the dispatch walk stays untouched.
type ChannelKind string

const (
	ChannelTelegram ChannelKind = "telegram"
	ChannelEmail    ChannelKind = "email"
	ChannelSMS      ChannelKind = "sms"
)

// DefaultChannelOrder is the fallback priority: cheapest and most immediate
// channel first.
var DefaultChannelOrder = []ChannelKind{ChannelTelegram, ChannelEmail, ChannelSMS}

// Valid reports whether k is one of the known channels.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelTelegram, ChannelEmail, ChannelSMS:
		return true
	}
	return false
}

// Message is the immutable content unit handed to the dispatcher. It is never
// mutated once dispatch begins.
type Message struct {
	Title     string
	Body      string
	CreatedAt time.Time
}

// NewMessage stamps the message with its creation time.
func NewMessage(title, body string) Message {
	return Message{Title: title, Body: body, CreatedAt: time.Now().UTC()}
}

// Destination is a channel-specific address for a single recipient.
type Destination struct {
	Channel ChannelKind
	Address string
}

// DeliveryOutcome is the result of exactly one adapter invocation.
// Never partially successful. Permanent marks failures that a later retry
// cannot fix, such as missing provider credentials or an empty address.
type DeliveryOutcome struct {
	Success     bool
	ErrorDetail string
	Permanent   bool
}

// AttemptStatus is the terminal state of one delivery attempt.
type AttemptStatus string

const (
	AttemptStatusSent   AttemptStatus = "sent"
	AttemptStatusFailed AttemptStatus = "failed"
)

// Valid reports whether s is a known attempt status.
func (s AttemptStatus) Valid() bool {
	return s == AttemptStatusSent || s == AttemptStatusFailed
}

// AttemptRecord is the durable audit entry for one adapter invocation.
// Records are append-only: created once, never updated or deleted.
type AttemptRecord struct {
	ID           uuid.UUID     `json:"id"`
	Title        string        `json:"title"`
	Body         string        `json:"body"`
	Channel      ChannelKind   `json:"channel"`
	Address      string        `json:"address"`
	Status       AttemptStatus `json:"status"`
	ErrorMessage string        `json:"error_message,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// AttemptFilter narrows attempt log listings.
type AttemptFilter struct {
	Channel *ChannelKind
	Status  *AttemptStatus
	Limit   int
}

// DispatchResult is the terminal value returned by the dispatcher.
// Permanent is set when delivery failed and every attempt failed for a
// reason a retry cannot fix, so the retry shell must not reschedule.
type DispatchResult struct {
	Delivered  bool            `json:"delivered"`
	Channel    ChannelKind     `json:"channel,omitempty"`
	FinalError string          `json:"final_error,omitempty"`
	Permanent  bool            `json:"-"`
	Attempts   []AttemptRecord `json:"attempts"`
}

// BulkDetail is the per-destination outcome of a bulk send.
type BulkDetail struct {
	Contact string      `json:"contact"`
	Channel ChannelKind `json:"channel"`
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
}

// BulkResult aggregates a bulk fan-out. It is owned by the caller and is not
// persisted as its own entity.
type BulkResult struct {
	TotalRecipients int          `json:"total_recipients"`
	Successful      int          `json:"successful"`
	Failed          int          `json:"failed"`
	Details         []BulkDetail `json:"details"`
}
