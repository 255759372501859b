package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifly/gateway/internal/notification_service/adapters/channel"
	"github.com/notifly/gateway/internal/notification_service/domain"
	"github.com/notifly/gateway/internal/notification_service/repository"
)

// Dispatcher walks the candidate channels for one logical recipient, attempts
// delivery in priority order and records every attempt. The walk is strictly
// sequential within a call: a fallback decision depends on the prior
// attempt's outcome.
type Dispatcher struct {
	senders        channel.Registry
	attempts       repository.AttemptLogRepository
	order          []domain.ChannelKind
	attemptTimeout time.Duration
	workerLimit    int
	logger         *slog.Logger
}

// NewDispatcher creates a Dispatcher. order defaults to
// domain.DefaultChannelOrder; attemptTimeout bounds each provider call;
// workerLimit bounds the bulk fan-out pool.
func NewDispatcher(
	senders channel.Registry,
	attempts repository.AttemptLogRepository,
	order []domain.ChannelKind,
	attemptTimeout time.Duration,
	workerLimit int,
	logger *slog.Logger,
) *Dispatcher {
	if len(order) == 0 {
		order = domain.DefaultChannelOrder
	}
	if attemptTimeout <= 0 {
		attemptTimeout = 10 * time.Second
	}
	if workerLimit <= 0 {
		workerLimit = 8
	}
	return &Dispatcher{
		senders:        senders,
		attempts:       attempts,
		order:          order,
		attemptTimeout: attemptTimeout,
		workerLimit:    workerLimit,
		logger:         logger.With("service", "dispatcher"),
	}
}

// Dispatch delivers msg to the first destination that accepts it.
//
// destinations maps each channel to zero or more candidate addresses for a
// single logical recipient; addresses within a channel are tried in list
// order before the walk moves to the next channel. preferred, when valid and
// backed by at least one candidate, is moved to the front of the try-order.
//
// The first successful attempt short-circuits the whole walk. If every
// candidate fails the result carries delivered=false and the last attempt's
// error; a "no channel worked" scenario is never an error return. The only
// error is domain.ErrNoDestinations, when there is nothing to try at all.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	msg domain.Message,
	destinations map[domain.ChannelKind][]string,
	preferred domain.ChannelKind,
) (*domain.DispatchResult, error) {
	result := &domain.DispatchResult{Attempts: []domain.AttemptRecord{}}

	total := 0
	for _, addrs := range destinations {
		total += len(addrs)
	}
	if total == 0 {
		dispatchRequestsCounter.WithLabelValues("no_destination").Inc()
		result.FinalError = domain.ErrNoDestinations.Error()
		return result, domain.ErrNoDestinations
	}

	order := d.tryOrder(destinations, preferred)
	lastError := ""
	allPermanent := true

	for _, kind := range order {
		addrs := destinations[kind]
		if len(addrs) == 0 {
			continue
		}
		sender, ok := d.senders[kind]
		if !ok {
			d.logger.WarnContext(ctx, "No adapter registered for channel", "channel", kind)
			continue
		}

		for _, addr := range addrs {
			outcome := d.attemptSend(ctx, sender, msg, addr)
			rec := d.recordAttempt(ctx, msg, kind, addr, outcome)
			result.Attempts = append(result.Attempts, rec)

			if outcome.Success {
				result.Delivered = true
				result.Channel = kind
				dispatchRequestsCounter.WithLabelValues("delivered").Inc()
				d.logger.InfoContext(ctx, "Notification delivered",
					"channel", kind, "attempts", len(result.Attempts))
				return result, nil
			}
			lastError = outcome.ErrorDetail
			allPermanent = allPermanent && outcome.Permanent
			d.logger.WarnContext(ctx, "Delivery attempt failed",
				"channel", kind, "error", outcome.ErrorDetail)
		}
	}

	if lastError == "" {
		lastError = "no working channel"
	}
	result.FinalError = lastError
	result.Permanent = allPermanent && len(result.Attempts) > 0
	dispatchRequestsCounter.WithLabelValues("failed").Inc()
	return result, nil
}

// tryOrder returns the channel walk order: the configured priority with
// preferred moved to the front when it actually has candidates. Ties within a
// channel are broken by input list order, never by address content.
func (d *Dispatcher) tryOrder(destinations map[domain.ChannelKind][]string, preferred domain.ChannelKind) []domain.ChannelKind {
	order := make([]domain.ChannelKind, 0, len(d.order))
	if preferred.Valid() && len(destinations[preferred]) > 0 {
		order = append(order, preferred)
	}
	for _, kind := range d.order {
		if len(order) > 0 && kind == order[0] {
			continue
		}
		order = append(order, kind)
	}
	return order
}

// attemptSend performs exactly one adapter invocation under the per-attempt
// timeout. A panicking adapter is converted to a failed outcome; nothing
// escapes past the engine.
func (d *Dispatcher) attemptSend(ctx context.Context, sender channel.Sender, msg domain.Message, addr string) (outcome domain.DeliveryOutcome) {
	timer := prometheus.NewTimer(attemptDurationHist.WithLabelValues(string(sender.Kind())))
	defer timer.ObserveDuration()

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Channel adapter panicked", "channel", sender.Kind(), "panic", r)
			outcome = domain.DeliveryOutcome{ErrorDetail: fmt.Sprintf("adapter panic: %v", r)}
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	return sender.Send(attemptCtx, addr, msg.Title, msg.Body)
}

// recordAttempt persists the audit entry for one invocation. A persistence
// failure is logged and does not abort the dispatch: the in-memory attempt
// still reaches the caller.
func (d *Dispatcher) recordAttempt(ctx context.Context, msg domain.Message, kind domain.ChannelKind, addr string, outcome domain.DeliveryOutcome) domain.AttemptRecord {
	status := domain.AttemptStatusFailed
	if outcome.Success {
		status = domain.AttemptStatusSent
	}
	dispatchAttemptsCounter.WithLabelValues(string(kind), string(status)).Inc()

	rec := domain.AttemptRecord{
		ID:           uuid.New(),
		Title:        msg.Title,
		Body:         msg.Body,
		Channel:      kind,
		Address:      addr,
		Status:       status,
		ErrorMessage: outcome.ErrorDetail,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := d.attempts.Create(ctx, &rec); err != nil {
		d.logger.ErrorContext(ctx, "Failed to persist attempt record",
			"channel", kind, "address", addr, "error", err)
	}
	return rec
}
