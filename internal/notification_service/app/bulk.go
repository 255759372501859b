package app

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/notifly/gateway/internal/notification_service/domain"
)

// DispatchBulk fans msg out to every address in the three lists, treating
// each as an independent recipient. There is no cross-recipient fallback: a
// bulk entry knows a single channel for each address, so one recipient's
// email failure never spills onto another recipient's phone.
//
// TotalRecipients counts the raw inputs before normalization; duplicates
// are sent to twice, without deduplication. Per-destination dispatches run
// concurrently, bounded by the worker limit; each targets a disjoint
// destination and writes disjoint attempt records.
func (d *Dispatcher) DispatchBulk(
	ctx context.Context,
	msg domain.Message,
	emails, phones, chatIDs []string,
	preferred domain.ChannelKind,
) *domain.BulkResult {
	targets := make([]domain.Destination, 0, len(emails)+len(phones)+len(chatIDs))
	for _, email := range emails {
		targets = append(targets, domain.Destination{Channel: domain.ChannelEmail, Address: email})
	}
	for _, phone := range phones {
		targets = append(targets, domain.Destination{Channel: domain.ChannelSMS, Address: domain.NormalizePhone(phone)})
	}
	for _, chatID := range chatIDs {
		targets = append(targets, domain.Destination{Channel: domain.ChannelTelegram, Address: chatID})
	}

	result := &domain.BulkResult{
		TotalRecipients: len(targets),
		Details:         make([]domain.BulkDetail, len(targets)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workerLimit)

	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			detail := domain.BulkDetail{Contact: target.Address, Channel: target.Channel}

			res, err := d.Dispatch(gctx, msg,
				map[domain.ChannelKind][]string{target.Channel: {target.Address}},
				preferred)
			switch {
			case err != nil:
				detail.Message = err.Error()
			case res.Delivered:
				detail.Success = true
				detail.Message = "sent"
			default:
				detail.Message = res.FinalError
			}

			result.Details[i] = detail
			return nil
		})
	}
	// Workers only report through their preallocated detail slot, so the
	// group never returns an error.
	_ = g.Wait()

	for _, detail := range result.Details {
		if detail.Success {
			result.Successful++
			bulkRecipientsCounter.WithLabelValues("success").Inc()
		} else {
			result.Failed++
			bulkRecipientsCounter.WithLabelValues("failed").Inc()
		}
	}
	return result
}
