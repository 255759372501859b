// Package channel contains the delivery adapters, one per transport. Every
// adapter wraps exactly one outbound provider call into a uniform
// DeliveryOutcome: transport errors, timeouts, non-success statuses and
// missing credentials all surface as failed outcomes, never as errors or
// panics past the adapter boundary.
package channel

import (
	"context"

	"github.com/notifly/gateway/internal/notification_service/domain"
)

// Sender is the single capability the dispatcher depends on. One concrete
// type per channel; the dispatcher selects by ChannelKind and never branches
// on transport specifics.
type Sender interface {
	Kind() domain.ChannelKind
	Send(ctx context.Context, address, title, body string) domain.DeliveryOutcome
}

// Registry maps channels to their adapters.
type Registry map[domain.ChannelKind]Sender

// NewRegistry builds a registry from the given senders, keyed by kind.
func NewRegistry(senders ...Sender) Registry {
	reg := make(Registry, len(senders))
	for _, s := range senders {
		reg[s.Kind()] = s
	}
	return reg
}

func failure(detail string) domain.DeliveryOutcome {
	return domain.DeliveryOutcome{Success: false, ErrorDetail: detail}
}

// permanentFailure marks outcomes a retry cannot change: missing credentials
// or an unusable destination.
func permanentFailure(detail string) domain.DeliveryOutcome {
	return domain.DeliveryOutcome{Success: false, ErrorDetail: detail, Permanent: true}
}

func success() domain.DeliveryOutcome {
	return domain.DeliveryOutcome{Success: true}
}
