package broker

import (
	"context"

	"meshbridge/pkg/models"
)

// Producer publishes relay events. Implementations must be safe for
// concurrent use by the relay and the outbound endpoint.
type Producer interface {
	Publish(ctx context.Context, event *models.RelayEvent) error
	Close() error
}

type NoopProducer struct{}

func (NoopProducer) Publish(context.Context, *models.RelayEvent) error { return nil }

func (NoopProducer) Close() error { return nil }
