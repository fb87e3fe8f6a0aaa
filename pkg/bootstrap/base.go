// Package bootstrap holds the process-level resources shared by the bridge
// command: configuration, logger, the relay event producer and Redis.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"meshbridge/internal/broker"
	"meshbridge/internal/config"
	"meshbridge/internal/logger"
)

type Base struct {
	Config   *config.Config
	Logger   logger.Logger
	Producer broker.Producer
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config:   cfg,
		Logger:   log,
		Producer: broker.NoopProducer{},
	}
}

// InitBroker replaces the no-op producer with the one broker.type selects.
func (b *Base) InitBroker() error {
	producer, err := broker.NewProducer(b.Config.Broker, b.Logger)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	b.Producer = producer
	return nil
}

// Shutdown runs release first, then closes the producer so events from
// in-flight packets can still be written. All errors are joined.
func (b *Base) Shutdown(ctx context.Context, release func(ctx context.Context) []error) error {
	var errs []error
	if release != nil {
		errs = append(errs, release(ctx)...)
	}
	if err := b.Producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("producer close error: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}

	b.Logger.InfowCtx(ctx, "Bridge resources released")
	return nil
}
