package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"meshbridge/internal/logger"
	"meshbridge/pkg/metrics"
	"meshbridge/pkg/models"
)

var (
	ErrQueueFull      = errors.New("relay event queue full")
	ErrProducerClosed = errors.New("relay event producer closed")
)

type queuedEvent struct {
	ctx   context.Context
	event *models.RelayEvent
}

// AsyncProducer hands events to a single background writer so Publish
// never waits on the broker. When the queue is full the event is dropped.
type AsyncProducer struct {
	inner   Producer
	topic   string
	timeout time.Duration
	logger  logger.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan queuedEvent
	done   chan struct{}
}

func NewAsyncProducer(inner Producer, topic string, size int, timeout time.Duration, log logger.Logger) *AsyncProducer {
	if size <= 0 {
		size = 1
	}
	p := &AsyncProducer{
		inner:   inner,
		topic:   topic,
		timeout: timeout,
		logger:  log,
		queue:   make(chan queuedEvent, size),
		done:    make(chan struct{}),
	}
	go p.loop()
	return p
}

// Publish queues event. The caller's cancellation does not reach the
// write; its trace context does.
func (p *AsyncProducer) Publish(ctx context.Context, event *models.RelayEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}

	select {
	case p.queue <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		metrics.IncEventDropped(p.topic)
		return ErrQueueFull
	}
}

func (p *AsyncProducer) loop() {
	defer close(p.done)
	for q := range p.queue {
		ctx, cancel := q.ctx, context.CancelFunc(func() {})
		if p.timeout > 0 {
			ctx, cancel = context.WithTimeout(q.ctx, p.timeout)
		}
		if err := p.inner.Publish(ctx, q.event); err != nil {
			p.logger.WarnwCtx(ctx, "Failed to publish relay event",
				"event_type", q.event.Type,
				"event_id", q.event.ID,
				"error", err,
			)
		}
		cancel()
	}
}

// Close stops accepting events, drains the queue and closes the wrapped
// producer.
func (p *AsyncProducer) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.inner.Close()
}
