package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

type RelayEventBuilder struct {
	event *RelayEvent
}

func NewRelayEventBuilder(eventType string) *RelayEventBuilder {
	return &RelayEventBuilder{
		event: &RelayEvent{
			ID:   uuid.NewString(),
			Type: eventType,
		},
	}
}

func (b *RelayEventBuilder) WithPacketID(id uint32) *RelayEventBuilder {
	b.event.PacketID = id
	return b
}

func (b *RelayEventBuilder) WithFrom(from uint32) *RelayEventBuilder {
	b.event.From = strconv.FormatUint(uint64(from), 10)
	return b
}

func (b *RelayEventBuilder) WithTo(to uint32) *RelayEventBuilder {
	b.event.To = strconv.FormatUint(uint64(to), 10)
	return b
}

func (b *RelayEventBuilder) WithMessage(message string) *RelayEventBuilder {
	b.event.Message = message
	return b
}

func (b *RelayEventBuilder) WithOutcome(outcome ForwardOutcome) *RelayEventBuilder {
	delivered := outcome.Delivered
	b.event.Delivered = &delivered
	b.event.AckText = outcome.AckText
	return b
}

func (b *RelayEventBuilder) WithStatus(status string) *RelayEventBuilder {
	b.event.Status = status
	return b
}

func (b *RelayEventBuilder) WithError(err error) *RelayEventBuilder {
	if err != nil {
		b.event.Error = err.Error()
	}
	return b
}

func (b *RelayEventBuilder) WithTraceID(traceID string) *RelayEventBuilder {
	b.event.TraceID = traceID
	return b
}

func (b *RelayEventBuilder) WithTimestamp(ts time.Time) *RelayEventBuilder {
	b.event.Timestamp = ts
	return b
}

func (b *RelayEventBuilder) Build() *RelayEvent {
	if b.event.Timestamp.IsZero() {
		b.event.Timestamp = time.Now()
	}
	return b.event
}
