// Package relay turns received mesh packets into router forwards and sends
// the router's verdict back to the sender as a text acknowledgment.
package relay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"meshbridge/internal/address"
	"meshbridge/internal/constants"
	"meshbridge/internal/filtering"
	"meshbridge/internal/logger"
	"meshbridge/internal/radio"
	"meshbridge/pkg/cel"
	"meshbridge/pkg/logging"
	"meshbridge/pkg/metrics"
	"meshbridge/pkg/models"
	"meshbridge/pkg/tracing"
)

type Forwarder interface {
	Forward(ctx context.Context, req models.ForwardRequest) (models.ForwardOutcome, error)
}

type Sender interface {
	SendText(ctx context.Context, text string, to address.NodeID) error
}

type Deduplicator interface {
	IsUnique(ctx context.Context, from, packetID uint32) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event *models.RelayEvent) error
}

// Relay is the radio.Handler for inbound traffic. Packets are handled
// synchronously in the order the device delivers them.
type Relay struct {
	filter    *filtering.Filter
	forwarder Forwarder
	sender    Sender
	dedup     Deduplicator
	events    EventPublisher
	logger    logger.Logger
	now       func() time.Time
}

var _ radio.Handler = (*Relay)(nil)

type Option func(*Relay)

// WithDeduplicator drops rebroadcasts of packets already relayed.
func WithDeduplicator(d Deduplicator) Option {
	return func(r *Relay) {
		r.dedup = d
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(r *Relay) {
		r.events = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

func New(filter *filtering.Filter, forwarder Forwarder, sender Sender, log logger.Logger, opts ...Option) *Relay {
	r := &Relay{
		filter:    filter,
		forwarder: forwarder,
		sender:    sender,
		logger:    log,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) HandlePacket(ctx context.Context, pkt radio.Packet) {
	ctx = logging.WithTraceID(ctx, uuid.NewString())
	ctx = logging.WithPacketID(ctx, pkt.ID)
	ctx, span := tracing.StartSpan(ctx, "relay.handle_packet",
		attribute.Int64("mesh.packet_id", int64(pkt.ID)),
	)
	defer span.End()

	pkt.ReceivedAt = r.now()

	if pkt.Text == nil || *pkt.Text == "" {
		metrics.IncPacket("no_payload")
		return
	}
	text := *pkt.Text

	r.logger.InfowCtx(ctx, "Packet received",
		"from", pkt.From,
		"to", pkt.To,
		"payload", text,
	)

	if r.isDuplicate(ctx, pkt) {
		metrics.IncPacket("duplicate")
		r.logger.DebugwCtx(ctx, "Duplicate packet, ignoring")
		return
	}

	if !r.filter.Eligible(pkt.Text) {
		metrics.IncPacket("filtered")
		r.logger.InfowCtx(ctx, "Command not whitelisted, ignoring")
		return
	}

	from, err := address.Normalize(pkt.From)
	if err != nil {
		metrics.IncPacket("invalid_sender")
		tracing.RecordError(span, err)
		r.logger.ErrorwCtx(ctx, "Dropping packet with unusable sender",
			"from", pkt.From,
			"error", err,
		)
		return
	}

	to, hasTo, err := address.NormalizeOptional(pkt.To)
	if err != nil {
		r.logger.WarnwCtx(ctx, "Ignoring unusable recipient",
			"to", pkt.To,
			"error", err,
		)
		hasTo = false
	}

	span.SetAttributes(attribute.Int64("mesh.from", int64(from)))

	if !r.filter.Narrow(ctx, cel.Input{
		Message:   text,
		From:      uint32(from),
		To:        uint32(to),
		Channel:   pkt.Channel,
		Broadcast: !hasTo || to.IsBroadcast(),
	}) {
		metrics.IncPacket("filtered")
		r.logger.InfowCtx(ctx, "Command rejected by filter expression")
		return
	}

	req := models.ForwardRequest{
		Message:   text,
		Timestamp: pkt.ReceivedAt.Unix(),
		From:      uint32(from),
	}
	if hasTo {
		toNum := uint32(to)
		req.To = &toNum
	}

	outcome, fwdErr := r.forwarder.Forward(ctx, req)
	ackErr := r.acknowledge(ctx, from, outcome)

	metrics.IncPacket("relayed")

	r.publish(ctx, models.NewRelayEventBuilder(constants.EventTypeRelayForwarded).
		WithPacketID(pkt.ID).
		WithFrom(uint32(from)).
		WithMessage(text).
		WithOutcome(outcome).
		WithStatus(forwardStatus(outcome)).
		WithError(fwdErr).
		WithTraceID(logging.GetTraceID(ctx)).
		WithTimestamp(pkt.ReceivedAt).
		Build())

	ackStatus := "sent"
	if ackErr != nil {
		ackStatus = "failed"
	}
	r.publish(ctx, models.NewRelayEventBuilder(constants.EventTypeRelayAcked).
		WithPacketID(pkt.ID).
		WithTo(uint32(from)).
		WithOutcome(outcome).
		WithStatus(ackStatus).
		WithError(ackErr).
		WithTraceID(logging.GetTraceID(ctx)).
		Build())
}

// HandleConnected logs the node the radio reports after (re)connecting.
func (r *Relay) HandleConnected(ctx context.Context, info radio.NodeInfo) {
	node := address.NodeID(info.NodeNum)
	r.logger.InfowCtx(ctx, "Radio connection established",
		"node_num", node.String(),
		"node_id", node.Hex(),
		"firmware", info.FirmwareVersion,
		"reboot_count", info.RebootCount,
	)
}

func (r *Relay) acknowledge(ctx context.Context, to address.NodeID, outcome models.ForwardOutcome) error {
	ack := TruncateText(outcome.AckText, constants.MaxTextBytes)

	sendCtx, cancel := context.WithTimeout(ctx, constants.RadioSendTimeout)
	defer cancel()

	start := time.Now()
	err := r.sender.SendText(sendCtx, ack, to)
	if err != nil {
		metrics.IncAck("failed")
		metrics.ObserveRadioSend("ack", "error", time.Since(start))
		r.logger.ErrorwCtx(ctx, "Failed to send acknowledgment",
			"to", to.String(),
			"delivered", outcome.Delivered,
			"error", err,
		)
		return err
	}

	metrics.IncAck("sent")
	metrics.ObserveRadioSend("ack", "success", time.Since(start))
	r.logger.InfowCtx(ctx, "Acknowledgment sent",
		"to", to.String(),
		"delivered", outcome.Delivered,
		"ack", ack,
	)
	return nil
}

func (r *Relay) isDuplicate(ctx context.Context, pkt radio.Packet) bool {
	if r.dedup == nil || pkt.ID == 0 {
		return false
	}
	from, err := address.Normalize(pkt.From)
	if err != nil {
		return false
	}

	unique, err := r.dedup.IsUnique(ctx, uint32(from), pkt.ID)
	if err != nil {
		r.logger.WarnwCtx(ctx, "Dedup check failed, dropping packet (fallback: deny)",
			"error", err,
		)
		return true
	}
	return !unique
}

func (r *Relay) publish(ctx context.Context, event *models.RelayEvent) {
	if r.events == nil {
		return
	}
	if err := r.events.Publish(ctx, event); err != nil {
		r.logger.WarnwCtx(ctx, "Failed to publish relay event",
			"event_type", event.Type,
			"error", err,
		)
	}
}

func forwardStatus(outcome models.ForwardOutcome) string {
	switch {
	case outcome.Delivered:
		return "delivered"
	case outcome.StatusCode == 0:
		return "unreachable"
	default:
		return "rejected"
	}
}
