package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// ForwardRequest is the body POSTed to the router for one eligible packet.
// Node numbers go over the wire as decimal strings.
type ForwardRequest struct {
	Message   string
	Timestamp int64
	From      uint32
	To        *uint32
}

type forwardRequestWire struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
}

func (r ForwardRequest) MarshalJSON() ([]byte, error) {
	wire := forwardRequestWire{
		Message:   r.Message,
		Timestamp: r.Timestamp,
		From:      strconv.FormatUint(uint64(r.From), 10),
	}
	if r.To != nil {
		wire.To = strconv.FormatUint(uint64(*r.To), 10)
	}
	return json.Marshal(wire)
}

// ForwardOutcome is what the router's answer means for the original sender.
type ForwardOutcome struct {
	Delivered bool
	AckText   string
	// StatusCode is zero when no HTTP response was received.
	StatusCode int
}

// OutboundSendRequest is the body accepted by POST /send-message. To is
// either a JSON string or a JSON number.
type OutboundSendRequest struct {
	To      interface{} `json:"to"`
	Message string      `json:"message"`
}

type OutboundSendResponse struct {
	Status string `json:"status"`
}

// RelayEvent is published to the event stream for every forward, ack and
// outbound injection.
type RelayEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	PacketID  uint32    `json:"packet_id,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Message   string    `json:"message,omitempty"`
	Delivered *bool     `json:"delivered,omitempty"`
	AckText   string    `json:"ack_text,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
