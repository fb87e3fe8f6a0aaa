// Package radio is the bridge's view of a Meshtastic radio: a device that
// can be opened, closed, asked to send text, and that reports received
// packets and connection events to a single handler.
package radio

import (
	"context"
	"time"
)

// BroadcastAddr is the destination for packets sent to every node.
const BroadcastAddr uint32 = 0xFFFFFFFF

// Packet is one received mesh packet. From and To are passed through as the
// device reported them; use the address package to normalize.
type Packet struct {
	ID      uint32
	From    interface{}
	To      interface{}
	Text    *string
	Channel uint32
	// ReceivedAt is stamped by the relay when it starts processing.
	ReceivedAt time.Time
}

// NodeInfo describes the locally attached node once the device has
// finished its configuration handshake.
type NodeInfo struct {
	NodeNum         uint32
	FirmwareVersion string
	RebootCount     uint32
}

// Handler receives device events. A device delivers events one at a time in
// arrival order and never calls a Handler concurrently with itself.
type Handler interface {
	HandlePacket(ctx context.Context, pkt Packet)
	HandleConnected(ctx context.Context, info NodeInfo)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields ignore the
// event.
type HandlerFuncs struct {
	OnPacket    func(ctx context.Context, pkt Packet)
	OnConnected func(ctx context.Context, info NodeInfo)
}

func (h HandlerFuncs) HandlePacket(ctx context.Context, pkt Packet) {
	if h.OnPacket != nil {
		h.OnPacket(ctx, pkt)
	}
}

func (h HandlerFuncs) HandleConnected(ctx context.Context, info NodeInfo) {
	if h.OnConnected != nil {
		h.OnConnected(ctx, info)
	}
}

// Device is a radio transport driver.
//
// Receive blocks, delivering events to h until ctx is done or the device is
// closed, in which case it returns nil. SendText is not required to be safe
// for concurrent use; Conn serializes it.
type Device interface {
	Open(ctx context.Context) error
	Close() error
	SendText(ctx context.Context, text string, to uint32) error
	Receive(ctx context.Context, h Handler) error
}
