// Package sim is an in-memory radio device. It records every send and lets
// callers inject received packets and connection events.
package sim

import (
	"context"
	"errors"
	"sync"

	"meshbridge/internal/radio"
)

var ErrClosed = errors.New("sim device closed")

type Sent struct {
	Text string
	To   uint32
}

type event struct {
	packet    *radio.Packet
	connected *radio.NodeInfo
}

type Device struct {
	mu      sync.Mutex
	sent    []Sent
	sendErr error
	openErr error
	opened  bool
	closed  bool

	autoConnect *radio.NodeInfo
	events      chan event
	done        chan struct{}
	closeOnce   sync.Once
}

type Option func(*Device)

// WithNodeInfo makes Receive announce info as soon as it starts.
func WithNodeInfo(info radio.NodeInfo) Option {
	return func(d *Device) {
		d.autoConnect = &info
	}
}

func WithOpenError(err error) Option {
	return func(d *Device) {
		d.openErr = err
	}
}

func New(opts ...Option) *Device {
	d := &Device{
		events: make(chan event, 256),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) Open(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return d.openErr
	}
	d.opened = true
	return nil
}

func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()
		close(d.done)
	})
	return nil
}

func (d *Device) SendText(_ context.Context, text string, to uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, Sent{Text: text, To: to})
	return nil
}

func (d *Device) Receive(ctx context.Context, h radio.Handler) error {
	if d.autoConnect != nil {
		h.HandleConnected(ctx, *d.autoConnect)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.done:
			return nil
		case ev := <-d.events:
			switch {
			case ev.packet != nil:
				h.HandlePacket(ctx, *ev.packet)
			case ev.connected != nil:
				h.HandleConnected(ctx, *ev.connected)
			}
		}
	}
}

// Inject queues pkt for delivery by Receive.
func (d *Device) Inject(pkt radio.Packet) {
	d.events <- event{packet: &pkt}
}

// InjectText queues a text packet.
func (d *Device) InjectText(id uint32, from, to interface{}, text string) {
	d.Inject(radio.Packet{ID: id, From: from, To: to, Text: &text})
}

// Connect queues a connection notification.
func (d *Device) Connect(info radio.NodeInfo) {
	d.events <- event{connected: &info}
}

// SetSendError makes subsequent sends fail with err. Nil restores success.
func (d *Device) SetSendError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendErr = err
}

func (d *Device) Sent() []Sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Sent, len(d.sent))
	copy(out, d.sent)
	return out
}

func (d *Device) Opened() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
