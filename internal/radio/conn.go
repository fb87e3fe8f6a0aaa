package radio

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"meshbridge/internal/address"
	"meshbridge/internal/logger"
	"meshbridge/pkg/errors"
	"meshbridge/pkg/metrics"
)

var (
	ErrNotOpen      = stderrors.New("radio device not open")
	ErrNotConnected = stderrors.New("radio has not completed its handshake")
)

// Conn is the single owned handle to a Device. It is shared by the inbound
// relay and the outbound endpoint; every send goes through one send slot.
type Conn struct {
	device Device
	logger logger.Logger

	// sendSlot holds one token while a send is in progress.
	sendSlot chan struct{}

	open      atomic.Bool
	connected atomic.Bool
	closeOnce sync.Once
	closeErr  error

	nodeMu sync.RWMutex
	node   NodeInfo
}

func NewConn(device Device, log logger.Logger) *Conn {
	return &Conn{device: device, logger: log, sendSlot: make(chan struct{}, 1)}
}

func (c *Conn) Open(ctx context.Context) error {
	if err := c.device.Open(ctx); err != nil {
		return errors.ErrTransport.
			WithMessage("failed to open radio device").
			WithCause(err)
	}
	c.open.Store(true)
	return nil
}

// SendText sends text to the node to. Calls from any goroutine are
// serialized; a caller whose ctx ends while waiting for its turn gets a
// transport error and nothing is sent.
func (c *Conn) SendText(ctx context.Context, text string, to address.NodeID) error {
	if !c.open.Load() {
		return errors.ErrTransport.WithCause(ErrNotOpen)
	}

	select {
	case c.sendSlot <- struct{}{}:
	case <-ctx.Done():
		return errors.ErrTransport.WithCause(fmt.Errorf("waiting to send: %w", ctx.Err()))
	}
	defer func() { <-c.sendSlot }()

	if err := ctx.Err(); err != nil {
		return errors.ErrTransport.WithCause(err)
	}

	start := time.Now()
	err := c.device.SendText(ctx, text, uint32(to))
	elapsed := time.Since(start)

	if err != nil {
		c.logger.WarnwCtx(ctx, "Radio send failed",
			"to", to.String(),
			"duration", elapsed,
			"error", err,
		)
		return errors.ErrTransport.WithCause(err)
	}

	c.logger.DebugwCtx(ctx, "Radio send complete",
		"to", to.String(),
		"bytes", len(text),
		"duration", elapsed,
	)
	return nil
}

// Run delivers device events to h until ctx is done or the device closes.
// A panic while handling one packet is logged and does not stop the loop.
func (c *Conn) Run(ctx context.Context, h Handler) error {
	if !c.open.Load() {
		return errors.ErrTransport.WithCause(ErrNotOpen)
	}

	err := c.device.Receive(ctx, &guardedHandler{conn: c, next: h})
	if err != nil && ctx.Err() == nil {
		return errors.ErrTransport.WithMessage("radio receive loop failed").WithCause(err)
	}
	return nil
}

func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		c.connected.Store(false)
		metrics.SetRadioConnected(false)
		if err := c.device.Close(); err != nil {
			c.closeErr = fmt.Errorf("failed to close radio device: %w", err)
		}
	})
	return c.closeErr
}

func (c *Conn) IsOpen() bool {
	return c.open.Load()
}

func (c *Conn) Connected() bool {
	return c.connected.Load()
}

func (c *Conn) Node() NodeInfo {
	c.nodeMu.RLock()
	defer c.nodeMu.RUnlock()
	return c.node
}

// Status reports nil once the device is open and has announced itself.
func (c *Conn) Status() error {
	if !c.open.Load() {
		return ErrNotOpen
	}
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return nil
}

func (c *Conn) markConnected(info NodeInfo) {
	c.nodeMu.Lock()
	c.node = info
	c.nodeMu.Unlock()
	c.connected.Store(true)
	metrics.SetRadioConnected(true)
}

type guardedHandler struct {
	conn *Conn
	next Handler
}

func (g *guardedHandler) HandlePacket(ctx context.Context, pkt Packet) {
	defer func() {
		if r := recover(); r != nil {
			err := errors.RecoverPanic(r)
			g.conn.logger.ErrorwCtx(ctx, "Panic recovered while handling packet",
				"packet_id", pkt.ID,
				"error", err,
			)
		}
	}()
	g.next.HandlePacket(ctx, pkt)
}

func (g *guardedHandler) HandleConnected(ctx context.Context, info NodeInfo) {
	g.conn.markConnected(info)
	defer func() {
		if r := recover(); r != nil {
			g.conn.logger.ErrorwCtx(ctx, "Panic recovered while handling connection",
				"error", errors.RecoverPanic(r),
			)
		}
	}()
	g.next.HandleConnected(ctx, info)
}
