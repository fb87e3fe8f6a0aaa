// Package serial drives a Meshtastic node over its USB serial API using the
// length-prefixed protobuf stream protocol.
package serial

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"meshbridge/internal/logger"
	"meshbridge/internal/radio"
)

const (
	defaultHeartbeatInterval = 5 * time.Minute
	wakeSettle               = 100 * time.Millisecond
)

type Device struct {
	path      string
	dial      func() (io.ReadWriteCloser, error)
	heartbeat time.Duration
	logger    logger.Logger

	writeMu sync.Mutex
	port    io.ReadWriteCloser

	configID  atomic.Uint32
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

type Option func(*Device)

// WithDialer replaces opening the serial port, typically with an in-memory
// pipe.
func WithDialer(dial func() (io.ReadWriteCloser, error)) Option {
	return func(d *Device) {
		d.dial = dial
	}
}

func WithHeartbeatInterval(interval time.Duration) Option {
	return func(d *Device) {
		d.heartbeat = interval
	}
}

func New(path string, baudRate int, log logger.Logger, opts ...Option) *Device {
	d := &Device{
		path:      path,
		heartbeat: defaultHeartbeatInterval,
		logger:    log.With("component", "radio.serial"),
	}
	d.dial = func() (io.ReadWriteCloser, error) {
		return serial.Open(path, &serial.Mode{BaudRate: baudRate})
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open opens the port, wakes the node and asks it for its configuration.
// The node answers asynchronously; Receive reports completion through
// HandleConnected.
func (d *Device) Open(ctx context.Context) error {
	port, err := d.dial()
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}
	d.port = port

	if _, err := port.Write(wakeSequence()); err != nil {
		_ = port.Close()
		return fmt.Errorf("wake %s: %w", d.path, err)
	}

	select {
	case <-ctx.Done():
		_ = port.Close()
		return ctx.Err()
	case <-time.After(wakeSettle):
	}

	if err := d.requestConfig(); err != nil {
		_ = port.Close()
		return err
	}

	d.logger.Infow("Serial radio opened", "path", d.path)
	return nil
}

// SendText returns when the frame is written or ctx ends. A write abandoned
// on ctx keeps the port until it completes or Close unblocks it.
func (d *Device) SendText(ctx context.Context, text string, to uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload := encodeTextPacket(newPacketID(), to, text, true)
	done := make(chan error, 1)
	go func() {
		done <- d.write(payload)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send to !%08x on %s: %w", to, d.path, ctx.Err())
	}
}

// Receive reads frames until ctx is done or the device is closed. Closing
// is what unblocks the pending read, so a done ctx closes the device.
func (d *Device) Receive(ctx context.Context, h radio.Handler) error {
	if d.port == nil {
		return fmt.Errorf("receive on %s: device not open", d.path)
	}

	stop := make(chan struct{})
	defer close(stop)
	go d.keepAlive(ctx, stop)

	var node radio.NodeInfo
	fr := newFrameReader(d.port, func(line string) {
		d.logger.Debugw("Radio console", "line", line)
	})

	for {
		payload, err := fr.next()
		if err != nil {
			if d.closed.Load() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read %s: %w", d.path, err)
		}

		msg, err := decodeFromRadio(payload)
		if err != nil {
			d.logger.Debugw("Skipping undecodable frame", "error", err, "bytes", len(payload))
			continue
		}

		if msg.hasMyInfo {
			node.NodeNum = msg.myNodeNum
			node.RebootCount = msg.rebootCount
		}
		if msg.firmware != "" {
			node.FirmwareVersion = msg.firmware
		}
		if msg.hasComplete && msg.configComplete == d.configID.Load() {
			h.HandleConnected(ctx, node)
		}
		if msg.rebooted {
			d.logger.Warnw("Radio rebooted, requesting configuration again", "path", d.path)
			if err := d.requestConfig(); err != nil {
				d.logger.Errorw("Failed to request configuration after reboot", "error", err)
			}
		}
		if msg.packet != nil {
			h.HandlePacket(ctx, toPacket(msg.packet))
		}
	}
}

func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		if d.port == nil {
			return
		}
		// A stalled write holds writeMu; skip the disconnect frame and let
		// closing the port release it.
		if d.writeMu.TryLock() {
			if frame, err := encodeFrame(encodeDisconnect()); err == nil {
				_, _ = d.port.Write(frame)
			}
			d.writeMu.Unlock()
		}
		d.closeErr = d.port.Close()
	})
	return d.closeErr
}

func (d *Device) keepAlive(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(d.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = d.Close()
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := d.write(encodeHeartbeat()); err != nil {
				d.logger.Warnw("Radio heartbeat failed", "error", err)
			}
		}
	}
}

func (d *Device) requestConfig() error {
	id := newPacketID()
	d.configID.Store(id)
	if err := d.write(encodeWantConfig(id)); err != nil {
		return fmt.Errorf("request config from %s: %w", d.path, err)
	}
	return nil
}

func (d *Device) write(payload []byte) error {
	frame, err := encodeFrame(payload)
	if err != nil {
		return err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if d.port == nil {
		return fmt.Errorf("write %s: device not open", d.path)
	}
	_, err = d.port.Write(frame)
	return err
}

func toPacket(p *meshPacket) radio.Packet {
	pkt := radio.Packet{
		ID:      p.id,
		From:    p.from,
		To:      p.to,
		Channel: p.channel,
	}
	if p.hasData && p.portnum == portTextMessageApp {
		text := string(p.payload)
		pkt.Text = &text
	}
	return pkt
}

func newPacketID() uint32 {
	for {
		if id := rand.Uint32(); id != 0 {
			return id
		}
	}
}
