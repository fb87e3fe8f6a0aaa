package radio_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshbridge/internal/address"
	"meshbridge/internal/logger"
	"meshbridge/internal/radio"
	"meshbridge/internal/radio/sim"
	apperrors "meshbridge/pkg/errors"
)

func openConn(t *testing.T, dev *sim.Device) *radio.Conn {
	t.Helper()
	conn := radio.NewConn(dev, logger.NopLogger())
	require.NoError(t, conn.Open(context.Background()))
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestConnOpenFailureIsTransportError(t *testing.T) {
	dev := sim.New(sim.WithOpenError(errors.New("no such file or directory")))
	conn := radio.NewConn(dev, logger.NopLogger())

	err := conn.Open(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))
	assert.False(t, conn.IsOpen())
}

func TestConnSendBeforeOpen(t *testing.T) {
	conn := radio.NewConn(sim.New(), logger.NopLogger())

	err := conn.SendText(context.Background(), "hi", 1)
	assert.True(t, apperrors.IsTransport(err))
	assert.ErrorIs(t, err, radio.ErrNotOpen)
}

func TestConnSendText(t *testing.T) {
	dev := sim.New()
	conn := openConn(t, dev)

	require.NoError(t, conn.SendText(context.Background(), "✅ Message delivered!", 123))
	assert.Equal(t, []sim.Sent{{Text: "✅ Message delivered!", To: 123}}, dev.Sent())

	dev.SetSendError(errors.New("queue full"))
	err := conn.SendText(context.Background(), "again", 123)
	assert.True(t, apperrors.IsTransport(err))
	assert.Len(t, dev.Sent(), 1)
}

func TestConnSerializesConcurrentSends(t *testing.T) {
	dev := &countingDevice{}
	conn := radio.NewConn(dev, logger.NopLogger())
	require.NoError(t, conn.Open(context.Background()))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = conn.SendText(context.Background(), "msg", address.NodeID(i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, dev.calls)
	assert.Equal(t, 1, dev.maxInFlight)
}

func TestConnRunDeliversInOrderAndSurvivesPanics(t *testing.T) {
	dev := sim.New(sim.WithNodeInfo(radio.NodeInfo{NodeNum: 0xa1b2c3d4, FirmwareVersion: "2.3.2"}))
	conn := openConn(t, dev)

	var mu sync.Mutex
	var seen []uint32
	handler := radio.HandlerFuncs{
		OnPacket: func(ctx context.Context, pkt radio.Packet) {
			if pkt.ID == 2 {
				panic("bad packet")
			}
			mu.Lock()
			seen = append(seen, pkt.ID)
			mu.Unlock()
		},
	}

	for i := uint32(1); i <= 4; i++ {
		dev.InjectText(i, 123, nil, "!ping")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- conn.Run(ctx, handler) }()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []uint32{1, 3, 4}, seen)
	mu.Unlock()

	assert.True(t, conn.Connected())
	assert.NoError(t, conn.Status())
	assert.Equal(t, uint32(0xa1b2c3d4), conn.Node().NodeNum)

	cancel()
	require.NoError(t, <-done)
}

func TestConnCloseIsIdempotent(t *testing.T) {
	dev := sim.New()
	conn := radio.NewConn(dev, logger.NopLogger())
	require.NoError(t, conn.Open(context.Background()))

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.True(t, dev.Closed())
	assert.ErrorIs(t, conn.Status(), radio.ErrNotOpen)
}

func TestStatusBeforeHandshake(t *testing.T) {
	conn := openConn(t, sim.New())
	assert.ErrorIs(t, conn.Status(), radio.ErrNotConnected)
}

type countingDevice struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	calls       int
}

func (d *countingDevice) Open(context.Context) error { return nil }
func (d *countingDevice) Close() error               { return nil }
func (d *countingDevice) Receive(ctx context.Context, _ radio.Handler) error {
	<-ctx.Done()
	return nil
}

func (d *countingDevice) SendText(context.Context, string, uint32) error {
	d.mu.Lock()
	d.inFlight++
	d.calls++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	d.mu.Unlock()

	time.Sleep(time.Millisecond)

	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()
	return nil
}

// stalledDevice blocks every send until release is closed, ignoring ctx
// the way a wedged serial write would.
type stalledDevice struct {
	countingDevice
	release chan struct{}
	started chan struct{}
}

func (d *stalledDevice) SendText(context.Context, string, uint32) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	d.started <- struct{}{}
	<-d.release
	return nil
}

func TestConnSendGivesUpWhileWaitingForStalledSend(t *testing.T) {
	dev := &stalledDevice{release: make(chan struct{}), started: make(chan struct{}, 1)}
	conn := radio.NewConn(dev, logger.NopLogger())
	require.NoError(t, conn.Open(context.Background()))

	first := make(chan error, 1)
	go func() {
		first <- conn.SendText(context.Background(), "ack", 123)
	}()
	<-dev.started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := conn.SendText(ctx, "outbound", 456)

	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)

	close(dev.release)
	require.NoError(t, <-first)
	dev.mu.Lock()
	assert.Equal(t, 1, dev.calls)
	dev.mu.Unlock()
}

func TestConnSendWithCancelledContext(t *testing.T) {
	dev := sim.New()
	conn := openConn(t, dev)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := conn.SendText(ctx, "hi", 1)
	assert.True(t, apperrors.IsTransport(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dev.Sent())
}
