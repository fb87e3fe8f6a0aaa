// Package readiness holds bridge startup until the router's health
// endpoint answers 200.
package readiness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"meshbridge/internal/config"
	"meshbridge/internal/constants"
	"meshbridge/internal/logger"
	"meshbridge/pkg/metrics"
	"meshbridge/pkg/retry"
)

type State int32

const (
	NotReady State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "READY"
	}
	return "NOT_READY"
}

// Gate probes the router health URL at a fixed interval. It moves from
// NotReady to Ready once and never back.
type Gate struct {
	url      string
	interval time.Duration
	client   *http.Client
	timer    backoff.Timer
	logger   logger.Logger
	state    atomic.Int32
}

type Option func(*Gate)

func WithHTTPClient(client *http.Client) Option {
	return func(g *Gate) {
		g.client = client
	}
}

// WithTimer replaces the wall-clock wait between probes.
func WithTimer(timer backoff.Timer) Option {
	return func(g *Gate) {
		g.timer = timer
	}
}

func NewGate(cfg config.RouterConfig, log logger.Logger, opts ...Option) *Gate {
	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = constants.DefaultProbeInterval
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.HealthCheckTimeout
	}

	g := &Gate{
		url:      cfg.HealthURL,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   log.With("component", "readiness"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) State() State {
	return State(g.state.Load())
}

func (g *Gate) IsReady() bool {
	return g.State() == Ready
}

// AwaitReady blocks until a probe succeeds. Probe failures are logged and
// retried without limit; the only error returned is ctx's.
func (g *Gate) AwaitReady(ctx context.Context) error {
	if g.IsReady() {
		return nil
	}

	g.logger.InfowCtx(ctx, "Checking router health endpoint",
		"url", g.url,
		"interval", g.interval,
	)

	err := retry.Forever(ctx, g.interval, func() error {
		return g.probe(ctx)
	}, func(attempt int, err error, next time.Duration) {
		metrics.IncReadinessProbe("failure")
		g.logger.InfowCtx(ctx, "Waiting for router to be ready",
			"attempt", attempt,
			"next_probe_in", next,
			"reason", err.Error(),
		)
	}, g.timer)
	if err != nil {
		return fmt.Errorf("readiness wait aborted: %w", err)
	}

	metrics.IncReadinessProbe("success")
	g.state.Store(int32(Ready))
	g.logger.InfowCtx(ctx, "Router is up", "url", g.url)
	return nil
}

func (g *Gate) probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("invalid health url: %w", err))
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}
