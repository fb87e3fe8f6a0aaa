// Package forwarder delivers eligible mesh commands to the router and turns
// its answer into the acknowledgment sent back to the sender.
package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"meshbridge/internal/config"
	"meshbridge/internal/constants"
	"meshbridge/internal/logger"
	"meshbridge/pkg/circuitbreaker"
	"meshbridge/pkg/errors"
	"meshbridge/pkg/metrics"
	"meshbridge/pkg/models"
	"meshbridge/pkg/tracing"
)

const maxResponseBytes = 64 << 10

type routerResponse struct {
	status int
	body   string
}

var errServerStatus = stderrors.New("router returned server error")

type Forwarder struct {
	url     string
	client  *http.Client
	breaker *circuitbreaker.Wrapper
	logger  logger.Logger
}

type Option func(*Forwarder)

func WithHTTPClient(client *http.Client) Option {
	return func(f *Forwarder) {
		f.client = client
	}
}

// WithCircuitBreaker short-circuits forwards while the router keeps failing.
// An open breaker is reported the same way as an unreachable router.
func WithCircuitBreaker(cfg circuitbreaker.Config) Option {
	return func(f *Forwarder) {
		f.breaker = circuitbreaker.NewWrapper(cfg)
	}
}

// New builds a Forwarder for cfg.SendURL. A zero cfg.Timeout leaves the
// HTTP client without a deadline.
func New(cfg config.RouterConfig, log logger.Logger, opts ...Option) *Forwarder {
	f := &Forwarder{
		url:    cfg.SendURL,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.With("component", "forwarder"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward POSTs req to the router once. The returned outcome is always
// usable as an acknowledgment; err is nil only when the router accepted
// the message and otherwise carries ErrRouterUnreachable or
// ErrRouterRejected.
func (f *Forwarder) Forward(ctx context.Context, req models.ForwardRequest) (models.ForwardOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "forwarder.forward",
		attribute.Int64("mesh.from", int64(req.From)),
		attribute.String("router.url", f.url),
	)
	defer span.End()

	start := time.Now()
	resp, err := f.send(ctx, req)
	if resp == nil {
		unreachable := errors.ErrRouterUnreachable.WithCause(err)
		tracing.RecordError(span, unreachable)
		metrics.ObserveForward("unreachable", time.Since(start))
		f.logger.WarnwCtx(ctx, "Could not contact router",
			"url", f.url,
			"from", req.From,
			"error", err,
		)
		return models.ForwardOutcome{Delivered: false, AckText: constants.AckRouterUnreached}, unreachable
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.status))
	outcome := outcomeFor(resp)

	if !outcome.Delivered {
		rejected := errors.ErrRouterRejected.
			WithMessage(fmt.Sprintf("router responded with status %d", resp.status)).
			WithDetail("status", resp.status)
		tracing.RecordError(span, rejected)
		metrics.ObserveForward("rejected", time.Since(start))
		f.logger.WarnwCtx(ctx, "Router rejected message",
			"status", resp.status,
			"from", req.From,
			"body", resp.body,
		)
		return outcome, rejected
	}

	metrics.ObserveForward("delivered", time.Since(start))
	f.logger.InfowCtx(ctx, "Forwarded to router",
		"status", resp.status,
		"from", req.From,
		"response", resp.body,
	)
	return outcome, nil
}

func (f *Forwarder) send(ctx context.Context, req models.ForwardRequest) (*routerResponse, error) {
	if f.breaker == nil {
		return f.post(ctx, req)
	}

	result, err := f.breaker.Execute(ctx, func() (interface{}, error) {
		resp, err := f.post(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.status >= http.StatusInternalServerError {
			return resp, errServerStatus
		}
		return resp, nil
	})
	if resp, ok := result.(*routerResponse); ok && resp != nil {
		return resp, nil
	}
	return nil, err
}

func (f *Forwarder) post(ctx context.Context, req models.ForwardRequest) (*routerResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal forward request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build router request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read router response: %w", err)
	}

	return &routerResponse{status: resp.StatusCode, body: strings.TrimSpace(string(data))}, nil
}

func outcomeFor(resp *routerResponse) models.ForwardOutcome {
	if resp.status == http.StatusOK {
		text := resp.body
		if text == "" {
			text = constants.AckDelivered
		}
		return models.ForwardOutcome{Delivered: true, AckText: text, StatusCode: resp.status}
	}

	text := fmt.Sprintf(constants.AckFailedFormat, resp.status)
	if resp.body != "" {
		text += ": " + resp.body
	}
	return models.ForwardOutcome{Delivered: false, AckText: text, StatusCode: resp.status}
}
