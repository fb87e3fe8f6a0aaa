// Package outbound serves POST /send-message, which lets the router inject a
// text message into the mesh.
package outbound

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.opentelemetry.io/otel/attribute"

	"meshbridge/internal/address"
	"meshbridge/internal/constants"
	"meshbridge/internal/logger"
	"meshbridge/pkg/errors"
	"meshbridge/pkg/logging"
	"meshbridge/pkg/metrics"
	"meshbridge/pkg/models"
	"meshbridge/pkg/tracing"
)

const sendPath = "/send-message"

func init() {
	// Numeric destinations bind as json.Number so only integer literals pass.
	binding.EnableDecoderUseNumber = true
}

var errMissingFields = errors.ErrValidation.WithMessage("to and message are required")

type Sender interface {
	SendText(ctx context.Context, text string, to address.NodeID) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event *models.RelayEvent) error
}

type Handler struct {
	sender     Sender
	events     EventPublisher
	middleware []gin.HandlerFunc
	logger     logger.Logger
}

type Option func(*Handler)

func WithEventPublisher(p EventPublisher) Option {
	return func(h *Handler) {
		h.events = p
	}
}

// WithMiddleware adds handlers that run before the send route only, such as
// the per-client rate limiter.
func WithMiddleware(mw ...gin.HandlerFunc) Option {
	return func(h *Handler) {
		h.middleware = append(h.middleware, mw...)
	}
}

func NewHandler(sender Sender, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		sender: sender,
		logger: log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) RegisterRoutes(router gin.IRouter) {
	handlers := append(append([]gin.HandlerFunc{}, h.middleware...), h.SendMessage)
	router.POST(sendPath, handlers...)
}

// SendMessage godoc
// @Summary      Inject a text message into the mesh
// @Description  Normalizes the destination node id and transmits the message over the radio
// @Tags         outbound
// @Accept       json
// @Produce      json
// @Param        request  body      models.OutboundSendRequest  true  "Destination and text"
// @Success      200      {object}  models.OutboundSendResponse
// @Failure      400      {object}  map[string]string
// @Failure      429      {object}  map[string]string
// @Failure      500      {object}  map[string]string
// @Router       /send-message [post]
func (h *Handler) SendMessage(c *gin.Context) {
	ctx, span := tracing.StartSpan(c.Request.Context(), "outbound.send")
	defer span.End()

	var req models.OutboundSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.reject(ctx, c, errors.ErrValidation.WithMessage("invalid request body").WithCause(err))
		return
	}

	if isBlank(req.To) || strings.TrimSpace(req.Message) == "" {
		h.reject(ctx, c, errMissingFields)
		return
	}

	to, err := address.Normalize(req.To)
	if err != nil {
		h.reject(ctx, c, err)
		return
	}
	span.SetAttributes(attribute.String("mesh.to", to.String()))

	sendCtx, cancel := context.WithTimeout(ctx, constants.RadioSendTimeout)
	defer cancel()

	start := time.Now()
	if err := h.sender.SendText(sendCtx, req.Message, to); err != nil {
		metrics.ObserveRadioSend("outbound", "error", time.Since(start))
		metrics.IncOutboundRequest("send_failed")
		tracing.RecordError(span, err)
		h.logger.ErrorwCtx(ctx, "Outbound send failed",
			"to", to.String(),
			"error", err,
		)
		h.publish(ctx, to, req.Message, "failed", err)

		if !errors.IsTransport(err) {
			err = errors.ErrTransport.WithCause(err)
		}
		c.JSON(http.StatusInternalServerError, errors.ToErrorResponse(err))
		return
	}

	metrics.ObserveRadioSend("outbound", "success", time.Since(start))
	metrics.IncOutboundRequest("sent")
	h.logger.InfowCtx(ctx, "Outbound message sent",
		"to", to.String(),
		"bytes", len(req.Message),
	)
	h.publish(ctx, to, req.Message, "sent", nil)

	c.JSON(http.StatusOK, models.OutboundSendResponse{Status: "sent"})
}

func (h *Handler) reject(ctx context.Context, c *gin.Context, err error) {
	status := "invalid_request"
	if errors.IsInvalidAddress(err) {
		status = "invalid_address"
	}
	metrics.IncOutboundRequest(status)
	h.logger.WarnwCtx(ctx, "Rejected outbound request",
		"path", c.Request.URL.Path,
		"error", err,
	)
	c.JSON(http.StatusBadRequest, errors.ToErrorResponse(err))
}

func (h *Handler) publish(ctx context.Context, to address.NodeID, message, status string, sendErr error) {
	if h.events == nil {
		return
	}
	event := models.NewRelayEventBuilder(constants.EventTypeOutboundSent).
		WithTo(uint32(to)).
		WithMessage(message).
		WithStatus(status).
		WithError(sendErr).
		WithTraceID(logging.GetTraceID(ctx)).
		Build()
	if err := h.events.Publish(ctx, event); err != nil {
		h.logger.WarnwCtx(ctx, "Failed to publish outbound event", "error", err)
	}
}

func isBlank(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}
