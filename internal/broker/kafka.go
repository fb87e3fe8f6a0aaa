package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"meshbridge/internal/config"
	"meshbridge/internal/constants"
	"meshbridge/internal/logger"
	"meshbridge/pkg/metrics"
	"meshbridge/pkg/models"
	"meshbridge/pkg/retry"
	"meshbridge/pkg/tracing"
)

type KafkaProducer struct {
	writer *kafka.Writer
	topic  string
	policy retry.Policy
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		Async:        false,
	}
	return &KafkaProducer{
		writer: w,
		topic:  cfg.EventTopic,
		policy: retry.Policy{
			MaxAttempts:     3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2.0,
		},
		logger: log,
	}
}

// Publish writes event keyed by sender so one node's events stay ordered
// within a partition.
func (p *KafkaProducer) Publish(ctx context.Context, event *models.RelayEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal relay event: %w", err)
	}

	key := event.From
	if key == "" {
		key = event.To
	}

	headers := []kafka.Header{{Key: "event_type", Value: []byte(event.Type)}}
	headers = tracing.InjectTraceContext(ctx, headers)

	msg := kafka.Message{
		Topic:   p.topic,
		Key:     []byte(key),
		Value:   body,
		Headers: headers,
		Time:    event.Timestamp,
	}

	start := time.Now()
	err = retry.Retry(ctx, p.policy, func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		metrics.ObserveEventWrite(p.topic, "error", time.Since(start))
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.ObserveEventWrite(p.topic, "success", time.Since(start))
	p.logger.DebugwCtx(ctx, "Relay event published",
		"topic", p.topic,
		"event_type", event.Type,
		"event_id", event.ID,
	)
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
