package broker

import (
	"fmt"

	"meshbridge/internal/config"
	"meshbridge/internal/constants"
	"meshbridge/internal/logger"
)

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	switch cfg.Type {
	case "", constants.BrokerTypeNone:
		return NoopProducer{}, nil
	case constants.BrokerTypeKafka:
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("kafka broker requires at least one broker address")
		}
		return NewAsyncProducer(
			NewKafkaProducer(cfg.Kafka, log),
			cfg.Kafka.EventTopic,
			constants.EventQueueSize,
			constants.EventPublishTimeout,
			log,
		), nil
	default:
		return nil, fmt.Errorf("unknown broker type: %s", cfg.Type)
	}
}
