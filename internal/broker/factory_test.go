package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshbridge/internal/config"
	"meshbridge/internal/logger"
	"meshbridge/pkg/models"
)

func TestNewProducer(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.BrokerConfig
		wantType  interface{}
		wantError bool
	}{
		{name: "default is noop", cfg: config.BrokerConfig{}, wantType: NoopProducer{}},
		{name: "explicit none", cfg: config.BrokerConfig{Type: "none"}, wantType: NoopProducer{}},
		{
			name:     "kafka",
			cfg:      config.BrokerConfig{Type: "kafka", Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, EventTopic: "mesh_relay_events"}},
			wantType: &AsyncProducer{},
		},
		{name: "kafka without brokers", cfg: config.BrokerConfig{Type: "kafka"}, wantError: true},
		{name: "unknown", cfg: config.BrokerConfig{Type: "nats"}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProducer(tt.cfg, logger.NopLogger())
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, p)
			assert.NoError(t, p.Close())
		})
	}
}

func TestNoopProducerPublish(t *testing.T) {
	var p Producer = NoopProducer{}
	assert.NoError(t, p.Publish(context.Background(), models.NewRelayEventBuilder("relay.forwarded").Build()))
}
