package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"meshbridge/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVariables(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(v, &cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", constants.DefaultServerPort)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("router.send_url", constants.DefaultRouterSendURL)
	v.SetDefault("router.health_url", constants.DefaultRouterHealthURL)
	v.SetDefault("router.probe_interval", constants.DefaultProbeInterval)
	v.SetDefault("router.timeout", time.Duration(0))

	v.SetDefault("radio.driver", constants.RadioDriverSerial)
	v.SetDefault("radio.device_path", constants.DefaultDevicePath)
	v.SetDefault("radio.baud_rate", constants.DefaultBaudRate)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("filter.expression", "")

	v.SetDefault("deduplication.enabled", false)
	v.SetDefault("deduplication.backend", constants.DedupBackendMemory)
	v.SetDefault("deduplication.ttl_seconds", constants.DefaultDedupTTLSecond)
	v.SetDefault("deduplication.on_error", constants.FallbackAllow)

	v.SetDefault("database.redis.host", "localhost")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("broker.type", constants.BrokerTypeNone)
	v.SetDefault("broker.kafka.brokers", []string{})
	v.SetDefault("broker.kafka.event_topic", "mesh_relay_events")

	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.max_requests", 1)
	v.SetDefault("circuit_breaker.interval", 60*time.Second)
	v.SetDefault("circuit_breaker.timeout", 30*time.Second)
	v.SetDefault("circuit_breaker.failure_ratio", 0.5)
	v.SetDefault("circuit_breaker.min_requests", 3)

	v.SetDefault("outbound.rate_limit.enabled", false)
	v.SetDefault("outbound.rate_limit.rps", 1.0)
	v.SetDefault("outbound.rate_limit.burst", 10)
	v.SetDefault("outbound.rate_limit.cleanup_interval", 5*time.Minute)
	v.SetDefault("outbound.rate_limit.max_age", 10*time.Minute)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", constants.ServiceName)
	v.SetDefault("tracing.otlp.endpoint", "localhost:4317")
	v.SetDefault("tracing.otlp.insecure", true)
	v.SetDefault("tracing.sampler.type", "always_on")
	v.SetDefault("tracing.sampler.param", 1.0)
}

// bindEnvVariables keeps the variable names the bridge has always been
// deployed with working alongside the structured names.
func bindEnvVariables(v *viper.Viper) {
	v.BindEnv("router.send_url", "GO_ROUTER_URL", "ROUTER_SEND_URL")
	v.BindEnv("router.health_url", "HEALTH_CHECK_URL", "ROUTER_HEALTH_URL")
	v.BindEnv("radio.device_path", "MESH_DEVICE_PATH", "RADIO_DEVICE_PATH")

	v.BindEnv("server.port", "SERVER_PORT", "PORT")
	v.BindEnv("radio.driver", "RADIO_DRIVER")
	v.BindEnv("logging.level", "LOGGING_LEVEL", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOGGING_FORMAT")

	v.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	v.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	v.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")

	v.BindEnv("broker.type", "BROKER_TYPE")
	v.BindEnv("broker.kafka.event_topic", "BROKER_KAFKA_EVENT_TOPIC")

	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
}

func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	if brokersEnv := v.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
