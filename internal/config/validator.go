package config

import (
	"errors"
	"fmt"
	"net/url"

	"meshbridge/internal/constants"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateRouter(c.Router) },
		func(c *Config) error { return validateRadio(c.Radio) },
		func(c *Config) error { return validateDeduplication(c.Deduplication) },
		func(c *Config) error { return validateBroker(c.Broker) },
		func(c *Config) error { return validateCircuitBreaker(c.CircuitBreaker) },
		func(c *Config) error { return validateRateLimit(c.Outbound.RateLimit) },
	}
	for _, validate := range validators {
		if err := validate(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateRouter(cfg RouterConfig) error {
	if err := validateHTTPURL("router.send_url", cfg.SendURL); err != nil {
		return err
	}
	if err := validateHTTPURL("router.health_url", cfg.HealthURL); err != nil {
		return err
	}

	if cfg.ProbeInterval <= 0 {
		return &ValidationError{
			Field:   "router.probe_interval",
			Message: "probe interval must be positive",
		}
	}

	if cfg.Timeout < 0 {
		return &ValidationError{
			Field:   "router.timeout",
			Message: "timeout must be non-negative",
		}
	}

	return nil
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return &ValidationError{Field: field, Message: "URL is required"}
	}

	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return &ValidationError{Field: field, Message: fmt.Sprintf("invalid URL: %v", err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: field, Message: fmt.Sprintf("unsupported scheme %q (supported: http, https)", u.Scheme)}
	}

	if u.Host == "" {
		return &ValidationError{Field: field, Message: "URL must include a host"}
	}

	return nil
}

func validateRadio(cfg RadioConfig) error {
	switch cfg.Driver {
	case constants.RadioDriverSerial:
		if cfg.DevicePath == "" {
			return &ValidationError{
				Field:   "radio.device_path",
				Message: "device path is required for the serial driver",
			}
		}
		if cfg.BaudRate <= 0 {
			return &ValidationError{
				Field:   "radio.baud_rate",
				Message: "baud rate must be positive",
			}
		}
	case constants.RadioDriverSim:
	default:
		return &ValidationError{
			Field:   "radio.driver",
			Message: fmt.Sprintf("unknown radio driver: %s (supported: serial, sim)", cfg.Driver),
		}
	}

	return nil
}

func validateDeduplication(cfg DeduplicationConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.Backend != constants.DedupBackendMemory && cfg.Backend != constants.DedupBackendRedis {
		return &ValidationError{
			Field:   "deduplication.backend",
			Message: fmt.Sprintf("unknown backend: %s (supported: memory, redis)", cfg.Backend),
		}
	}

	if cfg.TTLSeconds <= 0 {
		return &ValidationError{
			Field:   "deduplication.ttl_seconds",
			Message: "ttl must be positive",
		}
	}

	if cfg.OnError != constants.FallbackAllow && cfg.OnError != constants.FallbackDeny {
		return &ValidationError{
			Field:   "deduplication.on_error",
			Message: fmt.Sprintf("must be %q or %q, got %q", constants.FallbackAllow, constants.FallbackDeny, cfg.OnError),
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "", constants.BrokerTypeNone:
		return nil
	case constants.BrokerTypeKafka:
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: none, kafka)", cfg.Type),
		}
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Kafka.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.Kafka.EventTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.event_topic",
			Message: "event topic is required",
		}
	}

	return nil
}

func validateCircuitBreaker(cfg CircuitBreakerConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		return &ValidationError{
			Field:   "circuit_breaker.failure_ratio",
			Message: "failure ratio must be in (0, 1]",
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "circuit_breaker.timeout",
			Message: "open-state timeout must be positive",
		}
	}

	return nil
}

func validateRateLimit(cfg RateLimitConfig) error {
	if !cfg.Enabled {
		return nil
	}

	if cfg.RPS <= 0 {
		return &ValidationError{
			Field:   "outbound.rate_limit.rps",
			Message: "rps must be positive",
		}
	}

	if cfg.Burst < 1 {
		return &ValidationError{
			Field:   "outbound.rate_limit.burst",
			Message: "burst must be at least 1",
		}
	}

	if cfg.CleanupInterval <= 0 || cfg.MaxAge <= 0 {
		return &ValidationError{
			Field:   "outbound.rate_limit",
			Message: "cleanup_interval and max_age must be positive",
		}
	}

	return nil
}
