package constants

import "time"

const (
	ServiceName = "meshtastic-bridge"
	Version     = "0.3.0"
)

// CommandWhitelist lists the payload prefixes the bridge forwards to the
// router. Anything else received over the mesh is dropped.
var CommandWhitelist = []string{"!wsp", "!ping", "!help"}

const (
	DefaultRouterSendURL   = "http://go-router:8080/send-message"
	DefaultRouterHealthURL = "http://go-router:8080/health"
	DefaultDevicePath      = "/dev/ttyACM0"
	DefaultServerPort      = 8080
	DefaultProbeInterval   = 3 * time.Second
	DefaultBaudRate        = 115200
)

const (
	AckDelivered       = "✅ Message delivered!"
	AckRouterUnreached = "❌ Could not contact server"
	AckFailedFormat    = "❌ Delivery failed (status %d)"
)

// MaxTextBytes bounds acknowledgment texts sent over the mesh. The firmware
// limit for a text payload is slightly larger.
const MaxTextBytes = 200

const (
	RadioDriverSerial = "serial"
	RadioDriverSim    = "sim"
)

const (
	BrokerTypeNone  = "none"
	BrokerTypeKafka = "kafka"
)

const (
	DedupBackendMemory = "memory"
	DedupBackendRedis  = "redis"
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	CacheKeyPrefixDedup   = "dedup:"
	DefaultDedupTTLSecond = 600
)

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second

	EventQueueSize      = 256
	EventPublishTimeout = 15 * time.Second
)

const (
	ShutdownTimeout    = 5 * time.Second
	HealthCheckTimeout = 5 * time.Second
	RadioSendTimeout   = 10 * time.Second
)

const (
	EventTypeRelayForwarded = "relay.forwarded"
	EventTypeRelayAcked     = "relay.acked"
	EventTypeOutboundSent   = "outbound.sent"
)
