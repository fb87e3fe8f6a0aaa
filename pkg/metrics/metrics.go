package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	PacketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_packets_total",
			Help: "Total number of radio packets seen by the inbound relay, by result (count)",
		},
		[]string{"result"},
	)

	ForwardTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_forward_total",
			Help: "Total number of forward attempts to the router, by outcome (count)",
		},
		[]string{"outcome"},
	)

	ForwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_forward_duration_ms",
			Help:    "Duration of router forward requests in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"outcome"},
	)

	AcksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_acks_total",
			Help: "Total number of acknowledgments sent back over the radio (count)",
		},
		[]string{"status"},
	)

	OutboundRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_outbound_requests_total",
			Help: "Total number of outbound injection requests, by HTTP status class (count)",
		},
		[]string{"status"},
	)

	RadioSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_radio_sends_total",
			Help: "Total number of text sends issued to the radio transport (count)",
		},
		[]string{"source", "status"},
	)

	RadioSendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bridge_radio_send_duration_ms",
			Help:    "Time spent holding the radio send lock in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	RadioConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_radio_connected",
			Help: "Whether the radio has reported a completed connection (0/1)",
		},
	)

	ReadinessProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_readiness_probes_total",
			Help: "Total number of router health probes during startup, by result (count)",
		},
		[]string{"result"},
	)

	DedupPacketsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_dedup_packets_total",
			Help: "Total number of packets checked for duplicates, by status (count)",
		},
		[]string{"status"},
	)

	DedupCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_dedup_cache_size",
			Help: "Number of packet keys currently held by the duplicate filter (count)",
		},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_events_published_total",
			Help: "Total number of relay events written to the broker (count)",
		},
		[]string{"topic", "status"},
	)

	EventWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_event_write_duration_ms",
			Help:    "Duration of writing relay events to the broker in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// RegisterBridgeMetrics registers every bridge collector with the default
// registry. Safe to call more than once.
func RegisterBridgeMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			PacketsTotal,
			ForwardTotal,
			ForwardDuration,
			AcksTotal,
			OutboundRequestsTotal,
			RadioSendsTotal,
			RadioSendDuration,
			RadioConnected,
			ReadinessProbesTotal,
			DedupPacketsTotal,
			DedupCacheSize,
			FallbackUsageTotal,
			EventsPublishedTotal,
			EventWriteDuration,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			RateLimitRequestsTotal,
		)
	})
}

func IncPacket(result string) {
	PacketsTotal.WithLabelValues(result).Inc()
}

func ObserveForward(outcome string, duration time.Duration) {
	ForwardTotal.WithLabelValues(outcome).Inc()
	ForwardDuration.WithLabelValues(outcome).Observe(float64(duration.Milliseconds()))
}

func IncAck(status string) {
	AcksTotal.WithLabelValues(status).Inc()
}

func IncOutboundRequest(status string) {
	OutboundRequestsTotal.WithLabelValues(status).Inc()
}

func ObserveRadioSend(source, status string, duration time.Duration) {
	RadioSendsTotal.WithLabelValues(source, status).Inc()
	RadioSendDuration.Observe(float64(duration.Milliseconds()))
}

func SetRadioConnected(connected bool) {
	if connected {
		RadioConnected.Set(1)
		return
	}
	RadioConnected.Set(0)
}

func IncReadinessProbe(result string) {
	ReadinessProbesTotal.WithLabelValues(result).Inc()
}

func IncDedupPacket(status string) {
	DedupPacketsTotal.WithLabelValues(status).Inc()
}

func SetDedupCacheSize(size int) {
	DedupCacheSize.Set(float64(size))
}

func IncEventDropped(topic string) {
	EventsPublishedTotal.WithLabelValues(topic, "dropped").Inc()
}

func ObserveEventWrite(topic, status string, duration time.Duration) {
	EventsPublishedTotal.WithLabelValues(topic, status).Inc()
	EventWriteDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}
