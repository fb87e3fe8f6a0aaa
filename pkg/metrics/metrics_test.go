package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterBridgeMetricsIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		RegisterBridgeMetrics()
		RegisterBridgeMetrics()
	})
}

func TestHelpers(t *testing.T) {
	before := testutil.ToFloat64(PacketsTotal.WithLabelValues("relayed"))
	IncPacket("relayed")
	assert.Equal(t, before+1, testutil.ToFloat64(PacketsTotal.WithLabelValues("relayed")))

	before = testutil.ToFloat64(RadioSendsTotal.WithLabelValues("ack", "success"))
	ObserveRadioSend("ack", "success", 12*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(RadioSendsTotal.WithLabelValues("ack", "success")))

	SetRadioConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(RadioConnected))
	SetRadioConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(RadioConnected))
}
