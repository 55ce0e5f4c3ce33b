package imagelink

import (
	"testing"

	"github.com/blutspende/go-imagelink/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsRecordNothing(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.messageSent(protocol.CloseMessage())
		metrics.messageReceived(protocol.CloseMessage())
		metrics.sessionOpened()
		metrics.sessionClosed()
		metrics.sessionRejected()
		metrics.protocolViolation()
		metrics.imageCompleted(Ready)
	})
}

func TestMetricsCount(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	version := protocol.VersionMessage(protocol.ProtocolVersion)
	metrics.messageSent(version)
	metrics.messageSent(version)
	metrics.messageReceived(protocol.RequestImageBufferMessage(3))
	metrics.sessionOpened()
	metrics.sessionOpened()
	metrics.sessionClosed()
	metrics.imageCompleted(FailedToLoad)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.messagesSent.WithLabelValues("Version")))
	assert.Equal(t, float64(2*(protocol.HeaderSize+4)), testutil.ToFloat64(metrics.bytesSent.WithLabelValues("Version")))
	assert.Equal(t, float64(protocol.HeaderSize+8), testutil.ToFloat64(metrics.bytesReceived.WithLabelValues("RequestImageBuffer")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.activeSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.imagesCompleted.WithLabelValues("failed")))

	families, err := registry.Gather()
	assert.Nil(t, err)
	// vectors without children are left out
	assert.Equal(t, 8, len(families))
}
