package imagelink

import (
	"github.com/blutspende/go-imagelink/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "imagelink"

// Metrics counts traffic of clients and servers. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	messagesSent       *prometheus.CounterVec
	messagesReceived   *prometheus.CounterVec
	bytesSent          *prometheus.CounterVec
	bytesReceived      *prometheus.CounterVec
	activeSessions     prometheus.Gauge
	rejectedSessions   prometheus.Counter
	protocolViolations prometheus.Counter
	imagesCompleted    *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg. Register once per registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_sent_total",
			Help:      "Messages fully written to the wire",
		}, []string{"kind"}),

		messagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_received_total",
			Help:      "Messages fully assembled from the wire",
		}, []string{"kind"}),

		bytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_sent_total",
			Help:      "Frame bytes written, header included",
		}, []string{"kind"}),

		bytesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_received_total",
			Help:      "Frame bytes read, header included",
		}, []string{"kind"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Connections currently registered on the server",
		}),

		rejectedSessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rejected_sessions_total",
			Help:      "Connections closed because of the connection limit",
		}),

		protocolViolations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "protocol_violations_total",
			Help:      "Exchanges dropped because of an unknown image id or an unexpected message",
		}),

		imagesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "images_completed_total",
			Help:      "Image handles that left the loading state",
		}, []string{"status"}),
	}
}

func (m *Metrics) messageSent(msg protocol.Message) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(msg.Kind.String()).Inc()
	m.bytesSent.WithLabelValues(msg.Kind.String()).Add(float64(protocol.HeaderSize + len(msg.Payload)))
}

func (m *Metrics) messageReceived(msg protocol.Message) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(msg.Kind.String()).Inc()
	m.bytesReceived.WithLabelValues(msg.Kind.String()).Add(float64(protocol.HeaderSize + len(msg.Payload)))
}

func (m *Metrics) sessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) sessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}

func (m *Metrics) sessionRejected() {
	if m == nil {
		return
	}
	m.rejectedSessions.Inc()
}

func (m *Metrics) protocolViolation() {
	if m == nil {
		return
	}
	m.protocolViolations.Inc()
}

func (m *Metrics) imageCompleted(status LoadStatus) {
	if m == nil {
		return
	}
	m.imagesCompleted.WithLabelValues(status.String()).Inc()
}
