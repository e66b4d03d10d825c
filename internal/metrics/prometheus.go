package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the streaming client
type Metrics struct {
	// Handshake metrics
	NegotiationRequests *prometheus.CounterVec
	NegotiationDuration prometheus.Histogram

	// Session metrics
	ActiveSessions  prometheus.Gauge
	SessionsEnded   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Outbound audio metrics
	ChunksSent    prometheus.Counter
	AudioBytes    prometheus.Counter
	ControlFrames *prometheus.CounterVec

	// Inbound frame metrics
	EventsReceived *prometheus.CounterVec
	FramesDropped  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates all metrics and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		NegotiationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gladia_negotiation_requests_total",
			Help: "Total number of live session handshakes by result",
		}, []string{"result"}),
		NegotiationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gladia_negotiation_duration_seconds",
			Help:    "Duration of live session handshakes",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gladia_active_sessions",
			Help: "Current number of streaming sessions not yet terminated",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gladia_sessions_ended_total",
			Help: "Total number of streaming sessions by terminal state",
		}, []string{"state"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gladia_session_duration_seconds",
			Help:    "Duration of streaming sessions in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "gladia_audio_chunks_sent_total",
			Help: "Total number of audio frames sent",
		}),
		AudioBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "gladia_audio_bytes_sent_total",
			Help: "Total number of audio bytes sent",
		}),
		ControlFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gladia_control_frames_sent_total",
			Help: "Total number of control frames sent by type",
		}, []string{"type"}),

		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gladia_events_received_total",
			Help: "Total number of decoded inbound events by type",
		}, []string{"type"}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "gladia_frames_dropped_total",
			Help: "Total number of inbound frames ignored",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gladia_http_requests_total",
			Help: "Total number of status API requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gladia_http_request_duration_seconds",
			Help:    "Duration of status API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordNegotiation records a handshake outcome
func (m *Metrics) RecordNegotiation(success bool, durationSeconds float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.NegotiationRequests.WithLabelValues(result).Inc()
	m.NegotiationDuration.Observe(durationSeconds)
}

// RecordSessionStarted increments the active sessions gauge
func (m *Metrics) RecordSessionStarted() {
	m.ActiveSessions.Inc()
}

// RecordSessionEnded records the terminal state and duration of a session
func (m *Metrics) RecordSessionEnded(state string, durationSeconds float64) {
	m.ActiveSessions.Dec()
	m.SessionsEnded.WithLabelValues(state).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordChunkSent records one outbound audio frame
func (m *Metrics) RecordChunkSent(sizeBytes int) {
	m.ChunksSent.Inc()
	m.AudioBytes.Add(float64(sizeBytes))
}

// RecordControlFrame records one outbound control frame
func (m *Metrics) RecordControlFrame(frameType string) {
	m.ControlFrames.WithLabelValues(frameType).Inc()
}

// RecordEvent records a decoded inbound event
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsReceived.WithLabelValues(eventType).Inc()
}

// RecordFrameDropped records an ignored inbound frame
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// RecordHTTPRequest records a status API request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
