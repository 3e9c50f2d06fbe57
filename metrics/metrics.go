// Package metrics holds the Prometheus instruments of the capture and
// transcription pipeline. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dualscribe/event"
)

type Metrics struct {
	// Capture
	ChunksCaptured *prometheus.CounterVec
	ChunksDropped  *prometheus.CounterVec
	AudioLevel     *prometheus.GaugeVec
	ResampleErrors *prometheus.CounterVec

	// Transcription client
	ConnectionStatus *prometheus.GaugeVec
	Reconnects       *prometheus.CounterVec
	DialDuration     *prometheus.HistogramVec
	BytesSent        *prometheus.CounterVec
	BufferedChunks   *prometheus.GaugeVec
	BufferEvictions  *prometheus.CounterVec
	Segments         *prometheus.CounterVec
	ProtocolErrors   *prometheus.CounterVec

	// Sessions
	ActiveSessions  prometheus.Gauge
	SessionDuration prometheus.Histogram
}

// New registers all instruments with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	source := []string{"source"}
	return &Metrics{
		ChunksCaptured: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dualscribe_capture_chunks_total",
			Help: "Audio chunks received from the capture backend",
		}, source),
		ChunksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dualscribe_capture_chunks_dropped_total",
			Help: "Audio chunks dropped because the pipeline was behind",
		}, source),
		AudioLevel: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dualscribe_audio_level",
			Help: "RMS level of the most recent chunk",
		}, source),
		ResampleErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dualscribe_resample_errors_total",
			Help: "Chunks discarded because resampling failed",
		}, source),

		ConnectionStatus: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dualscribe_connection_status",
			Help: "Current connection status (0 disconnected, 1 connecting, 2 connected, 3 reconnecting, 4 failed)",
		}, source),
		Reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dualscribe_reconnects_total",
			Help: "Failed connection attempts followed by a backoff wait",
		}, source),
		DialDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dualscribe_dial_duration_seconds",
			Help:    "Time to establish the transcription connection",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6s
		}, source),
		BytesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dualscribe_audio_bytes_sent_total",
			Help: "PCM bytes written to the transcription connection",
		}, source),
		BufferedChunks: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dualscribe_buffered_chunks",
			Help: "Audio chunks held while disconnected",
		}, source),
		BufferEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dualscribe_buffer_evictions_total",
			Help: "Buffered chunks evicted to admit newer audio",
		}, source),
		Segments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dualscribe_segments_total",
			Help: "Transcript segments received",
		}, []string{"source", "final"}),
		ProtocolErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dualscribe_protocol_errors_total",
			Help: "Inbound messages that could not be parsed",
		}, source),

		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "dualscribe_active_sessions",
			Help: "Running capture sessions",
		}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dualscribe_session_duration_seconds",
			Help:    "Length of completed capture sessions",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10s to ~85 minutes
		}),
	}
}

// Handler serves the instruments registered with g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) Captured(src event.Source, level float32) {
	if m == nil {
		return
	}
	m.ChunksCaptured.WithLabelValues(src.String()).Inc()
	m.AudioLevel.WithLabelValues(src.String()).Set(float64(level))
}

func (m *Metrics) Dropped(src event.Source, n uint64) {
	if m == nil || n == 0 {
		return
	}
	m.ChunksDropped.WithLabelValues(src.String()).Add(float64(n))
}

func (m *Metrics) ResampleFailed(src event.Source) {
	if m == nil {
		return
	}
	m.ResampleErrors.WithLabelValues(src.String()).Inc()
}

func (m *Metrics) Status(src event.Source, st event.Status) {
	if m == nil {
		return
	}
	m.ConnectionStatus.WithLabelValues(src.String()).Set(float64(st))
}

func (m *Metrics) Reconnect(src event.Source) {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues(src.String()).Inc()
}

func (m *Metrics) Dialed(src event.Source, seconds float64) {
	if m == nil {
		return
	}
	m.DialDuration.WithLabelValues(src.String()).Observe(seconds)
}

func (m *Metrics) Sent(src event.Source, bytes int) {
	if m == nil {
		return
	}
	m.BytesSent.WithLabelValues(src.String()).Add(float64(bytes))
}

func (m *Metrics) Buffered(src event.Source, n int) {
	if m == nil {
		return
	}
	m.BufferedChunks.WithLabelValues(src.String()).Set(float64(n))
}

func (m *Metrics) Evicted(src event.Source) {
	if m == nil {
		return
	}
	m.BufferEvictions.WithLabelValues(src.String()).Inc()
}

func (m *Metrics) Segment(src event.Source, final bool) {
	if m == nil {
		return
	}
	label := "false"
	if final {
		label = "true"
	}
	m.Segments.WithLabelValues(src.String(), label).Inc()
}

func (m *Metrics) ProtocolError(src event.Source) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(src.String()).Inc()
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionEnded(seconds float64) {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
	m.SessionDuration.Observe(seconds)
}
