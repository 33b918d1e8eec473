package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the capture relay
type Metrics struct {
	// UDP datagram metrics
	DatagramsReceived prometheus.Counter
	DatagramsDropped  *prometheus.CounterVec
	ParseErrors       prometheus.Counter
	QueueSize         *prometheus.GaugeVec

	// Dispatch metrics
	Notifications *prometheus.CounterVec

	// Artifact metrics
	ArtifactsEmitted *prometheus.CounterVec
	ArtifactSize     *prometheus.HistogramVec
	AudioDuration    *prometheus.HistogramVec
	StoreErrors      prometheus.Counter

	// Local capture metrics
	CaptureActive prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// selects the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// UDP datagram metrics
		DatagramsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "openglass_datagrams_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		DatagramsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openglass_datagrams_dropped_total",
			Help: "Total number of datagrams dropped because a channel queue was full",
		}, []string{"channel"}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "openglass_parse_errors_total",
			Help: "Total number of datagram parsing errors",
		}),
		QueueSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "openglass_channel_queue_size",
			Help: "Current number of notifications waiting per channel",
		}, []string{"channel"}),

		// Dispatch metrics
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openglass_notifications_total",
			Help: "Total number of notifications dispatched, by channel and outcome",
		}, []string{"channel", "outcome"}),

		// Artifact metrics
		ArtifactsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openglass_artifacts_total",
			Help: "Total number of finished artifacts",
		}, []string{"kind", "source"}),
		ArtifactSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openglass_artifact_size_bytes",
			Help:    "Size of finished artifacts",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}, []string{"kind"}),
		AudioDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openglass_audio_duration_seconds",
			Help:    "Duration of finished audio containers",
			Buckets: prometheus.LinearBuckets(0, 5, 13), // 0s to 60s
		}, []string{"source"}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "openglass_store_errors_total",
			Help: "Total number of artifacts that could not be stored",
		}),

		// Local capture metrics
		CaptureActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "openglass_capture_active",
			Help: "1 while a local capture is recording",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openglass_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openglass_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "openglass_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordDatagramReceived increments the datagrams received counter
func (m *Metrics) RecordDatagramReceived() {
	m.DatagramsReceived.Inc()
}

// RecordDatagramDropped counts a datagram dropped on a full queue
func (m *Metrics) RecordDatagramDropped(channel string) {
	m.DatagramsDropped.WithLabelValues(channel).Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	m.ParseErrors.Inc()
}

// SetQueueSize sets the current queue size of a channel
func (m *Metrics) SetQueueSize(channel string, size int) {
	m.QueueSize.WithLabelValues(channel).Set(float64(size))
}

// RecordNotification counts a dispatched notification
func (m *Metrics) RecordNotification(channel, outcome string) {
	m.Notifications.WithLabelValues(channel, outcome).Inc()
}

// RecordArtifact records a finished artifact
func (m *Metrics) RecordArtifact(kind, source string, size int, durationSeconds float64) {
	m.ArtifactsEmitted.WithLabelValues(kind, source).Inc()
	m.ArtifactSize.WithLabelValues(kind).Observe(float64(size))
	if durationSeconds > 0 {
		m.AudioDuration.WithLabelValues(source).Observe(durationSeconds)
	}
}

// RecordStoreError increments the store errors counter
func (m *Metrics) RecordStoreError() {
	m.StoreErrors.Inc()
}

// SetCaptureActive sets the local capture gauge
func (m *Metrics) SetCaptureActive(active bool) {
	if active {
		m.CaptureActive.Set(1)
	} else {
		m.CaptureActive.Set(0)
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
