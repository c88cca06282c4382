package monitoring

import (
	"time"

	"screencast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.SessionMetrics and ports.StoreMetrics.
type PrometheusCollector struct {
	sessionState     *prometheus.GaugeVec
	transitionsTotal *prometheus.CounterVec

	chunksTotal        prometheus.Counter
	capturedBytesTotal prometheus.Counter
	stallsTotal        prometheus.Counter
	noDataTotal        prometheus.Counter
	publishFailures    prometheus.Counter

	artifactSize     prometheus.Histogram
	artifactDuration prometheus.Histogram

	storeOperations *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
}

var sessionStates = []domain.SessionState{
	domain.StateIdle,
	domain.StateSharing,
	domain.StateRecording,
	domain.StateFinalizing,
	domain.StateError,
}

// NewPrometheusCollector registers the metrics with reg, or with the default
// registry when reg is nil.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	p := &PrometheusCollector{
		sessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "screencast_session_state",
			Help: "1 for the session's current state, 0 otherwise",
		}, []string{"state"}),

		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "screencast_session_transitions_total",
			Help: "Session state transitions",
		}, []string{"from", "to"}),

		chunksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "screencast_chunks_total",
			Help: "Recorded data segments appended to the buffer",
		}),

		capturedBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "screencast_captured_bytes_total",
			Help: "Total recorded bytes",
		}),

		stallsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "screencast_stalls_total",
			Help: "Recordings finalized by the stall watchdog",
		}),

		noDataTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "screencast_no_data_total",
			Help: "Recordings stopped without captured data",
		}),

		publishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "screencast_publish_failures_total",
			Help: "Artifact descriptors the metadata store did not accept",
		}),

		artifactSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "screencast_artifact_size_bytes",
			Help:    "Size of finalized artifacts",
			Buckets: prometheus.ExponentialBuckets(64<<10, 4, 10),
		}),

		artifactDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "screencast_artifact_duration_seconds",
			Help:    "Duration of finalized artifacts",
			Buckets: []float64{5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		}),

		storeOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "screencast_store_operations_total",
			Help: "Recording store operations by result",
		}, []string{"operation", "result"}),

		storeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "screencast_store_operation_duration_seconds",
			Help:    "Recording store operation latency",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}

	p.setState(domain.StateIdle)
	return p
}

func (p *PrometheusCollector) setState(current domain.SessionState) {
	for _, s := range sessionStates {
		v := 0.0
		if s == current {
			v = 1
		}
		p.sessionState.WithLabelValues(string(s)).Set(v)
	}
}

func (p *PrometheusCollector) StateChanged(from, to domain.SessionState) {
	p.transitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	p.setState(to)
}

func (p *PrometheusCollector) ChunkAppended(sizeBytes int64) {
	p.chunksTotal.Inc()
	p.capturedBytesTotal.Add(float64(sizeBytes))
}

func (p *PrometheusCollector) StallDetected() {
	p.stallsTotal.Inc()
}

func (p *PrometheusCollector) ArtifactFinalized(sizeBytes int64, durationSeconds int) {
	p.artifactSize.Observe(float64(sizeBytes))
	p.artifactDuration.Observe(float64(durationSeconds))
}

func (p *PrometheusCollector) NoDataCaptured() {
	p.noDataTotal.Inc()
}

func (p *PrometheusCollector) PublishFailed() {
	p.publishFailures.Inc()
}

func (p *PrometheusCollector) StoreOperation(operation string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.storeOperations.WithLabelValues(operation, result).Inc()
	p.storeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
