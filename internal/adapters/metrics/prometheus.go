// Package metrics exposes capture and upload counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bicycledata/sensorship/internal/ports"
)

// Prometheus implements ports.Metrics.
type Prometheus struct {
	gatherer prometheus.Gatherer

	measurements   prometheus.Counter
	sensorFailures *prometheus.CounterVec
	sealed         prometheus.Counter
	sealedRecords  prometheus.Histogram
	sealedBytes    prometheus.Counter
	uploads        *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	uploadLatency  prometheus.Histogram
	pending        prometheus.Gauge
}

// New registers the agent's collectors with reg. Passing a fresh
// prometheus.NewRegistry keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Prometheus {
	p := &Prometheus{
		gatherer: reg,
		measurements: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorship_measurements_total",
			Help: "Measurements appended to a buffer.",
		}),
		sensorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorship_sensor_failures_total",
			Help: "Failed sensor reads, by whether the failure was fatal.",
		}, []string{"fatal"}),
		sealed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorship_buffers_sealed_total",
			Help: "Buffers sealed and handed to the upload worker.",
		}),
		sealedRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensorship_buffer_records",
			Help:    "Measurements per sealed buffer.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		sealedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorship_buffer_bytes_total",
			Help: "Bytes written to sealed buffers.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sensorship_uploads_total",
			Help: "Upload attempts, by result.",
		}, []string{"result"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sensorship_upload_bytes_total",
			Help: "Buffer bytes acknowledged by the server.",
		}),
		uploadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sensorship_upload_duration_seconds",
			Help:    "Time to deliver one buffer.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sensorship_pending_buffers",
			Help: "Sealed buffers awaiting upload after the last pass.",
		}),
	}
	reg.MustRegister(
		p.measurements, p.sensorFailures, p.sealed, p.sealedRecords, p.sealedBytes,
		p.uploads, p.uploadBytes, p.uploadLatency, p.pending,
	)
	return p
}

func (p *Prometheus) MeasurementRecorded() { p.measurements.Inc() }

func (p *Prometheus) SensorFailed(fatal bool) {
	label := "false"
	if fatal {
		label = "true"
	}
	p.sensorFailures.WithLabelValues(label).Inc()
}

func (p *Prometheus) BufferSealed(records int, bytes int64) {
	p.sealed.Inc()
	p.sealedRecords.Observe(float64(records))
	p.sealedBytes.Add(float64(bytes))
}

func (p *Prometheus) UploadSucceeded(bytes int, duration time.Duration) {
	p.uploads.WithLabelValues("ok").Inc()
	p.uploadBytes.Add(float64(bytes))
	p.uploadLatency.Observe(duration.Seconds())
}

func (p *Prometheus) UploadFailed() { p.uploads.WithLabelValues("error").Inc() }

func (p *Prometheus) PendingBuffers(n int) { p.pending.Set(float64(n)) }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{})
}

var _ ports.Metrics = (*Prometheus)(nil)
