// Package metrics holds the Prometheus collectors of the gallery service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusError   = "error"
)

// Metrics is safe to use through a nil pointer; every method becomes a no-op.
type Metrics struct {
	startedAt time.Time

	uploadsTotal       *prometheus.CounterVec
	uploadSizeBytes    prometheus.Histogram
	deletionsTotal     *prometheus.CounterVec
	imagesStored       prometheus.Gauge
	s3OperationSeconds *prometheus.HistogramVec
	s3ConnectionErrors prometheus.Counter
	healthChecksTotal  *prometheus.CounterVec
	healthS3Status     prometheus.Gauge
	uptimeSeconds      prometheus.Gauge

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec
}

// New registers all collectors with reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer, version string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	info := factory.NewGaugeVec(prometheus.GaugeOpts{
		Name: "app_info",
		Help: "Application information",
	}, []string{"version", "name"})
	info.WithLabelValues(version, "image-gallery").Set(1)

	return &Metrics{
		startedAt: time.Now(),
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "image_uploads_total",
			Help: "Total number of image uploads",
		}, []string{"status"}),
		uploadSizeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "image_upload_size_bytes",
			Help:    "Size of uploaded images in bytes",
			Buckets: []float64{100_000, 500_000, 1_000_000, 5_000_000, 10_000_000},
		}),
		deletionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "image_deletions_total",
			Help: "Total number of image deletions",
		}, []string{"status"}),
		imagesStored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "images_stored_total",
			Help: "Number of images seen by the latest listing",
		}),
		s3OperationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "s3_operation_duration_seconds",
			Help:    "Duration of S3 operations",
			Buckets: []float64{0.1, 0.5, 1.0, 2.0, 5.0, 10.0},
		}, []string{"operation"}),
		s3ConnectionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "s3_connection_errors_total",
			Help: "Total S3 connection errors",
		}),
		healthChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "health_check_total",
			Help: "Total health check requests",
		}, []string{"status"}),
		healthS3Status: factory.NewGauge(prometheus.GaugeOpts{
			Name: "health_check_s3_status",
			Help: "S3 connection status (1=healthy, 0=unhealthy)",
		}),
		uptimeSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpRequestsInFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_requests_inprogress",
			Help: "HTTP requests currently being served",
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) TrackUpload(status string, size int64) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(status).Inc()
	if status == StatusSuccess {
		m.uploadSizeBytes.Observe(float64(size))
	}
}

func (m *Metrics) TrackDeletion(status string) {
	if m == nil {
		return
	}
	m.deletionsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) SetImagesStored(n int) {
	if m == nil {
		return
	}
	m.imagesStored.Set(float64(n))
}

func (m *Metrics) TrackHealthCheck(s3Healthy bool) {
	if m == nil {
		return
	}
	status, value := "unhealthy", 0.0
	if s3Healthy {
		status, value = "healthy", 1.0
	}
	m.healthChecksTotal.WithLabelValues(status).Inc()
	m.healthS3Status.Set(value)
}

func (m *Metrics) UpdateUptime() {
	if m == nil {
		return
	}
	m.uptimeSeconds.Set(time.Since(m.startedAt).Seconds())
}

// ObserveS3Operation satisfies repository.OperationObserver.
func (m *Metrics) ObserveS3Operation(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.s3OperationSeconds.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) IncS3ConnectionError() {
	if m == nil {
		return
	}
	m.s3ConnectionErrors.Inc()
}

// Middleware records request count, latency and in-flight requests per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		path := c.FullPath()
		if path == "" {
			// untemplated paths would explode label cardinality
			c.Next()
			return
		}
		method := c.Request.Method

		inFlight := m.httpRequestsInFlight.WithLabelValues(method, path)
		inFlight.Inc()
		start := time.Now()
		defer func() {
			inFlight.Dec()
			m.httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		}()

		c.Next()
	}
}
