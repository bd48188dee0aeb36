package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turtacn/credcore/internal/domain/service"
)

var _ service.Metrics = (*Metrics)(nil)

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Metrics manages the Prometheus metrics. All collectors are registered on the
// registerer passed to NewMetrics, never on the global default.
type Metrics struct {
	KeyGenerations   *prometheus.CounterVec
	KeyGenLatency    *prometheus.HistogramVec
	Signatures       *prometheus.CounterVec
	SignLatency      *prometheus.HistogramVec
	Verifications    *prometheus.CounterVec
	KeyStoreOps      *prometheus.CounterVec
	KeyStoreLatency  *prometheus.HistogramVec
	AppRegistrations *prometheus.CounterVec
	RateLimitHits    *prometheus.CounterVec
	CacheAccesses    *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// NewMetrics creates and registers the Prometheus metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		KeyGenerations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credcore_key_generations_total",
			Help: "Total number of key pair generations.",
		}, []string{"algorithm", "result"}),
		KeyGenLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credcore_key_generation_latency_seconds",
			Help:    "Latency of key pair generation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"algorithm"}),
		Signatures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credcore_signatures_total",
			Help: "Total number of signing operations.",
		}, []string{"algorithm", "result", "error_code"}),
		SignLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credcore_sign_latency_seconds",
			Help:    "Latency of signing operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"algorithm"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credcore_verifications_total",
			Help: "Total number of signature verifications.",
		}, []string{"algorithm", "valid"}),
		KeyStoreOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credcore_keystore_operations_total",
			Help: "Total number of key store calls.",
		}, []string{"backend", "operation", "result"}),
		KeyStoreLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credcore_keystore_latency_seconds",
			Help:    "Latency of key store calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		AppRegistrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credcore_app_registrations_total",
			Help: "Total number of application registrations.",
		}, []string{"result", "error_code"}),
		RateLimitHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credcore_rate_limit_hits_total",
			Help: "Total number of rate limit hits.",
		}, []string{"app_id", "scope"}),
		CacheAccesses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credcore_cache_accesses_total",
			Help: "Total number of cache lookups.",
		}, []string{"cache", "hit"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "credcore_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "credcore_http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// RecordKeyGeneration implements service.Metrics.
func (m *Metrics) RecordKeyGeneration(algorithm string, success bool, duration time.Duration) {
	m.KeyGenerations.WithLabelValues(algorithm, result(success)).Inc()
	m.KeyGenLatency.WithLabelValues(algorithm).Observe(duration.Seconds())
}

// RecordSign implements service.Metrics.
func (m *Metrics) RecordSign(algorithm string, success bool, duration time.Duration, errorCode string) {
	m.Signatures.WithLabelValues(algorithm, result(success), errorCode).Inc()
	m.SignLatency.WithLabelValues(algorithm).Observe(duration.Seconds())
}

// RecordVerify implements service.Metrics.
func (m *Metrics) RecordVerify(algorithm string, valid bool) {
	v := "false"
	if valid {
		v = "true"
	}
	m.Verifications.WithLabelValues(algorithm, v).Inc()
}

// RecordKeyStoreOp implements service.Metrics.
func (m *Metrics) RecordKeyStoreOp(backend, operation string, duration time.Duration, err error) {
	m.KeyStoreOps.WithLabelValues(backend, operation, result(err == nil)).Inc()
	m.KeyStoreLatency.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordAppRegistration implements service.Metrics.
func (m *Metrics) RecordAppRegistration(success bool, errorCode string) {
	m.AppRegistrations.WithLabelValues(result(success), errorCode).Inc()
}

// RecordRateLimitHit implements service.Metrics.
func (m *Metrics) RecordRateLimitHit(appID, scope string) {
	m.RateLimitHits.WithLabelValues(appID, scope).Inc()
}

// RecordCacheAccess implements service.Metrics.
func (m *Metrics) RecordCacheAccess(cacheType string, hit bool) {
	h := "miss"
	if hit {
		h = "hit"
	}
	m.CacheAccesses.WithLabelValues(cacheType, h).Inc()
}
