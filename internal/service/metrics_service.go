package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API
// and the lottery domain.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	enrollments prometheus.Counter
	rejections  *prometheus.CounterVec
	draws       prometheus.Counter
	redraws     *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	enrollments := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "waitlist_enrollments_total",
		Help: "Successful waitlist enrollments",
	})

	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "waitlist_admission_rejections_total",
		Help: "Enrollment attempts rejected by admission control",
	}, []string{"reason"})

	draws := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "lottery_draws_total",
		Help: "Selection draws executed",
	})

	redraws := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lottery_redraws_total",
		Help: "Replacement draws processed after cancellations",
	}, []string{"outcome"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channel_cache_hits_total",
		Help: "Channel resolution cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "channel_cache_misses_total",
		Help: "Channel resolution cache misses",
	})

	registry.MustRegister(requestDuration, requestTotal, enrollments, rejections, draws, redraws, cacheHits, cacheMisses)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		enrollments:     enrollments,
		rejections:      rejections,
		draws:           draws,
		redraws:         redraws,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler serves the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one served request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// RecordEnrollment counts one successful enrollment.
func (s *MetricsService) RecordEnrollment() {
	if s == nil {
		return
	}
	s.enrollments.Inc()
}

// RecordRejection counts one admission rejection by reason code.
func (s *MetricsService) RecordRejection(reason string) {
	if s == nil {
		return
	}
	s.rejections.WithLabelValues(reason).Inc()
}

// RecordDraw counts one selection draw.
func (s *MetricsService) RecordDraw() {
	if s == nil {
		return
	}
	s.draws.Inc()
}

// RecordRedraw counts one redraw job by outcome ("filled" or "noop").
func (s *MetricsService) RecordRedraw(outcome string) {
	if s == nil {
		return
	}
	s.redraws.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts a channel cache hit or miss.
func (s *MetricsService) RecordCacheLookup(hit bool) {
	if s == nil {
		return
	}
	if hit {
		s.cacheHits.Inc()
		return
	}
	s.cacheMisses.Inc()
}
