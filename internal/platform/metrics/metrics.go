package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Patient lifecycle metrics
	patientsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patients_created_total",
			Help: "Total number of patients registered",
		},
		[]string{"minor"},
	)

	patientsUpdated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patients_updated_total",
			Help: "Total number of patient updates by guardian transition",
		},
		[]string{"guardian_transition"},
	)

	patientsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "patients_deleted_total",
			Help: "Total number of patients deleted",
		},
	)

	businessRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patient_business_rejections_total",
			Help: "Requests rejected by a business rule, by rule key",
		},
		[]string{"key"},
	)

	// Doctor directory metrics
	doctorLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doctor_lookups_total",
			Help: "Doctor directory lookups by outcome",
		},
		[]string{"result"},
	)

	doctorLookupDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "doctor_lookup_duration_seconds",
			Help:    "Doctor directory lookup latency including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patient_events_published_total",
			Help: "Lifecycle events handed to the publisher by outcome",
		},
		[]string{"type", "status"},
	)

	eventsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patient_events_delivered_total",
			Help: "Lifecycle events acknowledged or rejected by the broker",
		},
		[]string{"type", "status"},
	)
)

// Middleware records request counts, latency and in-flight requests.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Path() == "/metrics" {
				return next(c)
			}

			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes the default registry.
func Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.Handler())
}

func RecordPatientCreated(minor bool) {
	patientsCreated.WithLabelValues(strconv.FormatBool(minor)).Inc()
}

func RecordPatientUpdated(transition string) {
	patientsUpdated.WithLabelValues(transition).Inc()
}

func RecordPatientDeleted() {
	patientsDeleted.Inc()
}

func RecordBusinessRejection(key string) {
	businessRejections.WithLabelValues(key).Inc()
}

// RecordDoctorLookup counts a lookup outcome: "found", "not_found", "cached"
// or "error".
func RecordDoctorLookup(result string, d time.Duration) {
	doctorLookups.WithLabelValues(result).Inc()
	if result != "cached" {
		doctorLookupDuration.Observe(d.Seconds())
	}
}

func RecordEventPublished(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	eventsPublished.WithLabelValues(eventType, status).Inc()
}

// RecordEventDelivered counts the broker's final answer for an event that
// was written asynchronously.
func RecordEventDelivered(eventType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	eventsDelivered.WithLabelValues(eventType, status).Inc()
}
