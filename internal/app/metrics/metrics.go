// Package metrics holds the Prometheus collectors for the registry layer.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "registry_layer",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "registry_layer",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "registry_layer",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "registry_layer",
			Subsystem: "registry",
			Name:      "registrations_total",
			Help:      "Total number of domain registrations.",
		},
		[]string{"source"},
	)

	renewals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "registry_layer",
			Subsystem: "registry",
			Name:      "renewals_total",
			Help:      "Total number of domain renewals.",
		},
		[]string{"source"},
	)

	transfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "registry_layer",
			Subsystem: "registry",
			Name:      "transfers_total",
			Help:      "Total number of domain ownership transfers.",
		},
		[]string{"kind"},
	)

	feesCollected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "registry_layer",
			Subsystem: "treasury",
			Name:      "fee_deposits_total",
			Help:      "Total number of fee deposits collected.",
		},
	)

	autoRenewals = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "registry_layer",
			Subsystem: "treasury",
			Name:      "auto_renewals_total",
			Help:      "Total number of treasury-funded renewals.",
		},
	)

	sharePurchases = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "registry_layer",
			Subsystem: "fraction",
			Name:      "share_purchases_total",
			Help:      "Total number of public share purchases.",
		},
	)

	defaultTransfers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "registry_layer",
			Subsystem: "fraction",
			Name:      "default_transfers_total",
			Help:      "Total number of majority-holder default transfers.",
		},
	)

	feedErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "registry_layer",
			Subsystem: "oracle",
			Name:      "feed_errors_total",
			Help:      "Total number of rejected or failed price feed reads.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		registrations,
		renewals,
		transfers,
		feesCollected,
		autoRenewals,
		sharePurchases,
		defaultTransfers,
		feedErrors,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordRegistration counts a committed registration by payment source.
func RecordRegistration(source string) {
	registrations.WithLabelValues(source).Inc()
}

// RecordRenewal counts a committed renewal by trigger source.
func RecordRenewal(source string) {
	renewals.WithLabelValues(source).Inc()
}

// RecordTransfer counts an ownership transfer by kind.
func RecordTransfer(kind string) {
	transfers.WithLabelValues(kind).Inc()
}

// RecordFeeCollected counts a treasury fee deposit.
func RecordFeeCollected() {
	feesCollected.Inc()
}

// RecordAutoRenewal counts a treasury-funded renewal.
func RecordAutoRenewal() {
	autoRenewals.Inc()
}

// RecordSharePurchase counts a public share purchase.
func RecordSharePurchase() {
	sharePurchases.Inc()
}

// RecordDefaultTransfer counts a majority-holder default transfer.
func RecordDefaultTransfer() {
	defaultTransfers.Inc()
}

// RecordFeedError counts a rejected price feed read.
func RecordFeedError() {
	feedErrors.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource identifiers so label cardinality stays
// bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "domains", "owners", "treasury", "fractions":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) == 2 {
			return "/" + parts[0] + "/:id"
		}
		return "/" + parts[0] + "/:id/" + parts[2]
	default:
		return "/" + parts[0]
	}
}
