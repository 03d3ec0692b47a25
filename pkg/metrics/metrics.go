package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketplace"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	flowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signup",
			Name:      "step_transitions_total",
			Help:      "Signup flow transitions by step reached.",
		},
		[]string{"step"},
	)

	otpVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signup",
			Name:      "otp_verifications_total",
			Help:      "OTP verification attempts by verifier and outcome.",
		},
		[]string{"verifier", "result"},
	)

	identityCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "identity",
			Name:      "calls_total",
			Help:      "Calls to the identity provider by operation and outcome.",
		},
		[]string{"op", "result"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "open_stores",
			Help:      "Session stores held open on this instance.",
		},
	)

	sessionInits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "initializations_total",
			Help:      "Session store initializations by outcome (ok, timeout, error, migrated).",
		},
		[]string{"result"},
	)

	guardRedirects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "redirects_total",
			Help:      "Role guard redirects by target.",
		},
		[]string{"redirect"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		flowTransitions,
		otpVerifications,
		identityCalls,
		activeSessions,
		sessionInits,
		guardRedirects,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RequestStarted()  { httpInFlight.Inc() }
func RequestFinished() { httpInFlight.Dec() }

func ObserveRequest(method, path, status string, seconds float64) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(seconds)
}

func FlowStep(step string) { flowTransitions.WithLabelValues(step).Inc() }

func OTPVerification(verifier string, ok bool) {
	result := "rejected"
	if ok {
		result = "accepted"
	}
	otpVerifications.WithLabelValues(verifier, result).Inc()
}

func IdentityCall(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	identityCalls.WithLabelValues(op, result).Inc()
}

func SessionOpened() { activeSessions.Inc() }
func SessionClosed() { activeSessions.Dec() }

func SessionInit(result string) { sessionInits.WithLabelValues(result).Inc() }

func GuardRedirect(to string) { guardRedirects.WithLabelValues(to).Inc() }
