package observability

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammed-shakir/sos-core/internal/core/owserr"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status", "binding"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		[]string{"method", "route", "status", "binding"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sos_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	decodedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_decoded_requests_total",
			Help: "Requests decoded by operation and binding.",
		},
		[]string{"operation", "binding"},
	)

	owsExceptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_ows_exceptions_total",
			Help: "OWS exceptions reported to clients by code.",
		},
		[]string{"code"},
	)

	profileActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_profile_activations_total",
			Help: "Profile activations by origin.",
		},
		[]string{"source"},
	)

	profileStoreOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_profile_store_ops_total",
			Help: "Profile store operations by op and result.",
		},
		[]string{"op", "result"},
	)

	profileStoreSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sos_profile_store_op_duration_seconds",
			Help:    "Latency of profile store operations.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	featureLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sos_feature_lookups_total",
			Help: "Spatial feature lookups by path (index, scan) and coverage cache outcome.",
		},
		[]string{"path", "cache"},
	)
)

// Init additionally registers the request and domain collectors on reg, so
// a dedicated metrics registry exposes them too. Collectors already present
// on reg are skipped.
func Init(reg prometheus.Registerer) error {
	if reg == nil {
		return nil
	}
	for _, c := range []prometheus.Collector{
		httpRequestsTotal, httpRequestDurationSeconds, decodedRequests, owsExceptions,
		profileActivations, profileStoreOps, profileStoreSeconds, featureLookups,
	} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveHTTP(method, route, binding string, status int, durationSeconds float64) {
	if binding == "" {
		binding = "none"
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st, binding).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st, binding).Observe(durationSeconds)
}

func IncDecodedRequest(operation, binding string) {
	decodedRequests.WithLabelValues(operation, binding).Inc()
}

// IncOWSExceptions counts every exception carried by err.
func IncOWSExceptions(err error) {
	for _, e := range owserr.Flatten(err) {
		owsExceptions.WithLabelValues(string(e.Code)).Inc()
	}
}

func IncProfileActivation(source string) {
	profileActivations.WithLabelValues(source).Inc()
}

func ObserveProfileStoreOp(op string, err error, durationSeconds float64) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	profileStoreOps.WithLabelValues(op, result).Inc()
	profileStoreSeconds.WithLabelValues(op).Observe(durationSeconds)
}

// IncFeatureLookup records one spatial lookup. cache is "hit", "miss" or
// "none" when the path does not use the coverage cache.
func IncFeatureLookup(path, cache string) {
	featureLookups.WithLabelValues(path, cache).Inc()
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
