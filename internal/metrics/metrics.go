package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calendly",
			Name:      "availability_resolutions_total",
			Help:      "Count of availability resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	resolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "calendly",
			Name:      "availability_resolve_duration_seconds",
			Help:      "Time spent resolving availability, fetches included.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	slotsReturned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "calendly",
			Name:      "availability_slots_returned",
			Help:      "Number of slots returned per resolution.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	conflictSourceFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calendly",
			Name:      "conflict_source_failures_total",
			Help:      "Count of failed calls to external calendar sources.",
		},
		[]string{"source", "policy"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calendly",
			Name:      "availability_cache_lookups_total",
			Help:      "Count of resolution cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calendly",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(resolutions, resolveDuration, slotsReturned, conflictSourceFailures, cacheLookups, httpRequests)
	})
}

func IncResolution(outcome string) {
	resolutions.WithLabelValues(outcome).Inc()
}

func ObserveResolveDuration(seconds float64) {
	resolveDuration.Observe(seconds)
}

func ObserveSlots(n int) {
	slotsReturned.Observe(float64(n))
}

func IncConflictSourceFailure(source, policy string) {
	conflictSourceFailures.WithLabelValues(source, policy).Inc()
}

func IncCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
