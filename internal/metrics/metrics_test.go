package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	Register()
	Register()

	before := testutil.ToFloat64(resolutions.WithLabelValues("ok"))
	IncResolution("ok")
	IncResolution("ok")
	assert.Equal(t, before+2, testutil.ToFloat64(resolutions.WithLabelValues("ok")))

	IncConflictSourceFailure("ics", "fail_closed")
	assert.Equal(t, 1.0, testutil.ToFloat64(conflictSourceFailures.WithLabelValues("ics", "fail_closed")))

	IncCacheLookup("hit")
	IncHTTP("availability")
	assert.Equal(t, 1.0, testutil.ToFloat64(cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("availability")))
}

func TestHistogramsRegistered(t *testing.T) {
	Register()
	ObserveResolveDuration(0.02)
	ObserveSlots(16)

	n, err := testutil.GatherAndCount(prometheus.DefaultGatherer,
		"calendly_availability_resolve_duration_seconds",
		"calendly_availability_slots_returned",
	)
	assert.NoError(t, err)
	assert.Equal(t, 2, n)
}
