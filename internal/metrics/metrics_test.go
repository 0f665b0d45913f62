package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObservers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveParse("full", time.Millisecond)
	m.ObserveParse("incremental", time.Microsecond)
	m.ObserveParse("incremental", time.Microsecond)
	m.ObserveFallback("fence_edit")
	m.ObserveCache("hit")
	m.ObserveNotification("dropped")
	m.SetLiveBuffers(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Parses.WithLabelValues("full")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Parses.WithLabelValues("incremental")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks.WithLabelValues("fence_edit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheEvents.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("dropped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.LiveBuffers))

	n, err := testutil.GatherAndCount(reg, "zortex_parse_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
