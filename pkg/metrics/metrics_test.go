package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCacheMetricsDisabled(t *testing.T) {
	// Before InitRegistry the constructor reports disabled.
	if IsEnabled() {
		t.Skip("registry already initialized by another test")
	}
	assert.Nil(t, NewCacheMetrics("lru"))
}

func TestCacheMetricsCounters(t *testing.T) {
	InitRegistry()

	m := NewCacheMetrics("arc")
	require.NotNil(t, m)

	m.ObserveHit()
	m.ObserveHit()
	m.ObserveMiss()
	m.ObserveEviction()
	m.SetEntries(7)

	impl := m.(*cacheMetrics)
	assert.Equal(t, float64(2), testutil.ToFloat64(impl.hits))
	assert.Equal(t, float64(1), testutil.ToFloat64(impl.misses))
	assert.Equal(t, float64(1), testutil.ToFloat64(impl.evictions))
	assert.Equal(t, float64(7), testutil.ToFloat64(impl.entries))
}

func TestHandler(t *testing.T) {
	InitRegistry()
	assert.NotNil(t, Handler())
}
