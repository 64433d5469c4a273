package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.CapacityAdjusted(DirectionConsume)
	m.CapacityAdjusted(DirectionConsume)
	m.CapacitySkipped(DirectionRestore, SkipUnlimited)
	m.ReportCache(true)
	m.ReportCache(false)
	m.ReportCache(false)
	m.ProductSynced()

	require.Equal(t, 2.0, testutil.ToFloat64(m.capacityAdjustments.WithLabelValues(DirectionConsume)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.capacitySkipped.WithLabelValues(DirectionRestore, SkipUnlimited)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reportCache.WithLabelValues("hit")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.reportCache.WithLabelValues("miss")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.productsSynced))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CapacityAdjusted(DirectionRestore)
	m.CapacitySkipped(DirectionRestore, SkipNoLink)
	m.OrderProcessed(DirectionConsume, "applied")
	m.ReportCache(true)
	m.ProductSynced()
}
