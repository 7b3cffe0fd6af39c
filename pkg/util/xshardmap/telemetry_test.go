package xshardmap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newMeteredMap(t *testing.T) (*Map[string, int], *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := New[string, int](WithShardCount(1), WithMeterProvider(provider))
	require.NoError(t, err)
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

// sumByMode 返回 int64 Sum 指标中 mode 属性等于 mode 的数据点之和；mode 为空时累加全部。
func sumByMode(t *testing.T, rm metricdata.ResourceMetrics, name, mode string) int64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", name)

	var total int64
	for _, dp := range sum.DataPoints {
		if mode != "" {
			v, ok := dp.Attributes.Value(attribute.Key("mode"))
			if !ok || v.AsString() != mode {
				continue
			}
		}
		total += dp.Value
	}
	return total
}

func histogramCount(t *testing.T, rm metricdata.ResourceMetrics, name, mode string) uint64 {
	t.Helper()
	m, ok := findMetric(rm, name)
	if !ok {
		return 0
	}
	h, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "metric %s is not a float64 histogram", name)

	var total uint64
	for _, dp := range h.DataPoints {
		v, ok := dp.Attributes.Value(attribute.Key("mode"))
		if ok && v.AsString() == mode {
			total += dp.Count
		}
	}
	return total
}

func TestLeaseMetrics(t *testing.T) {
	m, reader := newMeteredMap(t)
	m.Insert("k", 1)

	r, ok := m.Get("k")
	require.True(t, ok)

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumByMode(t, rm, metricLeaseActive, "read"))
	assert.Equal(t, int64(0), sumByMode(t, rm, metricLeaseActive, "write"))

	require.NoError(t, r.Release())

	rm = collect(t, reader)
	assert.Equal(t, int64(0), sumByMode(t, rm, metricLeaseActive, ""))
	// Insert 一次写租约，Get 一次读租约
	assert.Equal(t, uint64(1), histogramCount(t, rm, metricLeaseHold, "read"))
	assert.Equal(t, uint64(1), histogramCount(t, rm, metricLeaseHold, "write"))
	assert.Equal(t, uint64(1), histogramCount(t, rm, metricLeaseWait, "read"))
}

func TestDowngradeMetrics(t *testing.T) {
	m, reader := newMeteredMap(t)
	m.Insert("k", 1)

	w, ok := m.GetMut("k")
	require.True(t, ok)
	r := w.Downgrade()

	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumByMode(t, rm, metricLeaseDowngrade, ""))
	assert.Equal(t, int64(1), sumByMode(t, rm, metricLeaseActive, "read"))
	assert.Equal(t, int64(0), sumByMode(t, rm, metricLeaseActive, "write"))

	require.NoError(t, r.Release())
	rm = collect(t, reader)
	assert.Equal(t, int64(0), sumByMode(t, rm, metricLeaseActive, ""))
}

func TestSplitReleasesLeaseOnce(t *testing.T) {
	m, reader := newMeteredMap(t)
	m.Insert("k", 1)

	w, ok := m.GetMut("k")
	require.True(t, ok)
	// 不相交性由拆分函数负责，这里只关心租约计数
	a, b := MapSplitMut(w, func(v *int) (*int, *int) { return v, new(int) })

	require.NoError(t, a.Release())
	rm := collect(t, reader)
	assert.Equal(t, int64(1), sumByMode(t, rm, metricLeaseActive, "write"))

	require.NoError(t, b.Release())
	assert.ErrorIs(t, b.Release(), ErrReleased)
	rm = collect(t, reader)
	assert.Equal(t, int64(0), sumByMode(t, rm, metricLeaseActive, "write"))
	// Insert + 拆分后的一次释放
	assert.Equal(t, uint64(2), histogramCount(t, rm, metricLeaseHold, "write"))
}
