package xshardmap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/omeyang/xshard/xshardmap"

	metricLeaseActive    = "xshardmap.lease.active"
	metricLeaseWait      = "xshardmap.lease.wait.duration"
	metricLeaseHold      = "xshardmap.lease.hold.duration"
	metricLeaseDowngrade = "xshardmap.lease.downgrade.total"
	metricLeaseLeaked    = "xshardmap.lease.leaked.total"
)

// lockMode 表示租约持有的锁模式。
type lockMode uint8

const (
	modeRead lockMode = iota
	modeWrite
)

func (m lockMode) String() string {
	if m == modeWrite {
		return "write"
	}
	return "read"
}

// telemetry 汇总一个 Map 的日志与指标出口，所有租约共享。
type telemetry struct {
	logger           *slog.Logger
	tracer           trace.Tracer
	releaseOnCollect bool

	active     metric.Int64UpDownCounter
	wait       metric.Float64Histogram
	hold       metric.Float64Histogram
	downgrades metric.Int64Counter
	leaks      metric.Int64Counter

	modeAttrs [2]metric.MeasurementOption
}

func newTelemetry(o *options) (*telemetry, error) {
	meter := o.meterProvider.Meter(instrumentationName)

	active, err := meter.Int64UpDownCounter(
		metricLeaseActive,
		metric.WithDescription("shard lock leases currently held"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("xshardmap: create counter failed: %w", err)
	}
	wait, err := meter.Float64Histogram(
		metricLeaseWait,
		metric.WithDescription("time spent acquiring a shard lock"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("xshardmap: create histogram failed: %w", err)
	}
	hold, err := meter.Float64Histogram(
		metricLeaseHold,
		metric.WithDescription("time a shard lock was held"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("xshardmap: create histogram failed: %w", err)
	}
	downgrades, err := meter.Int64Counter(
		metricLeaseDowngrade,
		metric.WithDescription("write leases downgraded to read leases"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("xshardmap: create counter failed: %w", err)
	}
	leaks, err := meter.Int64Counter(
		metricLeaseLeaked,
		metric.WithDescription("references reclaimed by the garbage collector without Release"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("xshardmap: create counter failed: %w", err)
	}

	return &telemetry{
		logger:           o.logger,
		tracer:           o.tracerProvider.Tracer(instrumentationName),
		releaseOnCollect: o.releaseOnCollect,
		active:           active,
		wait:             wait,
		hold:             hold,
		downgrades:       downgrades,
		leaks:            leaks,
		modeAttrs: [2]metric.MeasurementOption{
			modeRead:  metric.WithAttributeSet(attribute.NewSet(attribute.String("mode", modeRead.String()))),
			modeWrite: metric.WithAttributeSet(attribute.NewSet(attribute.String("mode", modeWrite.String()))),
		},
	}, nil
}

func (t *telemetry) acquired(mode lockMode, waited time.Duration) {
	ctx := context.Background()
	t.active.Add(ctx, 1, t.modeAttrs[mode])
	t.wait.Record(ctx, waited.Seconds(), t.modeAttrs[mode])
}

func (t *telemetry) released(mode lockMode, held time.Duration) {
	ctx := context.Background()
	t.active.Add(ctx, -1, t.modeAttrs[mode])
	t.hold.Record(ctx, held.Seconds(), t.modeAttrs[mode])
}

// downgraded 结束写模式的持有区间，并开始一个读模式区间。
func (t *telemetry) downgraded(held time.Duration) {
	ctx := context.Background()
	t.active.Add(ctx, -1, t.modeAttrs[modeWrite])
	t.hold.Record(ctx, held.Seconds(), t.modeAttrs[modeWrite])
	t.active.Add(ctx, 1, t.modeAttrs[modeRead])
	t.downgrades.Add(ctx, 1)
}

func (t *telemetry) leaked(kind string, shard int) {
	t.leaks.Add(context.Background(), 1)
	t.logger.Warn("xshardmap: reference reclaimed by garbage collector without Release",
		slog.String("kind", kind),
		slog.Int("shard", shard),
	)
}
