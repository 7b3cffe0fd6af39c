package xshardmap

import (
	"fmt"
	"log/slog"
	"math/bits"
	"runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxShardCount = 1 << 16 // 65536

	// shardsPerProc 是默认分片数相对 GOMAXPROCS 的倍数。
	shardsPerProc = 4
)

// Option 定义 Map 可选配置。
type Option func(*options)

type options struct {
	shardCount       int
	logger           *slog.Logger
	meterProvider    metric.MeterProvider
	tracerProvider   trace.TracerProvider
	releaseOnCollect bool
}

func defaultOptions() options {
	return options{
		shardCount:       defaultShardCount(),
		logger:           slog.Default(),
		meterProvider:    otel.GetMeterProvider(),
		tracerProvider:   otel.GetTracerProvider(),
		releaseOnCollect: true,
	}
}

// defaultShardCount 返回不小于 4×GOMAXPROCS 的最小 2 的幂。
func defaultShardCount() int {
	n := runtime.GOMAXPROCS(0) * shardsPerProc
	if n <= 1 {
		return 1
	}
	n = 1 << bits.Len(uint(n-1))
	return min(n, maxShardCount)
}

// WithShardCount 设置分片数量。
// n 必须为正整数且为 2 的幂，上限 65536，否则 New 返回 [ErrInvalidShardCount]。
// 默认为不小于 4×GOMAXPROCS 的最小 2 的幂。
func WithShardCount(n int) Option {
	return func(o *options) {
		o.shardCount = n
	}
}

// WithLogger 设置日志记录器。
// 默认使用 slog.Default()。传入 nil 将被忽略，保持使用默认值。
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMeterProvider 设置用于创建租约指标的 MeterProvider。
// 默认使用 otel.GetMeterProvider()。传入 nil 将被忽略。
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) {
		if provider != nil {
			o.meterProvider = provider
		}
	}
}

// WithTracerProvider 设置 GetContext/GetMutContext 使用的 TracerProvider。
// 默认使用 otel.GetTracerProvider()。传入 nil 将被忽略。
// span 只覆盖等待分片锁的区间，不覆盖引用的持有期。
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *options) {
		if provider != nil {
			o.tracerProvider = provider
		}
	}
}

// WithReleaseOnCollect 设置是否在引用被 GC 回收而未 Release 时兜底释放分片锁。
// 默认开启。兜底释放会记录 Warn 日志并累加泄漏计数。
//
// 设计决策: 兜底释放只是防止遗忘 Release 导致分片永久锁死的安全网。
// 对 ValueMut 返回的指针在引用最后一次使用之后继续写入，可能与兜底释放竞争，
// 调用方必须显式 Release。
func WithReleaseOnCollect(enabled bool) Option {
	return func(o *options) {
		o.releaseOnCollect = enabled
	}
}

func (o *options) validate() error {
	sc := o.shardCount
	if sc <= 0 || sc > maxShardCount || sc&(sc-1) != 0 {
		return fmt.Errorf("%w: must be a positive power of 2 (max %d), got %d",
			ErrInvalidShardCount, maxShardCount, sc)
	}
	return nil
}
