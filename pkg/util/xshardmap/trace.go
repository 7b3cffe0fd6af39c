package xshardmap

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span 名称
const (
	spanNameGet    = "xshardmap.GetContext"
	spanNameGetMut = "xshardmap.GetMutContext"
)

// Span 属性名称
const (
	attrShard = "xshardmap.shard"
	attrMode  = "xshardmap.mode"
	attrFound = "xshardmap.found"
)

// startSpan 为一次带 context 的分片锁等待创建 span。
func (t *telemetry) startSpan(ctx context.Context, name string, mode lockMode, shard int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int(attrShard, shard),
			attribute.String(attrMode, mode.String()),
		),
	)
}

// endSpan 记录查找结果并结束 span。
// ErrNotFound 是正常结果，只记为 found=false，不标记为错误。
func endSpan(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool(attrFound, true))
	case errors.Is(err, ErrNotFound):
		span.SetAttributes(attribute.Bool(attrFound, false))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
