package xtier

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/omeyang/xtier/xtier"

	metricHits      = "xtier.cache.hits"
	metricMisses    = "xtier.cache.misses"
	metricStores    = "xtier.cache.stores"
	metricEvictions = "xtier.cache.evictions"
	metricTasks     = "xtier.async.tasks"
	metricDuration  = "xtier.disk.duration"

	tierMemory = "memory"
	tierDisk   = "disk"

	taskWrite = "write"
	taskPurge = "purge"
	taskRead  = "read"

	resultOK      = "ok"
	resultError   = "error"
	resultAborted = "aborted"
)

// instruments 汇总 Store 使用的 OTel 指标与 tracer。
type instruments struct {
	tracer    trace.Tracer
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	stores    metric.Int64Counter
	evictions metric.Int64Counter
	tasks     metric.Int64Counter
	duration  metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider, tp trace.TracerProvider) (*instruments, error) {
	meter := mp.Meter(instrumentationName)
	inst := &instruments{tracer: tp.Tracer(instrumentationName)}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&inst.hits, metricHits, "cache hits by tier"},
		{&inst.misses, metricMisses, "cache misses"},
		{&inst.stores, metricStores, "cache stores"},
		{&inst.evictions, metricEvictions, "expired or purged entries removed by tier"},
		{&inst.tasks, metricTasks, "completed async disk tasks"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return nil, fmt.Errorf("xtier: create counter %s failed: %w", c.name, err)
		}
		*c.dst = counter
	}

	duration, err := meter.Float64Histogram(
		metricDuration,
		metric.WithDescription("synchronous disk operation duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("xtier: create histogram failed: %w", err)
	}
	inst.duration = duration
	return inst, nil
}

func (i *instruments) hit(ctx context.Context, tier string) {
	i.hits.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

func (i *instruments) miss(ctx context.Context) {
	i.misses.Add(ctx, 1)
}

func (i *instruments) stored(ctx context.Context, persist bool) {
	i.stores.Add(ctx, 1, metric.WithAttributes(attribute.Bool("persist", persist)))
}

func (i *instruments) evicted(ctx context.Context, tier string, n int) {
	if n <= 0 {
		return
	}
	i.evictions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("tier", tier)))
}

func (i *instruments) taskDone(kind, result string) {
	i.tasks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("result", result),
	))
}

// diskOp 是一次同步磁盘操作的观测跨度。
type diskOp struct {
	inst      *instruments
	span      trace.Span
	operation string
	start     time.Time
}

// startDisk 为同步磁盘操作开启 span，并在 end 时记录耗时。
func (i *instruments) startDisk(ctx context.Context, operation, key string) (context.Context, *diskOp) {
	ctx, span := i.tracer.Start(ctx, "xtier."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("xtier.operation", operation),
			attribute.String("xtier.key", key),
		),
	)
	return ctx, &diskOp{inst: i, span: span, operation: operation, start: time.Now()}
}

func (op *diskOp) end(ctx context.Context, err error) {
	op.inst.duration.Record(ctx, time.Since(op.start).Seconds(),
		metric.WithAttributes(attribute.String("operation", op.operation)))
	if err != nil {
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, err.Error())
	} else {
		op.span.SetStatus(codes.Ok, "")
	}
	op.span.End()
}
