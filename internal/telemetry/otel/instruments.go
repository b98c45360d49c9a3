package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instruments publishes metrics and traces describing the console's own
// health: capture throughput, eviction/lag pressure, connection counts,
// and query latency. Adapted from the teacher's request-scoped instrument
// handle pattern (formerly MCP-proxy metrics), retargeted to this domain.
type Instruments struct {
	meterEnabled bool
	traceEnabled bool

	eventsCaptured   metric.Int64Counter
	eventsDroppedNoi metric.Int64Counter
	ringEvicted      metric.Int64Counter
	busLagged        metric.Int64Counter
	wsConnections    metric.Int64UpDownCounter
	queryDuration    metric.Int64Histogram

	tracer trace.Tracer
}

// QueryHandle tracks one in-flight POST /api/logs call for FinishQuery.
type QueryHandle struct {
	ctx   context.Context
	span  trace.Span
	start time.Time
}

func newInstruments(p *Provider) *Instruments {
	if p == nil {
		return nil
	}
	inst := &Instruments{
		meterEnabled: p.meterProvider != nil,
		traceEnabled: p.tracerProvider != nil,
	}
	if p.meterProvider != nil {
		inst.eventsCaptured, _ = p.meter.Int64Counter(
			"logdeck.events.captured",
			metric.WithDescription("Number of log records captured by the slog handler"),
		)
		inst.eventsDroppedNoi, _ = p.meter.Int64Counter(
			"logdeck.events.dropped_noise",
			metric.WithDescription("Number of captured records dropped by the noise filter"),
		)
		inst.ringEvicted, _ = p.meter.Int64Counter(
			"logdeck.ring.evicted",
			metric.WithDescription("Number of events evicted from the ring store on overflow"),
		)
		inst.busLagged, _ = p.meter.Int64Counter(
			"logdeck.bus.lagged",
			metric.WithDescription("Number of events skipped by lagging stream subscribers"),
		)
		inst.wsConnections, _ = p.meter.Int64UpDownCounter(
			"logdeck.ws.connections",
			metric.WithDescription("Number of currently open /api/ws connections"),
		)
		inst.queryDuration, _ = p.meter.Int64Histogram(
			"logdeck.query",
			metric.WithDescription("Duration of POST /api/logs queries in milliseconds"),
		)
	}
	if p.tracerProvider != nil {
		inst.tracer = p.tracer
	}
	return inst
}

// CaptureEvent records one captured event.
func (i *Instruments) CaptureEvent(ctx context.Context) {
	if i == nil || !i.meterEnabled {
		return
	}
	i.eventsCaptured.Add(ctx, 1)
}

// DropNoise records one record dropped by the noise filter.
func (i *Instruments) DropNoise(ctx context.Context, target string) {
	if i == nil || !i.meterEnabled {
		return
	}
	i.eventsDroppedNoi.Add(ctx, 1, metric.WithAttributes(attribute.String("target", target)))
}

// RingEvict records one ring-store eviction.
func (i *Instruments) RingEvict(ctx context.Context) {
	if i == nil || !i.meterEnabled {
		return
	}
	i.ringEvicted.Add(ctx, 1)
}

// BusLag records n events skipped by a lagging stream subscriber.
func (i *Instruments) BusLag(ctx context.Context, n int) {
	if i == nil || !i.meterEnabled || n <= 0 {
		return
	}
	i.busLagged.Add(ctx, int64(n))
}

// ConnectionOpened records a new /api/ws connection.
func (i *Instruments) ConnectionOpened(ctx context.Context) {
	if i == nil || !i.meterEnabled {
		return
	}
	i.wsConnections.Add(ctx, 1)
}

// ConnectionClosed records a closed /api/ws connection.
func (i *Instruments) ConnectionClosed(ctx context.Context) {
	if i == nil || !i.meterEnabled {
		return
	}
	i.wsConnections.Add(ctx, -1)
}

// StartQuery opens a span (when tracing is enabled) around a POST /api/logs
// call and returns a handle for FinishQuery.
func (i *Instruments) StartQuery(parent context.Context) (*QueryHandle, context.Context) {
	if i == nil {
		return nil, parent
	}
	h := &QueryHandle{ctx: parent, start: time.Now()}
	if i.traceEnabled && i.tracer != nil {
		ctx, span := i.tracer.Start(parent, "logdeck.query")
		h.ctx = ctx
		h.span = span
	}
	return h, h.ctx
}

// FinishQuery records the query's duration and result size, closing the
// span opened by StartQuery if tracing was enabled.
func (i *Instruments) FinishQuery(h *QueryHandle, total int, err error) {
	if i == nil || h == nil {
		return
	}
	elapsed := time.Since(h.start)
	attrs := []attribute.KeyValue{attribute.Int("result.total", total)}
	if i.meterEnabled {
		i.queryDuration.Record(h.ctx, elapsed.Milliseconds(), metric.WithAttributes(attrs...))
	}
	if h.span != nil {
		h.span.SetAttributes(attrs...)
		if err != nil {
			h.span.SetStatus(codes.Error, err.Error())
		}
		h.span.End()
	}
}
