// Package capture installs a slog.Handler that turns every log record the
// host application emits into an event.Event and forwards it to a Sink.
// It never blocks and never panics: a broken or adversarial host logger
// configuration must not be able to take down the application it logs.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"

	"github.com/flarelane/logdeck/internal/event"
)

// Sink receives every captured event as it is produced. Implementations
// must not block: the ring store and the live bus both satisfy this by
// construction (Push is O(1), Publish never waits on a subscriber).
type Sink interface {
	Capture(*event.Event)
}

// Metrics receives ambient counts the handler cannot expose through Sink,
// because denied records never reach it. *otel.Instruments satisfies this.
type Metrics interface {
	DropNoise(ctx context.Context, target string)
}

type noopMetrics struct{}

func (noopMetrics) DropNoise(context.Context, string) {}

// deniedPrefixes are target prefixes whose events are dropped before
// reaching the sink, to prevent the console from logging itself into a
// feedback loop and to silence known-noisy transport libraries.
var deniedPrefixes = []string{"logdeck", "log", "websocket"}

func denied(target string) bool {
	for _, p := range deniedPrefixes {
		if target == p || strings.HasPrefix(target, p+"::") {
			return true
		}
	}
	return false
}

type spanFrame struct {
	name   string
	fields map[string]string
}

type spanStackKey struct{}

// StartSpan attaches a named span with the given fields to ctx and returns
// the child context plus an end function. The span is visible only through
// the returned context and contexts derived from it, where it replaces any
// enclosing span; the end function has no effect and exists so call sites
// can defer it. Spans are immutable once created: concurrent use of
// the same parent context from multiple goroutines is always safe because
// each call produces its own independent child context.
func StartSpan(ctx context.Context, name string, fields map[string]string) (context.Context, func()) {
	frame := spanFrame{name: name, fields: fields}
	child := context.WithValue(ctx, spanStackKey{}, &frame)
	return child, func() {}
}

func currentSpan(ctx context.Context) *event.Span {
	v := ctx.Value(spanStackKey{})
	if v == nil {
		return nil
	}
	f := v.(*spanFrame)
	return &event.Span{Name: f.name, Fields: f.fields}
}

// Handler is an slog.Handler that converts records to event.Event values
// and forwards the ones that survive the noise filter to sink. It never
// returns an error from Handle: conversion failures are impossible to
// trigger from a well-typed slog.Record, and anything unexpected is
// rendered best-effort rather than dropped.
type Handler struct {
	sink    Sink
	metrics Metrics
	groups  []string
	attrs   []slog.Attr
}

// NewHandler returns a Handler forwarding accepted events to sink.
func NewHandler(sink Sink) *Handler {
	return &Handler{sink: sink, metrics: noopMetrics{}}
}

// NewHandlerWithMetrics is like NewHandler but also reports noise-filter
// drops to metrics.
func NewHandlerWithMetrics(sink Sink, metrics Metrics) *Handler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Handler{sink: sink, metrics: metrics}
}

// Enabled always reports true: level gating happens downstream, in ring
// store queries (the live bus forwards every level), not at capture time, so that a
// TRACE-level query can still see events even if the host's own slog
// level were set conservatively elsewhere in the process.
func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

// Handle converts record into an event.Event and forwards it to the sink
// unless its resolved target is denied.
func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	fields := make(map[string]string, record.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		addAttr(fields, h.groupPrefix(), a)
	}
	record.Attrs(func(a slog.Attr) bool {
		addAttr(fields, h.groupPrefix(), a)
		return true
	})

	target := fields["log.target"]
	if target == "" {
		target = strings.Join(h.groups, "::")
	}
	if target == "" {
		target = callerTarget(record)
	}
	if target == "" {
		target = "app"
	}

	message := record.Message
	if m, ok := fields["message"]; ok && message == "" {
		message = m
	}
	for name := range fields {
		if event.IsReservedField(name) {
			delete(fields, name)
		}
	}
	if message == "" {
		message = event.RenderMessage(fields)
	}

	if denied(target) {
		h.metrics.DropNoise(ctx, target)
		return nil
	}

	e := &event.Event{
		Timestamp: record.Time,
		Level:     slogLevelToEvent(record.Level),
		Target:    target,
		Message:   message,
		Fields:    fields,
		Span:      currentSpan(ctx),
	}
	if record.PC != 0 {
		if file, line := sourceLocation(record.PC); file != "" {
			e.File = file
			e.Line = line
		}
	}

	h.sink.Capture(e)
	return nil
}

// WithAttrs returns a derived Handler that includes attrs on every
// subsequent record. Their field names take the group prefix in effect when
// a record is handled, including groups added by later WithGroup calls.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &next
}

// WithGroup returns a derived Handler whose field names and resolved
// target are namespaced under name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(append([]string{}, h.groups...), name)
	return &next
}

func (h *Handler) groupPrefix() string {
	if len(h.attrs) == 0 && len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".")
}

func addAttr(dst map[string]string, prefix string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	name := a.Key
	if prefix != "" {
		name = prefix + "." + name
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		dst[name] = v.String()
	case slog.KindBool:
		dst[name] = event.CanonicalBool(v.Bool())
	case slog.KindInt64:
		dst[name] = event.CanonicalInt(v.Int64())
	case slog.KindUint64:
		dst[name] = event.CanonicalUint(v.Uint64())
	case slog.KindFloat64:
		dst[name] = event.CanonicalFloat(v.Float64())
	case slog.KindGroup:
		for _, ga := range v.Group() {
			addAttr(dst, name, ga)
		}
	default:
		dst[name] = fmt.Sprint(v.Any())
	}
}

func slogLevelToEvent(l slog.Level) event.Level {
	switch {
	case l < slog.LevelDebug:
		return event.LevelTrace
	case l < slog.LevelInfo:
		return event.LevelDebug
	case l < slog.LevelWarn:
		return event.LevelInfo
	case l < slog.LevelError:
		return event.LevelWarn
	default:
		return event.LevelError
	}
}

func callerTarget(record slog.Record) string {
	if record.PC == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{record.PC})
	frame, _ := frames.Next()
	if frame.Function == "" {
		return ""
	}
	if i := strings.LastIndex(frame.Function, "/"); i >= 0 {
		return frame.Function[i+1:]
	}
	return frame.Function
}

func sourceLocation(pc uintptr) (file string, line int) {
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return frame.File, frame.Line
}

var installOnce sync.Once

// Install sets the process-wide slog default logger to one backed by a
// Handler forwarding to sink. It is safe to call more than once: only the
// first call takes effect, matching the "mount must not panic on double
// install" requirement. Returns whether this call performed the install.
func Install(sink Sink) bool {
	return InstallWithMetrics(sink, nil)
}

// InstallWithMetrics is like Install but also reports noise-filter drops
// to metrics.
func InstallWithMetrics(sink Sink, metrics Metrics) bool {
	installed := false
	installOnce.Do(func() {
		slog.SetDefault(slog.New(NewHandlerWithMetrics(sink, metrics)))
		installed = true
	})
	return installed
}
