package capture

import (
	"context"
	"log/slog"
	"testing"

	"github.com/flarelane/logdeck/internal/event"
)

type fakeSink struct {
	events []*event.Event
}

func (f *fakeSink) Capture(e *event.Event) {
	f.events = append(f.events, e)
}

func newTestLogger(sink *fakeSink) *slog.Logger {
	return slog.New(NewHandler(sink))
}

func TestFieldExtractionCanonicalizesScalars(t *testing.T) {
	sink := &fakeSink{}
	log := newTestLogger(sink)
	log.Info("msg", "n", 42, "ok", true, "ratio", 1.5, "name", "bob")

	if len(sink.events) != 1 {
		t.Fatalf("got %d events, want 1", len(sink.events))
	}
	e := sink.events[0]
	if e.Fields["n"] != "42" {
		t.Errorf("n = %q, want 42", e.Fields["n"])
	}
	if e.Fields["ok"] != "true" {
		t.Errorf("ok = %q, want true", e.Fields["ok"])
	}
	if e.Fields["ratio"] != "1.5" {
		t.Errorf("ratio = %q, want 1.5", e.Fields["ratio"])
	}
	if e.Fields["name"] != "bob" {
		t.Errorf("name = %q, want bob", e.Fields["name"])
	}
}

func TestReservedFieldsStripped(t *testing.T) {
	sink := &fakeSink{}
	log := newTestLogger(sink)
	log.Info("fallback", "log.target", "custom::target", "log.file", "x.go", "log.line", 10)

	e := sink.events[0]
	if e.Target != "custom::target" {
		t.Fatalf("target = %q, want custom::target", e.Target)
	}
	for _, reserved := range []string{"log.target", "log.file", "log.line", "message"} {
		if _, ok := e.Fields[reserved]; ok {
			t.Errorf("reserved field %q leaked into Fields", reserved)
		}
	}
}

func TestGroupsJoinWithDoubleColon(t *testing.T) {
	sink := &fakeSink{}
	log := newTestLogger(sink).WithGroup("db").WithGroup("pool")
	log.Info("checkout")

	e := sink.events[0]
	if e.Target != "db::pool" {
		t.Fatalf("target = %q, want db::pool", e.Target)
	}
}

func TestNoiseFilterDropsOwnModule(t *testing.T) {
	sink := &fakeSink{}
	log := newTestLogger(sink)
	log.Info("m", "log.target", "logdeck::internal")
	log.Info("m", "log.target", "log")
	log.Info("m", "log.target", "websocket::writepump")
	log.Info("m", "log.target", "app")

	if len(sink.events) != 1 {
		t.Fatalf("got %d events, want 1 (only 'app' survives)", len(sink.events))
	}
	if sink.events[0].Target != "app" {
		t.Fatalf("target = %q, want app", sink.events[0].Target)
	}
}

func TestMessageFallsBackToRenderedFields(t *testing.T) {
	sink := &fakeSink{}
	log := newTestLogger(sink)
	log.Info("", "b", "2", "a", "1")

	e := sink.events[0]
	if e.Message != "a: 1, b: 2" {
		t.Fatalf("message = %q, want %q", e.Message, "a: 1, b: 2")
	}
}

func TestSpanFieldsAttachToEventsInsideSpan(t *testing.T) {
	sink := &fakeSink{}
	log := newTestLogger(sink)

	ctx, end := StartSpan(context.Background(), "request", map[string]string{"method": "GET"})
	defer end()
	log.InfoContext(ctx, "handled")

	e := sink.events[0]
	if e.Span == nil {
		t.Fatal("expected span to be attached")
	}
	if e.Span.Name != "request" || e.Span.Fields["method"] != "GET" {
		t.Fatalf("unexpected span: %+v", e.Span)
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	sink := &fakeSink{}
	first := Install(sink)
	second := Install(sink)
	if !first {
		t.Error("first Install call should report true")
	}
	if second {
		t.Error("second Install call should report false")
	}
}
