package bus

import (
	"context"
	"testing"
	"time"

	"github.com/flarelane/logdeck/internal/event"
)

func mustEvent(msg string) *event.Event {
	return &event.Event{Message: msg, Fields: map[string]string{}}
}

// S5 — two independent subscribers observe the same totally-ordered
// sequence.
func TestTwoSubscribersSeeSameOrder(t *testing.T) {
	b := New()
	r1 := b.Subscribe()
	r2 := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(mustEvent(string(rune('a' + i))))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 10; i++ {
		e1, lag1, closed1 := r1.Recv(ctx)
		e2, lag2, closed2 := r2.Recv(ctx)
		if closed1 || closed2 {
			t.Fatalf("unexpected closed at i=%d", i)
		}
		if lag1 != 0 || lag2 != 0 {
			t.Fatalf("unexpected lag at i=%d: %d %d", i, lag1, lag2)
		}
		if e1.Message != e2.Message {
			t.Fatalf("subscribers diverged at i=%d: %q vs %q", i, e1.Message, e2.Message)
		}
	}
}

// S6 — a subscriber that falls more than the backlog behind observes
// Lagged with the fast subscriber unaffected.
func TestSlowSubscriberLags(t *testing.T) {
	b := New()
	fast := b.Subscribe()
	slow := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(mustEvent("early"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	seen := 0
	for i := 0; i < 10; i++ {
		_, lag, closed := fast.Recv(ctx)
		if closed {
			t.Fatalf("fast subscriber closed early")
		}
		if lag != 0 {
			t.Fatalf("fast subscriber unexpectedly lagged: %d", lag)
		}
		seen++
	}
	if seen != 10 {
		t.Fatalf("fast subscriber saw %d events, want 10", seen)
	}

	for i := 0; i < 200; i++ {
		b.Publish(mustEvent("burst"))
	}

	_, lag, closed := slow.Recv(ctx)
	if closed {
		t.Fatalf("slow subscriber unexpectedly closed")
	}
	if lag < 100 {
		t.Fatalf("slow subscriber lag = %d, want >= 100", lag)
	}

	_, lag2, closed2 := slow.Recv(ctx)
	if closed2 {
		t.Fatalf("slow subscriber unexpectedly closed")
	}
	if lag2 != 0 {
		t.Fatalf("expected no further lag immediately after catch-up, got %d", lag2)
	}
}

func TestSubscribeDoesNotReplayBacklog(t *testing.T) {
	b := New()
	b.Publish(mustEvent("before subscribe"))

	r := b.Subscribe()
	b.Publish(mustEvent("after subscribe"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	e, lag, closed := r.Recv(ctx)
	if closed {
		t.Fatalf("unexpected closed")
	}
	if lag != 0 {
		t.Fatalf("unexpected lag: %d", lag)
	}
	if e.Message != "after subscribe" {
		t.Fatalf("got %q, want %q", e.Message, "after subscribe")
	}
}

func TestCloseWakesReceivers(t *testing.T) {
	b := New()
	r := b.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _, closed := r.Recv(context.Background())
		if !closed {
			t.Error("expected closed=true")
		}
	}()

	b.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Recv did not return after Close")
	}
}

func TestRecvRespectsContextCancellation(t *testing.T) {
	b := New()
	r := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, closed := r.Recv(ctx)
	if closed {
		t.Fatalf("expected closed=false on context cancellation")
	}
}
