package ring

import (
	"testing"
	"time"

	"github.com/flarelane/logdeck/internal/event"
)

func mustEvent(target, message string, level event.Level) *event.Event {
	return &event.Event{
		Timestamp: time.Now(),
		Level:     level,
		Target:    target,
		Message:   message,
		Fields:    map[string]string{},
	}
}

// S1 — Eviction. Capacity 3; push m1..m4; newest-first, no limit expects
// [m4,m3,m2], total 3.
func TestEviction(t *testing.T) {
	s := New(3)
	for _, m := range []string{"m1", "m2", "m3", "m4"} {
		s.Push(mustEvent("app", m, event.LevelInfo))
	}

	logs, total := s.SnapshotFiltered(Filter{}, -1, 0)
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	want := []string{"m4", "m3", "m2"}
	if len(logs) != len(want) {
		t.Fatalf("got %d logs, want %d", len(logs), len(want))
	}
	for i, m := range want {
		if logs[i].Message != m {
			t.Errorf("logs[%d] = %q, want %q", i, logs[i].Message, m)
		}
	}
}

// S2 — level gate: a global_level filter excludes events below it.
func TestGlobalLevelGate(t *testing.T) {
	s := New(10)
	s.Push(mustEvent("app", "trace", event.LevelTrace))
	s.Push(mustEvent("app", "info", event.LevelInfo))
	s.Push(mustEvent("app", "error", event.LevelError))

	logs, total := s.SnapshotFiltered(Filter{GlobalLevel: event.LevelInfo, HasGlobal: true, SortOrder: OldestFirst}, -1, 0)
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if logs[0].Message != "info" || logs[1].Message != "error" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

// S3 — longest-prefix target level resolution: a more specific target_levels
// entry overrides a shorter one, and overrides global_level.
func TestLongestPrefixTargetLevel(t *testing.T) {
	s := New(10)
	s.Push(mustEvent("app", "app-debug", event.LevelDebug))
	s.Push(mustEvent("app::db", "db-debug", event.LevelDebug))
	s.Push(mustEvent("app::db::pool", "pool-debug", event.LevelDebug))

	filter := Filter{
		GlobalLevel: event.LevelError,
		HasGlobal:   true,
		TargetLevels: map[string]event.Level{
			"app":         event.LevelWarn,
			"app::db":     event.LevelInfo,
			"app::db::pool": event.LevelDebug,
		},
		SortOrder: OldestFirst,
	}
	logs, total := s.SnapshotFiltered(filter, -1, 0)
	if total != 1 {
		t.Fatalf("total = %d, want 1 (app-debug excluded by warn gate, db-debug by info gate)", total)
	}
	if len(logs) != 1 || logs[0].Message != "pool-debug" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
}

// S4 — search is a case-insensitive substring match over message.
func TestSearch(t *testing.T) {
	s := New(10)
	s.Push(mustEvent("app", "hello world", event.LevelInfo))
	s.Push(mustEvent("app", "GOODBYE WORLD", event.LevelInfo))
	s.Push(mustEvent("app", "test", event.LevelInfo))

	_, total := s.SnapshotFiltered(Filter{Search: "world"}, -1, 0)
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
}

func TestCapacityZeroStaysEmpty(t *testing.T) {
	s := New(0)
	s.Push(mustEvent("app", "m1", event.LevelInfo))
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
	logs, total := s.SnapshotFiltered(Filter{}, -1, 0)
	if total != 0 || len(logs) != 0 {
		t.Fatalf("expected empty snapshot, got total=%d logs=%d", total, len(logs))
	}
}

func TestLimitZeroReturnsEmptyButCorrectTotal(t *testing.T) {
	s := New(10)
	s.Push(mustEvent("app", "m1", event.LevelInfo))
	s.Push(mustEvent("app", "m2", event.LevelInfo))

	logs, total := s.SnapshotFiltered(Filter{}, 0, 0)
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if len(logs) != 0 {
		t.Fatalf("logs = %v, want empty", logs)
	}
}

func TestOffsetBeyondTotalReturnsEmpty(t *testing.T) {
	s := New(10)
	s.Push(mustEvent("app", "m1", event.LevelInfo))

	logs, total := s.SnapshotFiltered(Filter{}, -1, 5)
	if total != 1 {
		t.Fatalf("total = %d, want 1", total)
	}
	if len(logs) != 0 {
		t.Fatalf("logs = %v, want empty", logs)
	}
}

func TestUnknownLevelNameTreatedAsLowest(t *testing.T) {
	if got := event.ParseLevel("not-a-level"); got != event.LevelUnknown {
		t.Fatalf("ParseLevel(garbage) = %v, want LevelUnknown", got)
	}
}

func TestDistinctTargetsSorted(t *testing.T) {
	s := New(10)
	s.Push(mustEvent("zebra", "m", event.LevelInfo))
	s.Push(mustEvent("app", "m", event.LevelInfo))
	s.Push(mustEvent("app", "m2", event.LevelInfo))

	targets := s.DistinctTargets()
	want := []string{"app", "zebra"}
	if len(targets) != len(want) {
		t.Fatalf("targets = %v, want %v", targets, want)
	}
	for i := range want {
		if targets[i] != want[i] {
			t.Fatalf("targets = %v, want %v", targets, want)
		}
	}
}
