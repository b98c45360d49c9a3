// Package bus implements the live event broadcast: a bounded backlog ring
// shared by every subscriber, a monotonic sequence number, and per-
// subscriber cursors that detect when a slow reader has fallen behind
// instead of silently dropping events for everyone.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flarelane/logdeck/internal/event"
)

// backlog is the fixed size of the shared replay ring. A subscriber whose
// cursor falls more than backlog entries behind the writer has lagged:
// those entries can no longer be replayed and the cursor must skip ahead.
const backlog = 100

type slot struct {
	evt *event.Event
}

// Bus fans a stream of events out to any number of independent readers.
// Publish never blocks on a subscriber: it writes into a fixed ring and
// signals waiters through a swapped notify channel.
type Bus struct {
	mu      sync.Mutex
	ring    [backlog]slot
	notify  chan struct{} // closed and replaced on every Publish/Close
	nextSeq atomic.Uint64 // sequence to be assigned to the next published event
	closed  bool
}

// New returns a ready-to-use Bus.
func New() *Bus {
	return &Bus{notify: make(chan struct{})}
}

// Publish assigns the next sequence number to e, stores it in the ring
// (overwriting the slot from backlog entries ago), and wakes every
// blocked Recv call.
func (b *Bus) Publish(e *event.Event) {
	b.mu.Lock()
	seq := b.nextSeq.Add(1) - 1
	b.ring[seq%backlog] = slot{evt: e}
	b.wakeLocked()
	b.mu.Unlock()
}

// Close wakes every blocked receiver so Recv returns closed=true instead
// of hanging forever. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.wakeLocked()
	b.mu.Unlock()
}

func (b *Bus) wakeLocked() {
	close(b.notify)
	b.notify = make(chan struct{})
}

// Receiver is one subscriber's view of the bus. Not safe for concurrent
// use by multiple goroutines.
type Receiver struct {
	bus    *Bus
	cursor uint64 // next sequence this receiver wants to read
}

// Subscribe returns a Receiver positioned at the current tail: it only
// observes events published after Subscribe returns, per spec.md §4.C's
// "no backlog replay on subscribe" rule.
func (b *Bus) Subscribe() *Receiver {
	return &Receiver{bus: b, cursor: b.nextSeq.Load()}
}

// Recv blocks until the next event is available, ctx is done, or the bus
// is closed. lagged reports how many events were skipped because they
// had already been evicted from the backlog before this call observed
// them; when lagged > 0, evt is the oldest still-available event and the
// receiver's cursor has been fast-forwarded past the gap.
func (r *Receiver) Recv(ctx context.Context) (evt *event.Event, lagged int, closed bool) {
	for {
		r.bus.mu.Lock()
		latest := r.bus.nextSeq.Load()
		if r.cursor < latest {
			oldestAvailable := uint64(0)
			if latest > backlog {
				oldestAvailable = latest - backlog
			}
			if r.cursor < oldestAvailable {
				lagged = int(oldestAvailable - r.cursor)
				r.cursor = oldestAvailable
			}
			s := r.bus.ring[r.cursor%backlog]
			r.cursor++
			r.bus.mu.Unlock()
			return s.evt, lagged, false
		}
		if r.bus.closed {
			r.bus.mu.Unlock()
			return nil, 0, true
		}
		wait := r.bus.notify
		r.bus.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, 0, false
		}
	}
}
