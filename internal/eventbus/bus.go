// Package eventbus decouples the dispatcher from observers of run
// outcomes (today: the app's systemd STATUS mirror) with an in-memory,
// non-blocking fanout.
package eventbus

import (
	"sync"
	"time"
)

// Run lifecycle event types published by the dispatcher.
const (
	TypeRunStarted  = "run.started"
	TypeRunFinished = "run.finished"
	TypeRunFailed   = "run.failed"
	TypeRunTimeout  = "run.timeout"
)

// Event is one lightweight signal. Data carries a dispatch.RunStarted or
// dispatch.RunOutcome for the run.* types.
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full simply misses the event, so the dispatcher can
// never be stalled by a slow observer.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns the in-memory bus. It owns no goroutines; Publish delivers
// inline from the caller.
func New() Bus {
	return &fanout{subs: map[int]chan Event{}}
}

type fanout struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func (f *fanout) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	f.mu.RLock()
	targets := make([]chan Event, 0, len(f.subs))
	for _, ch := range f.subs {
		targets = append(targets, ch)
	}
	f.mu.RUnlock()

	for _, ch := range targets {
		f.deliver(ch, e)
	}
}

// deliver is best-effort: full buffers drop, and a channel closed by a
// concurrent unsubscribe is absorbed via recover rather than locking
// every send.
func (f *fanout) deliver(ch chan Event, e Event) {
	defer func() { _ = recover() }()
	select {
	case ch <- e:
	default:
	}
}

func (f *fanout) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	f.mu.Lock()
	f.next++
	id := f.next
	f.subs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
			close(ch)
		})
	}
}
