// Package broadcast fans committed mutations out to whatever is watching the
// board. The core calls Broadcast synchronously after a successful write and
// never depends on the outcome: delivery is best-effort, errors are logged and
// swallowed.
package broadcast

import (
	"context"
	"sync"

	"github.com/retroflect/backend/internal/events"
)

// Broadcaster receives one intent per committed mutation
type Broadcaster interface {
	Broadcast(ctx context.Context, event events.Event)
}

// Nop discards every event. Used when no broadcast backend is configured.
type Nop struct{}

// Broadcast implements Broadcaster
func (Nop) Broadcast(context.Context, events.Event) {}

// Recorder captures events for assertions in tests
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
}

// Broadcast implements Broadcaster
func (r *Recorder) Broadcast(_ context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of everything broadcast so far
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event, if any
func (r *Recorder) Last() (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return events.Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Reset clears the recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
