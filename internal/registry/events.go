package registry

import (
	"sync"

	"github.com/rs/zerolog"
)

// Event is a registry lifecycle event: name, the feature it concerns (empty
// for core events) and optional fields.
type Event struct {
	Name    string
	Feature string
	Fields  map[string]any
}

// Event names.
const (
	EventCoreLoaded      = "core_loaded"
	EventCoreLoadFailed  = "core_load_failed"
	EventCoreUnloaded    = "core_unloaded"
	EventFeatureLoaded   = "feature_loaded"
	EventFeatureUnloaded = "feature_unloaded"
	EventSessionCreated  = "session_created"
	EventSessionFailed   = "session_failed"
	EventSessionClosed   = "session_closed"
)

// EventPublisher receives registry events. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// LogPublisher writes events to a logger at info level.
type LogPublisher struct{ Log zerolog.Logger }

func (p LogPublisher) Publish(e Event) {
	ev := p.Log.Info().Str("event", e.Name)
	if e.Feature != "" {
		ev = ev.Str("feature", e.Feature)
	}
	ev.Fields(e.Fields).Msg("registry")
}

// MemoryPublisher stores events in memory for tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Names returns the recorded event names in order.
func (p *MemoryPublisher) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Name
	}
	return out
}
