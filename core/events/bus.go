// Package events provides the notification bus used to announce lifecycle
// phase boundaries. Delivery is synchronous so listeners observe phases in
// the order they happen.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Event represents a published notification.
type Event struct {
	// Name is the event name (e.g., "service:injection:before",
	// "db-service:injection:before").
	Name string

	// Args are the values passed to EmitOnce.
	Args []any
}

// Handler is a function that processes an event.
type Handler func(ctx context.Context, event Event) error

type subscription struct {
	id      uint64
	handler Handler
	once    bool
}

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event.
// The handler will be called whenever the event is published.
// Supports wildcard subscriptions:
//   - "service:init:after" - exact match
//   - "service:*" - every event whose first segment is "service"
//   - "*" - all events
func (b *Bus) Subscribe(event string, handler Handler) {
	b.add(event, handler, false)
}

// Once registers a handler that is removed after its first invocation.
func (b *Bus) Once(event string, handler Handler) {
	b.add(event, handler, true)
}

func (b *Bus) add(event string, handler Handler, once bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.handlers[event] = append(b.handlers[event], subscription{id: b.nextID, handler: handler, once: once})
}

// EmitOnce publishes a fire-and-forget notification. Every matching handler
// is invoked at most once for this emission, in registration order (exact,
// then prefix wildcard, then global wildcard). Handler errors are logged and
// never returned to the emitter.
func (b *Bus) EmitOnce(ctx context.Context, name string, args ...any) {
	b.Publish(ctx, Event{Name: name, Args: args})
}

// Publish emits an event to all matching handlers.
func (b *Bus) Publish(ctx context.Context, event Event) {
	matched := b.take(event.Name)

	b.logger.Debug().
		Str("event", event.Name).
		Int("listeners", len(matched)).
		Msg("event emitted")

	for _, sub := range matched {
		if err := b.invoke(ctx, sub.handler, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

func (b *Bus) invoke(ctx context.Context, h Handler, event Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			b.logger.Error().
				Interface("panic", p).
				Str("event", event.Name).
				Msg("event handler panicked")
		}
	}()
	return h(ctx, event)
}

// take collects matching subscriptions and drops the one-shot ones, so a
// handler that emits recursively cannot see itself twice.
func (b *Bus) take(name string) []subscription {
	keys := []string{name}
	if prefix, ok := firstSegment(name); ok {
		keys = append(keys, prefix+":*")
	}
	keys = append(keys, "*")

	b.mu.Lock()
	defer b.mu.Unlock()

	var matched []subscription
	seen := make(map[uint64]bool)
	for _, key := range keys {
		subs := b.handlers[key]
		kept := subs[:0]
		for _, sub := range subs {
			if !seen[sub.id] {
				seen[sub.id] = true
				matched = append(matched, sub)
			}
			if !sub.once {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			delete(b.handlers, key)
		} else {
			b.handlers[key] = kept
		}
	}
	return matched
}

// HasSubscribers checks if any handlers are registered for an event.
func (b *Bus) HasSubscribers(event string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.handlers[event]) > 0 {
		return true
	}
	if prefix, ok := firstSegment(event); ok && len(b.handlers[prefix+":*"]) > 0 {
		return true
	}
	return len(b.handlers["*"]) > 0
}

// firstSegment returns the part of name before the first ':'.
func firstSegment(name string) (string, bool) {
	i := strings.IndexByte(name, ':')
	if i <= 0 {
		return "", false
	}
	return name[:i], true
}
