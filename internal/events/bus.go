// Package events provides the in-process publish/subscribe bus that carries
// push events from the connection manager to the sync store and any other
// consumer. Delivery is synchronous and in registration order for a given
// emission; a panicking handler is isolated so later handlers still run.
package events

import (
	"context"
	"sync"

	"github.com/vicinity-chat/vicinity-go/internal/logging"
)

// Handler receives the payload published for an event.
type Handler func(payload any)

// RoomScoped is implemented by payloads that belong to a single room.
// OnRoom uses it to filter deliveries without separate per-room storage.
type RoomScoped interface {
	EventRoomID() string
}

type registration struct {
	id      uint64
	handler Handler
}

// Bus dispatches named events to registered handlers. A Bus is safe for
// concurrent use; handlers for one emission run on the emitting goroutine.
type Bus struct {
	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]registration
	logger   *logging.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *logging.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]registration),
		logger:   logger,
	}
}

// On registers a handler for an exact event name and returns a function
// that removes exactly that registration.
func (b *Bus) On(event string, handler Handler) (off func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[event] = append(b.handlers[event], registration{id: id, handler: handler})

	return func() {
		b.remove(event, id)
	}
}

// OnRoom registers a handler invoked only for payloads scoped to roomID.
// Payloads that do not implement RoomScoped never match.
func (b *Bus) OnRoom(event, roomID string, handler Handler) (off func()) {
	return b.On(event, func(payload any) {
		scoped, ok := payload.(RoomScoped)
		if !ok || scoped.EventRoomID() != roomID {
			return
		}
		handler(payload)
	})
}

func (b *Bus) remove(event string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.handlers[event]
	for i, reg := range regs {
		if reg.id == id {
			b.handlers[event] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(b.handlers[event]) == 0 {
		delete(b.handlers, event)
	}
}

// Emit invokes every handler registered for event, synchronously, in
// registration order. A handler panic is recovered and logged; remaining
// handlers for the same emission still run.
func (b *Bus) Emit(event string, payload any) {
	b.mu.Lock()
	regs := make([]registration, len(b.handlers[event]))
	copy(regs, b.handlers[event])
	b.mu.Unlock()

	for _, reg := range regs {
		b.dispatch(event, reg, payload)
	}
}

func (b *Bus) dispatch(event string, reg registration, payload any) {
	defer func() {
		if r := recover(); r != nil && b.logger != nil {
			b.logger.Error(context.Background(), "event handler panic: event=%s err=%v", event, r)
		}
	}()
	reg.handler(payload)
}

// HandlerCount reports how many handlers are registered for event.
func (b *Bus) HandlerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[event])
}

// Clear drops every registration. Used at session and test boundaries.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[string][]registration)
}
