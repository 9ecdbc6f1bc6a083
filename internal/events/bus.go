package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives an event.
type Handler func(ctx context.Context, ev Event)

// Bus is an in-process publisher. Handlers run synchronously in
// registration order; a panicking handler is logged and skipped.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	logger   *slog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{handlers: make(map[Type][]Handler), logger: logger}
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[t] = append(b.handlers[t], h)
}

// Publish invokes every handler subscribed to ev.Type.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[ev.Type]...)
	b.mu.RUnlock()

	var failed int
	for _, h := range handlers {
		if !b.call(ctx, h, ev) {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d handlers for %s panicked", failed, len(handlers), ev.Type)
	}
	return nil
}

func (b *Bus) call(ctx context.Context, h Handler, ev Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic", "type", ev.Type, "request_id", ev.RequestID, "panic", r)
			ok = false
		}
	}()
	h(ctx, ev)
	return true
}

var _ Publisher = (*Bus)(nil)
