// Package messagebus is a small in-process pub/sub used for domain
// events: session transitions, entry recorded/deleted notifications.
package messagebus

import (
	"log/slog"
	"sync"

	"github.com/trackfit/trackfit/internal/domain"
)

type EventHandler = func(event domain.Event) error

type MessageBus struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	wg       sync.WaitGroup
}

func New(logger *slog.Logger) *MessageBus {
	return &MessageBus{
		logger:   logger,
		handlers: make(map[string][]EventHandler),
	}
}

func (b *MessageBus) Register(eventType string, handler EventHandler) {
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// PublishEvents dispatches every event to its registered handlers.
// Handlers run concurrently; a handler error is logged, never
// propagated to the publisher.
func (b *MessageBus) PublishEvents(events ...domain.Event) error {
	for _, event := range events {
		b.mu.RLock()
		handlers := b.handlers[event.Type()]
		b.mu.RUnlock()

		for _, handler := range handlers {
			b.wg.Add(1)
			go func(h EventHandler, e domain.Event) {
				defer b.wg.Done()
				if err := h(e); err != nil {
					b.logger.Error("failed to handle event", "type", e.Type(), "error", err)
				}
			}(handler, event)
		}
	}
	return nil
}

// Close waits for in-flight handlers to finish.
func (b *MessageBus) Close() {
	b.wg.Wait()
}
