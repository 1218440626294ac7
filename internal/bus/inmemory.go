package bus

import (
	"sync"

	"podcleaner/internal/logger"
)

// InMemoryBus fans messages out synchronously, on the publisher's own
// goroutine, in subscription order. It is the single-process backend used
// when message_broker.type is "in_memory".
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	running  bool
}

// NewInMemoryBus constructs an idle bus; Start must be called before
// Publish has any effect.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{handlers: make(map[string][]Handler)}
}

// Subscribe registers handler for topic. Safe to call before or after Start.
func (b *InMemoryBus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Start marks the bus ready to deliver.
func (b *InMemoryBus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = true
	return nil
}

// Stop marks the bus as no longer delivering; pending calls already in
// Publish still complete.
func (b *InMemoryBus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	return nil
}

// Publish invokes every handler subscribed to msg.Topic, in subscription
// order, catching and logging any handler panic so one misbehaving
// subscriber cannot take down the others or the publisher.
func (b *InMemoryBus) Publish(msg Message) {
	b.mu.RLock()
	running := b.running
	handlers := append([]Handler(nil), b.handlers[msg.Topic]...)
	b.mu.RUnlock()

	if !running {
		logger.Warn("bus_publish_while_stopped", "topic", msg.Topic)
		return
	}

	for _, h := range handlers {
		b.invoke(h, msg)
	}
}

func (b *InMemoryBus) invoke(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("bus_handler_panic", "topic", msg.Topic, "recover", r)
		}
	}()
	h(msg)
}
