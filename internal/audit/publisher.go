package audit

import (
	"context"
	"sync"
)

// Sink delivers events somewhere durable.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

// MemoryPublisher keeps events in memory. Used by tests and by deployments
// without a broker.
type MemoryPublisher struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Emit(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Event(nil), p.events...)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Emit(context.Context, Event) error { return nil }
