// Package events is the in-process bus used to tell caches that owner data changed.
package events

import (
	"errors"
	"sync"
	"time"
)

const (
	TypeScheduleUpdated = "schedule.updated"
	TypeEventUpdated    = "event.updated"
	TypeBookingCreated  = "booking.created"
)

// AllTypes lists every event type that changes an owner's availability.
var AllTypes = []string{TypeScheduleUpdated, TypeEventUpdated, TypeBookingCreated}

// Event represents a change to an owner's data.
type Event struct {
	Type      string    `json:"type"`
	OwnerID   string    `json:"owner_id"`
	EntityID  string    `json:"entity_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EventHandler reacts to an event.
type EventHandler func(event Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and joins their errors.
// A nil bus drops the event.
func (b *EventBus) Publish(event Event) error {
	if b == nil {
		return nil
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
