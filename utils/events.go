package utils

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types pushed to the live UI stream.
const (
	EventInboundMessage     = "inbound_message"
	EventAppointmentCreated = "appointment_created"
	EventDeliveryStatus     = "delivery_status"
)

// Event is one live-update notification for an owner's UI.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// EventBus is an in-process publish/subscribe registry keyed by owner id.
// Publish never blocks; slow subscribers drop events.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[uint]map[string]chan Event
	closed bool
}

func NewEventBus() *EventBus {
	return &EventBus{
		subs: make(map[uint]map[string]chan Event),
	}
}

// Subscribe registers a listener for one owner's events and returns the
// subscription id needed to unsubscribe.
func (b *EventBus) Subscribe(userID uint) (string, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	id := uuid.NewString()
	if b.closed {
		close(ch)
		return id, ch
	}
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[string]chan Event)
	}
	b.subs[userID][id] = ch
	return id, ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *EventBus) Unsubscribe(userID uint, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if owner, ok := b.subs[userID]; ok {
		if ch, ok := owner[id]; ok {
			delete(owner, id)
			close(ch)
		}
		if len(owner) == 0 {
			delete(b.subs, userID)
		}
	}
}

// Publish delivers an event to every listener of the owner.
func (b *EventBus) Publish(userID uint, eventType string, payload interface{}) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	ev := Event{Type: eventType, Payload: payload, At: time.Now()}
	for _, ch := range b.subs[userID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Shutdown closes every subscription; later publishes are dropped.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for userID, owner := range b.subs {
		for id, ch := range owner {
			delete(owner, id)
			close(ch)
		}
		delete(b.subs, userID)
	}
}
