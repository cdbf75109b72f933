package app

import (
	"sync"
	"time"
)

// EventType names a download lifecycle event
type EventType string

const (
	EventAdded          EventType = "download.added"
	EventRunning        EventType = "download.running"
	EventPaused         EventType = "download.paused"
	EventStopped        EventType = "download.stopped"
	EventCompleted      EventType = "download.completed"
	EventError          EventType = "download.error"
	EventProgress       EventType = "download.progress"
	EventVerifying      EventType = "download.verifying"
	EventVerified       EventType = "download.verified"
	EventChecksumFailed EventType = "download.checksum_failed"
	EventRemoved        EventType = "download.removed"
)

// Event is a single message published on the hub
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp int64       `json:"timestamp"`
	ID        string      `json:"id"`
	Data      interface{} `json:"data,omitempty"`
}

// ProgressData is the payload of progress events
type ProgressData struct {
	Transferred int64   `json:"transferred"`
	Total       int64   `json:"total"`
	Percent     float64 `json:"percent"`
	Rate        float64 `json:"rate"`
	ETASeconds  float64 `json:"eta_seconds,omitempty"`
}

const subscriberBuffer = 64

// EventHub fans events out to subscribers. Slow subscribers lose events instead of blocking publishers.
type EventHub struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

// NewEventHub creates an empty hub
func NewEventHub() *EventHub {
	return &EventHub{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a subscriber. The returned function unsubscribes and closes the channel.
func (h *EventHub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subscribers[ch]; ok {
				delete(h.subscribers, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
}

// Publish sends an event to every subscriber without blocking
func (h *EventHub) Publish(eventType EventType, id string, data interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		ID:        id,
		Data:      data,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of live subscribers
func (h *EventHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Close disconnects every subscriber
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}
