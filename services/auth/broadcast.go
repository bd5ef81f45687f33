package auth

import (
	"sync"
	"time"
)

// SessionEvent describes a session state change fanned out to listeners.
type SessionEvent struct {
	Type   string // signed_in, signed_out, token_refreshed
	UserID string
}

// Session event types.
const (
	EventSignedIn       = "signed_in"
	EventSignedOut      = "signed_out"
	EventTokenRefreshed = "token_refreshed"
)

// broadcastDebounce coalesces bursts of session events. Rapid refresh
// storms (several token refreshes within milliseconds) collapse into the
// final event.
const broadcastDebounce = 100 * time.Millisecond

// Broadcaster fans session events out to subscribers with debouncing.
type Broadcaster struct {
	mu        sync.Mutex
	listeners map[int]chan SessionEvent
	nextID    int

	pending *SessionEvent
	timer   *time.Timer
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{listeners: make(map[int]chan SessionEvent)}
}

// Subscribe returns a channel of session events and its unsubscribe
// function. Slow subscribers drop events rather than block publishers.
func (b *Broadcaster) Subscribe() (<-chan SessionEvent, func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	ch := make(chan SessionEvent, 8)
	b.listeners[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if existing, ok := b.listeners[id]; ok {
			delete(b.listeners, id)
			close(existing)
		}
		b.mu.Unlock()
	}
}

// Publish schedules the event for delivery after the debounce window.
// A newer event published inside the window replaces the pending one.
func (b *Broadcaster) Publish(event SessionEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = &event
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(broadcastDebounce, b.flush)
}

func (b *Broadcaster) flush() {
	b.mu.Lock()
	event := b.pending
	b.pending = nil
	var channels []chan SessionEvent
	for _, ch := range b.listeners {
		channels = append(channels, ch)
	}
	b.mu.Unlock()

	if event == nil {
		return
	}
	for _, ch := range channels {
		select {
		case ch <- *event:
		default:
		}
	}
}
