// Package events is the in-process live update bus. Commits and rolls
// publish deltas per session; SSE handlers subscribe and forward them.
package events

import (
	"log/slog"
	"sync"

	"torchlight/internal/domain/models"
)

// LinesDelta carries newly appended log lines.
type LinesDelta struct {
	Lines []string `json:"lines"`
}

// RollsDelta carries rolls resolved for a turn.
type RollsDelta struct {
	Turn  int                  `json:"turn"`
	Items []models.RollPayload `json:"items"`
}

// Event is one update pushed to subscribers. Absent sub-objects mean
// no change in that artifact.
type Event struct {
	Transcript *LinesDelta `json:"transcript,omitempty"`
	Changelog  *LinesDelta `json:"changelog,omitempty"`
	Rolls      *RollsDelta `json:"rolls,omitempty"`
}

// subscriberBuffer bounds how far a subscriber may lag before it is
// dropped. Dropped clients reconcile by re-reading with ?cursor=.
const subscriberBuffer = 16

type subscriber struct {
	id string
	ch chan Event
}

// Bus fans events out per session slug. Publishing never blocks: slow
// subscribers are disconnected instead.
type Bus struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string][]subscriber
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger:   logger,
		sessions: make(map[string][]subscriber),
	}
}

// Subscribe registers a listener for a session. The returned cancel
// func unregisters it and closes the channel.
func (b *Bus) Subscribe(slug, id string) (<-chan Event, func()) {
	sub := subscriber{id: id, ch: make(chan Event, subscriberBuffer)}

	b.mu.Lock()
	b.sessions[slug] = append(b.sessions[slug], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.remove(slug, id)
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscriber of the session, in
// subscription order. A subscriber whose buffer is full is dropped.
func (b *Bus) Publish(slug string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.sessions[slug] {
		select {
		case sub.ch <- event:
		default:
			if b.logger != nil {
				b.logger.Warn("dropping slow event subscriber", "slug", slug, "subscriber", sub.id)
			}
			b.remove(slug, sub.id)
		}
	}
}

// remove must be called with the mutex held.
func (b *Bus) remove(slug, id string) {
	subs := b.sessions[slug]
	for i, sub := range subs {
		if sub.id == id {
			close(sub.ch)
			b.sessions[slug] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.sessions[slug]) == 0 {
		delete(b.sessions, slug)
	}
}

// SubscriberCount reports active listeners for a session.
func (b *Bus) SubscriberCount(slug string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions[slug])
}
