// Package events provides a simple publish-subscribe event bus for settings
// and cache observers.
package events

import (
	"sync"

	"github.com/Planetworks/DarkMultiPlayer/internal/models"
)

const subBufferSize = 8

// Kind identifies what changed.
type Kind string

const (
	SettingsChanged Kind = "settings"
	CacheChanged    Kind = "cache"
)

// Event is a change notification. Exactly one of Settings or Cache is set,
// according to Kind.
type Event struct {
	Kind     Kind              `json:"kind"`
	Settings *models.Settings  `json:"settings,omitempty"`
	Cache    *models.CacheInfo `json:"cache,omitempty"`
}

// Bus is a non-blocking publish-subscribe event bus.
// Subscribers that are slow to consume events will have events dropped rather
// than blocking publishers.
type Bus struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]chan Event),
	}
}

// Subscribe creates a new subscription with the given ID.
// Call Unsubscribe when done to clean up.
func (b *Bus) Subscribe(id string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, subBufferSize)
	b.subs[id] = ch
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish sends an event to all subscribers.
// If a subscriber's channel is full, the event is dropped (non-blocking).
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Drop if subscriber is slow
		}
	}
}

// PublishSettings publishes a settings snapshot.
func (b *Bus) PublishSettings(s models.Settings) {
	b.Publish(Event{Kind: SettingsChanged, Settings: &s})
}

// PublishCache publishes a cache occupancy report.
func (b *Bus) PublishCache(info models.CacheInfo) {
	b.Publish(Event{Kind: CacheChanged, Cache: &info})
}

// SubscriberCount returns the current number of subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
