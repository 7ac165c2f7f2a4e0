// Package bus is the in-process notification bus that lets components react
// to session changes they did not cause.
package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/soyeahso/studychat/internal/domain"
	"github.com/soyeahso/studychat/internal/logging"
)

// Topic names a kind of notification.
type Topic string

const (
	// TopicSessionsChanged: the set or contents of sessions may have changed.
	TopicSessionsChanged Topic = "sessions-changed"

	// TopicActiveSessionChanged: the active session pointer changed. The
	// event's SessionID is a hint only; the store is authoritative.
	TopicActiveSessionChanged Topic = "active-session-changed"

	// TopicForceNewSession: a bulk clear left no sessions and a new one
	// should be created right away.
	TopicForceNewSession Topic = "force-new-session"
)

// AllTopics lists every topic the bus carries.
var AllTopics = []Topic{
	TopicSessionsChanged,
	TopicActiveSessionChanged,
	TopicForceNewSession,
}

// Event is delivered to subscribers of a topic.
type Event struct {
	Topic     Topic            `json:"topic"`
	SessionID domain.SessionID `json:"sessionId,omitempty"`
}

// Handler reacts to an event.
// Returning an error logs the failure but does not stop delivery.
type Handler func(ctx context.Context, ev Event) error

type subscription struct {
	id      uint64
	name    string
	handler Handler
	removed atomic.Bool
}

// Bus delivers events synchronously, in subscription order, to every
// subscriber of the event's topic. Events published while nobody is
// subscribed are dropped.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]*subscription
	nextID uint64
	log    *logging.Logger
}

// New creates an empty bus.
func New(log *logging.Logger) *Bus {
	return &Bus{
		subs: make(map[Topic][]*subscription),
		log:  log.Sub("bus"),
	}
}

// Subscribe registers handler for topic and returns a function that removes
// it. The name identifies the handler in logs. Calling the returned function
// more than once is safe.
func (b *Bus) Subscribe(topic Topic, name string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{id: b.nextID, name: name, handler: handler}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	b.log.Debug().Str("topic", string(topic)).Str("handler", name).Msg("subscribed")

	return func() {
		if sub.removed.Swap(true) {
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[topic]
		filtered := make([]*subscription, 0, len(subs))
		for _, s := range subs {
			if s.id != sub.id {
				filtered = append(filtered, s)
			}
		}
		b.subs[topic] = filtered
	}
}

// Publish delivers ev to the current subscribers of ev.Topic and returns
// once every handler has run. Handlers may publish further events.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := make([]*subscription, len(b.subs[ev.Topic]))
	copy(subs, b.subs[ev.Topic])
	b.mu.RUnlock()

	b.log.Debug().
		Str("topic", string(ev.Topic)).
		Str("session", string(ev.SessionID)).
		Int("subscribers", len(subs)).
		Msg("publish")

	for _, s := range subs {
		if s.removed.Load() {
			continue
		}
		if err := s.handler(ctx, ev); err != nil {
			b.log.Warn().
				Err(err).
				Str("topic", string(ev.Topic)).
				Str("handler", s.name).
				Msg("handler error")
		}
	}
}

// Count returns the number of handlers subscribed to topic.
func (b *Bus) Count(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
