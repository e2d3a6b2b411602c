// Package eventbus is the typed, synchronous publish/subscribe carrier
// named in SPEC_FULL.md §4.5. Grounded on
// original_source/src/alt_exchange/infra/event_bus.py's InMemoryEventBus
// (a `type -> []handler` map dispatched in registration order), with one
// deliberate upgrade beyond the original: a subscriber's panic or
// returned error is caught and logged rather than aborting delivery to
// the remaining subscribers or the publisher's own unit of work.
package eventbus

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog/log"
)

// Subscriber handles one published event. A returned error is logged,
// not propagated.
type Subscriber func(event any) error

// Bus dispatches events synchronously, in the publishing goroutine,
// before Publish returns.
type Bus struct {
	mu   sync.RWMutex
	subs map[reflect.Type][]Subscriber
}

func New() *Bus {
	return &Bus{subs: make(map[reflect.Type][]Subscriber)}
}

// Subscribe registers sub for every event of the same concrete type as
// sample. Registration is safe at any time, including from inside a
// handler running during dispatch.
func (b *Bus) Subscribe(sample any, sub Subscriber) {
	t := reflect.TypeOf(sample)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], sub)
}

// Publish delivers event to every subscriber of its type, in the order
// they were registered. It iterates a snapshot of the subscriber slice
// taken under the read lock, so a handler that subscribes mid-dispatch
// does not receive the event it raced with.
func (b *Bus) Publish(event any) {
	t := reflect.TypeOf(event)
	b.mu.RLock()
	existing := b.subs[t]
	subs := make([]Subscriber, len(existing))
	copy(subs, existing)
	b.mu.RUnlock()

	for i, sub := range subs {
		b.dispatch(t, i, sub, event)
	}
}

func (b *Bus) dispatch(t reflect.Type, index int, sub Subscriber, event any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event_type", t.String()).
				Int("subscriber", index).
				Msg("event subscriber panicked")
		}
	}()
	if err := sub(event); err != nil {
		log.Error().
			Err(err).
			Str("event_type", t.String()).
			Int("subscriber", index).
			Msg("event subscriber returned error")
	}
}
