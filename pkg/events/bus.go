package events

import "sync"

// busCapacity bounds each subscriber's buffered channel, mirroring the
// broadcast::channel(10000) capacity used upstream.
const busCapacity = 10000

// Bus fans a single stream of ContractEvent values out to any number of
// subscribers. A slow subscriber drops events rather than blocking
// publishers, the same trade-off a bounded broadcast channel makes.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan ContractEvent
	next int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan ContractEvent)}
}

// Subscribe registers a new receiver. Call the returned cancel func to stop
// receiving and release the channel.
func (b *Bus) Subscribe() (<-chan ContractEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan ContractEvent, busCapacity)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish delivers event to every current subscriber. A subscriber whose
// buffer is full is skipped for this event rather than blocking the caller,
// matching the broadcast channel's "no receivers, that's okay" tolerance.
func (b *Bus) Publish(event ContractEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
