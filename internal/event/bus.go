// Package event provides the in-process pub/sub bus that carries
// normalized thread/session/mediation/team updates to the presentation
// layer, built on watermill's gochannel.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Type identifies an event on the bus.
type Type string

const (
	ThreadCreated      Type = "thread.created"
	ThreadUpdated      Type = "thread.updated"
	ThreadDeleted      Type = "thread.deleted"
	SessionUpdated     Type = "session.updated"
	SessionDeleted     Type = "session.deleted"
	MediationRequired  Type = "mediation.required"
	MediationResolved  Type = "mediation.resolved"
	TeamUpdated        Type = "team.updated"
	TeamResumed        Type = "team.resumed"
	StatusMessage      Type = "status.message"
)

// Event is one bus message.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

// Subscriber receives published events.
type Subscriber func(Event)

type entry struct {
	id uint64
	fn Subscriber
}

// Bus is an owned pub/sub instance. There is no package-level bus: every
// component receives the Bus it publishes to, which keeps the write path
// explicit and testable.
type Bus struct {
	mu sync.RWMutex

	// gochannel carries the serialized form of every published event,
	// topic per event type; typed subscribers are tracked directly to
	// preserve Go values.
	pubsub *gochannel.GoChannel

	byType map[Type][]entry
	global []entry

	nextID uint64
	closed bool
	cancel context.CancelFunc
}

// NewBus creates a Bus.
func NewBus() *Bus {
	_, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
		byType: make(map[Type][]entry),
		cancel: cancel,
	}
}

// Subscribe registers fn for one event type and returns an unsubscribe
// function.
func (b *Bus) Subscribe(t Type, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.byType[t] = append(b.byType[t], entry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.byType[t]
		for i, e := range subs {
			if e.id == id {
				b.byType[t] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// SubscribeAll registers fn for every event type.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	b.global = append(b.global, entry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, e := range b.global {
			if e.id == id {
				b.global = append(b.global[:i], b.global[i+1:]...)
				return
			}
		}
	}
}

func (b *Bus) collect(t Type) []Subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}
	subs := make([]Subscriber, 0, len(b.byType[t])+len(b.global))
	for _, e := range b.byType[t] {
		subs = append(subs, e.fn)
	}
	for _, e := range b.global {
		subs = append(subs, e.fn)
	}
	return subs
}

// Publish delivers the event asynchronously, each subscriber on its own
// goroutine so a slow consumer never blocks the orchestration loop.
func (b *Bus) Publish(ev Event) {
	for _, fn := range b.collect(ev.Type) {
		go fn(ev)
	}
	b.publishRaw(ev)
}

// PublishSync delivers the event on the calling goroutine before returning.
func (b *Bus) PublishSync(ev Event) {
	for _, fn := range b.collect(ev.Type) {
		fn(ev)
	}
	b.publishRaw(ev)
}

// publishRaw mirrors the event onto the gochannel topic named after its
// type, for Stream consumers. Encode failures are dropped; the typed path
// has already delivered.
func (b *Bus) publishRaw(ev Event) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	_ = b.pubsub.Publish(string(ev.Type), msg)
}

// Stream subscribes to the serialized form of one event type. Useful for
// consumers that forward events verbatim instead of inspecting payloads.
func (b *Bus) Stream(ctx context.Context, t Type) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, string(t))
}

// Close drops all subscribers; further publishes are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancel()
	b.byType = make(map[Type][]entry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
