package event

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSyncDeliversToTypeAndGlobal(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var typed, global []Type
	bus.Subscribe(SessionUpdated, func(ev Event) { typed = append(typed, ev.Type) })
	bus.SubscribeAll(func(ev Event) { global = append(global, ev.Type) })

	bus.PublishSync(Event{Type: SessionUpdated})
	bus.PublishSync(Event{Type: ThreadUpdated})

	assert.Equal(t, []Type{SessionUpdated}, typed)
	assert.Equal(t, []Type{SessionUpdated, ThreadUpdated}, global)
}

func TestPublishAsync(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	bus.Subscribe(TeamUpdated, func(Event) { wg.Done() })
	bus.Subscribe(TeamUpdated, func(Event) { wg.Done() })

	bus.Publish(Event{Type: TeamUpdated})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async subscribers not invoked")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	count := 0
	unsub := bus.Subscribe(ThreadUpdated, func(Event) { count++ })

	bus.PublishSync(Event{Type: ThreadUpdated})
	unsub()
	bus.PublishSync(Event{Type: ThreadUpdated})

	assert.Equal(t, 1, count)
}

func TestStreamCarriesSerializedEvents(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := bus.Stream(ctx, StatusMessage)
	require.NoError(t, err)

	bus.PublishSync(Event{Type: StatusMessage, Data: StatusMessageData{Message: "hello"}})

	select {
	case msg := <-msgs:
		var ev struct {
			Type Type `json:"type"`
			Data struct {
				Message string `json:"message"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg.Payload, &ev))
		assert.Equal(t, StatusMessage, ev.Type)
		assert.Equal(t, "hello", ev.Data.Message)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("no message on stream")
	}
}

func TestClosedBusDropsEverything(t *testing.T) {
	bus := NewBus()
	count := 0
	bus.Subscribe(ThreadUpdated, func(Event) { count++ })

	require.NoError(t, bus.Close())
	bus.PublishSync(Event{Type: ThreadUpdated})
	assert.Zero(t, count)

	unsub := bus.Subscribe(ThreadUpdated, func(Event) { count++ })
	unsub()
	bus.PublishSync(Event{Type: ThreadUpdated})
	assert.Zero(t, count)
}
