package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lintas/pkg/core"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	sub := bus.Subscribe(KindConnected)
	defer sub.Unsubscribe()

	bus.Publish(Event{Kind: KindConnected, Venue: "mock"})

	ev := <-sub.C()
	assert.Equal(t, KindConnected, ev.Kind)
	assert.Equal(t, "mock", ev.Venue)
}

func TestBus_KindIsolation(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	orderSub := bus.Subscribe(KindOrderUpdate)
	defer orderSub.Unsubscribe()
	marketSub := bus.Subscribe(KindMarketUpdate)
	defer marketSub.Unsubscribe()

	bus.Publish(Event{Kind: KindOrderUpdate, Venue: "mock", Order: &core.Order{ID: "1"}})

	ev := <-orderSub.C()
	require.NotNil(t, ev.Order)
	assert.Equal(t, "1", ev.Order.ID)

	select {
	case <-marketSub.C():
		t.Fatal("market subscriber must not see order events")
	default:
	}
}

func TestBus_PerKindOrdering(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	sub := bus.Subscribe(KindOrderUpdate)
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(Event{Kind: KindOrderUpdate, Order: &core.Order{ID: string(rune('a' + i))}})
	}
	for i := 0; i < 5; i++ {
		ev := <-sub.C()
		assert.Equal(t, string(rune('a'+i)), ev.Order.ID)
	}
}

func TestBus_DropOnFullBuffer(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	sub := bus.Subscribe(KindError)
	defer sub.Unsubscribe()

	bus.Publish(Event{Kind: KindError, Error: &ErrorPayload{Message: "first"}})
	bus.Publish(Event{Kind: KindError, Error: &ErrorPayload{Message: "dropped"}})

	ev := <-sub.C()
	assert.Equal(t, "first", ev.Error.Message)
	select {
	case <-sub.C():
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(4)
	defer bus.Close()

	sub := bus.Subscribe(KindConnected)
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	_, open := <-sub.C()
	assert.False(t, open, "unsubscribed channel must be closed")

	// Publishing after unsubscribe must not panic.
	bus.Publish(Event{Kind: KindConnected})
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(4)
	sub := bus.Subscribe(KindDisconnected)

	bus.Close()
	bus.Close() // idempotent

	_, open := <-sub.C()
	assert.False(t, open)

	// Subscribing after close yields a closed channel instead of a leak.
	late := bus.Subscribe(KindConnected)
	_, open = <-late.C()
	assert.False(t, open)

	bus.Publish(Event{Kind: KindDisconnected}) // no-op, no panic
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "connected", KindConnected.String())
	assert.Equal(t, "disconnected", KindDisconnected.String())
	assert.Equal(t, "error", KindError.String())
	assert.Equal(t, "market_update", KindMarketUpdate.String())
	assert.Equal(t, "order_update", KindOrderUpdate.String())
}
