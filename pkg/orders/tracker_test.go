package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lintas/pkg/core"
	"lintas/pkg/events"
)

func update(id string, status core.OrderStatus, qty, filled, remaining string) *core.Order {
	o := &core.Order{ID: id, Status: status}
	_, _, _ = o.Quantity.SetString(qty)
	_, _, _ = o.FilledQuantity.SetString(filled)
	_, _, _ = o.RemainingQty.SetString(remaining)
	return o
}

func TestTracker_Lifecycle(t *testing.T) {
	tr := NewTracker()

	require.NoError(t, tr.Track(update("1", core.StatusPending, "2", "0", "2")))
	require.NoError(t, tr.Apply(update("1", core.StatusOpen, "2", "0", "2")))
	require.NoError(t, tr.Apply(update("1", core.StatusPartiallyFilled, "2", "0.5", "1.5")))
	require.NoError(t, tr.Apply(update("1", core.StatusFilled, "2", "2", "0")))

	order, ok := tr.Get("1")
	require.True(t, ok)
	assert.Equal(t, core.StatusFilled, order.Status)
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_TerminalIsImmutable(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Track(update("1", core.StatusFilled, "2", "2", "0")))

	err := tr.Apply(update("1", core.StatusOpen, "2", "0", "2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already FILLED")

	// The stored state is untouched.
	order, ok := tr.Get("1")
	require.True(t, ok)
	assert.Equal(t, core.StatusFilled, order.Status)
}

func TestTracker_RejectsStatusRegression(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Track(update("1", core.StatusPartiallyFilled, "2", "1", "1")))

	err := tr.Apply(update("1", core.StatusOpen, "2", "1", "1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid status transition")
}

func TestTracker_RejectsFillRegression(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Track(update("1", core.StatusPartiallyFilled, "2", "1", "1")))

	err := tr.Apply(update("1", core.StatusPartiallyFilled, "2", "0.5", "1.5"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filled quantity regressed")
}

func TestTracker_RejectsQuantityMismatch(t *testing.T) {
	tr := NewTracker()

	err := tr.Apply(update("1", core.StatusPartiallyFilled, "2", "0.5", "1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantity mismatch")
	assert.Zero(t, tr.Len())
}

func TestTracker_UnknownStatusPassesThrough(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Track(update("1", core.StatusOpen, "2", "0", "2")))

	// A venue status outside the canonical set parks the order in unknown;
	// the next recognized status wins.
	require.NoError(t, tr.Apply(update("1", core.StatusUnknown, "2", "0", "2")))
	require.NoError(t, tr.Apply(update("1", core.StatusFilled, "2", "2", "0")))

	order, ok := tr.Get("1")
	require.True(t, ok)
	assert.Equal(t, core.StatusFilled, order.Status)
}

func TestTracker_RequiresID(t *testing.T) {
	tr := NewTracker()
	assert.Error(t, tr.Apply(nil))
	assert.Error(t, tr.Apply(&core.Order{}))
}

func TestTracker_PreservesOmittedFields(t *testing.T) {
	tr := NewTracker()

	first := update("1", core.StatusOpen, "2", "0", "2")
	first.Symbol = "BTC/USDT"
	first.ClientOrderID = "client-1"
	first.CreatedAt = time.Unix(1700000000, 0)
	require.NoError(t, tr.Track(first))

	// Incremental updates often omit static fields.
	require.NoError(t, tr.Apply(update("1", core.StatusPartiallyFilled, "0", "1", "1")))

	order, ok := tr.Get("1")
	require.True(t, ok)
	assert.Equal(t, "BTC/USDT", order.Symbol)
	assert.Equal(t, "client-1", order.ClientOrderID)
	assert.Equal(t, time.Unix(1700000000, 0), order.CreatedAt)
	assert.Equal(t, "2", order.Quantity.String())
	assert.Equal(t, "1", order.FilledQuantity.String())
}

func TestTracker_GetByClientID(t *testing.T) {
	tr := NewTracker()

	first := update("venue-9", core.StatusOpen, "1", "0", "1")
	first.ClientOrderID = "client-9"
	require.NoError(t, tr.Track(first))

	order, ok := tr.GetByClientID("client-9")
	require.True(t, ok)
	assert.Equal(t, "venue-9", order.ID)

	_, ok = tr.GetByClientID("missing")
	assert.False(t, ok)
}

func TestTracker_Open(t *testing.T) {
	tr := NewTracker()
	require.NoError(t, tr.Track(update("1", core.StatusOpen, "1", "0", "1")))
	require.NoError(t, tr.Track(update("2", core.StatusFilled, "1", "1", "0")))
	require.NoError(t, tr.Track(update("3", core.StatusPartiallyFilled, "2", "1", "1")))

	open := tr.Open()
	assert.Len(t, open, 2)
	for _, o := range open {
		assert.False(t, o.Status.IsTerminal())
	}
}

func TestTracker_Run(t *testing.T) {
	bus := events.NewBus(16)
	defer bus.Close()

	tr := NewTracker()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tr.Run(ctx, bus)
	}()

	bus.Publish(events.Event{Kind: events.KindOrderUpdate, Venue: "mock",
		Order: update("1", core.StatusOpen, "1", "0", "1")})
	// Invalid updates are dropped without stopping the loop.
	bus.Publish(events.Event{Kind: events.KindOrderUpdate, Venue: "mock",
		Order: update("1", core.StatusOpen, "1", "0.5", "1")})
	bus.Publish(events.Event{Kind: events.KindOrderUpdate, Venue: "mock",
		Order: update("1", core.StatusFilled, "1", "1", "0")})

	require.Eventually(t, func() bool {
		order, ok := tr.Get("1")
		return ok && order.Status == core.StatusFilled
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop on context cancellation")
	}
}
