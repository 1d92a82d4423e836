// Package orders tracks order lifecycle state from the event bus. The
// tracker enforces lifecycle monotonicity: a terminal order never changes
// again, status never regresses, and the filled and remaining quantities
// always sum to the requested quantity.
package orders

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"lintas/pkg/core"
	"lintas/pkg/events"
)

// Tracker maintains a local view of all observed orders. Updates typically
// arrive through Run from an adapter's event bus, but Apply can be called
// directly with the result of a REST query.
type Tracker struct {
	logger zerolog.Logger

	mu       sync.RWMutex
	orders   map[string]*core.Order
	byClient map[string]string
}

// Option is a functional option for configuring the Tracker.
type Option func(*Tracker)

// WithLogger returns an option that sets the logger for the tracker.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Tracker) {
		t.logger = l
	}
}

// NewTracker creates an empty order tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		logger:   zerolog.Nop(),
		orders:   make(map[string]*core.Order),
		byClient: make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run consumes order_update events from the bus until the context is
// cancelled or the bus closes. Invalid updates are logged and dropped; they
// never corrupt the tracked state.
func (t *Tracker) Run(ctx context.Context, bus *events.Bus) {
	sub := bus.Subscribe(events.KindOrderUpdate)
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C():
			if !ok {
				return
			}
			if event.Order == nil {
				continue
			}
			if err := t.Apply(event.Order); err != nil {
				t.logger.Warn().
					Err(err).
					Str("order_id", event.Order.ID).
					Msg("dropped order update")
			}
		}
	}
}

// Track seeds the tracker with an order, typically the placement
// acknowledgment. Tracking an already known order applies it as an update.
func (t *Tracker) Track(order *core.Order) error {
	return t.Apply(order)
}

// Apply merges an order update into the tracked state. It returns an error
// when the update would violate lifecycle monotonicity; the tracked state is
// left untouched in that case.
func (t *Tracker) Apply(update *core.Order) error {
	if update == nil || update.ID == "" {
		return fmt.Errorf("order update requires an id")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	existing, known := t.orders[update.ID]
	if known {
		if existing.Status.IsTerminal() && update.Status != existing.Status {
			return fmt.Errorf("order %s is already %s", update.ID, existing.Status)
		}
		if !isValidTransition(existing.Status, update.Status) {
			return fmt.Errorf("invalid status transition: %s -> %s", existing.Status, update.Status)
		}
		if update.FilledQuantity.Cmp(&existing.FilledQuantity) < 0 {
			return fmt.Errorf("filled quantity regressed: %s -> %s",
				existing.FilledQuantity.String(), update.FilledQuantity.String())
		}
	}

	if err := checkQuantities(update); err != nil {
		return err
	}

	snapshot := *update
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now()
	}
	if known {
		// Preserve fields the venue omits on incremental updates.
		if snapshot.Symbol == "" {
			snapshot.Symbol = existing.Symbol
		}
		if snapshot.ClientOrderID == "" {
			snapshot.ClientOrderID = existing.ClientOrderID
		}
		if snapshot.CreatedAt.IsZero() {
			snapshot.CreatedAt = existing.CreatedAt
		}
		if snapshot.Quantity.IsZero() {
			snapshot.Quantity = existing.Quantity
		}
	}

	t.orders[snapshot.ID] = &snapshot
	if snapshot.ClientOrderID != "" {
		t.byClient[snapshot.ClientOrderID] = snapshot.ID
	}
	return nil
}

// Get retrieves a tracked order by its venue-assigned ID.
func (t *Tracker) Get(orderID string) (*core.Order, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	order, ok := t.orders[orderID]
	if !ok {
		return nil, false
	}
	snapshot := *order
	return &snapshot, true
}

// GetByClientID retrieves a tracked order by its client-assigned ID.
func (t *Tracker) GetByClientID(clientOrderID string) (*core.Order, bool) {
	t.mu.RLock()
	orderID, ok := t.byClient[clientOrderID]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return t.Get(orderID)
}

// Open returns all tracked orders that are not in a terminal state.
func (t *Tracker) Open() []core.Order {
	return t.Filter(func(o *core.Order) bool {
		return !o.Status.IsTerminal()
	})
}

// Filter returns snapshots of all tracked orders matching the predicate.
func (t *Tracker) Filter(match func(*core.Order) bool) []core.Order {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []core.Order
	for _, order := range t.orders {
		if match(order) {
			out = append(out, *order)
		}
	}
	return out
}

// Len returns the number of tracked orders.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.orders)
}

// checkQuantities verifies filled + remaining == quantity when the update
// carries all three amounts.
func checkQuantities(order *core.Order) error {
	if order.Quantity.IsZero() {
		return nil
	}
	var sum apd.Decimal
	if _, err := apd.BaseContext.Add(&sum, &order.FilledQuantity, &order.RemainingQty); err != nil {
		return fmt.Errorf("sum quantities: %w", err)
	}
	if sum.Cmp(&order.Quantity) != 0 {
		return fmt.Errorf("quantity mismatch: filled %s + remaining %s != %s",
			order.FilledQuantity.String(), order.RemainingQty.String(), order.Quantity.String())
	}
	return nil
}

// isValidTransition reports whether the status may move from one state to
// another. Same-state updates carry fill progress and are always allowed for
// non-terminal states.
func isValidTransition(from, to core.OrderStatus) bool {
	if from == to {
		return true
	}
	// Unknown statuses pass through: the venue reported something outside
	// the canonical set and the next recognized status wins.
	if from == core.StatusUnknown || to == core.StatusUnknown {
		return !from.IsTerminal()
	}

	validTransitions := map[core.OrderStatus][]core.OrderStatus{
		core.StatusPending: {
			core.StatusOpen,
			core.StatusPartiallyFilled,
			core.StatusFilled,
			core.StatusCanceled,
			core.StatusRejected,
			core.StatusExpired,
		},
		core.StatusOpen: {
			core.StatusPartiallyFilled,
			core.StatusFilled,
			core.StatusCanceled,
			core.StatusExpired,
		},
		core.StatusPartiallyFilled: {
			core.StatusFilled,
			core.StatusCanceled,
			core.StatusExpired,
		},
	}

	allowed, exists := validTransitions[from]
	if !exists {
		return false
	}
	return slices.Contains(allowed, to)
}
