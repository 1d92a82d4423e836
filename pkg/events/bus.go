// Package events provides the typed publish/subscribe bus every adapter
// publishes its lifecycle and data events on. Subscriptions are explicit
// handles so listeners are always unsubscribed deliberately, never leaked.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"lintas/pkg/core"
)

// Kind identifies an event variant on the bus.
type Kind int

// Event kinds published by adapters.
const (
	// KindConnected is published when an adapter establishes its connection.
	KindConnected Kind = iota
	// KindDisconnected is published when an adapter loses or closes its connection.
	KindDisconnected
	// KindError is published for asynchronous failures (stream errors and the like).
	KindError
	// KindMarketUpdate is published for every normalized market data event.
	KindMarketUpdate
	// KindOrderUpdate is published when an order changes state.
	KindOrderUpdate
)

// String returns the string representation of the event kind.
func (k Kind) String() string {
	return [...]string{
		"connected",
		"disconnected",
		"error",
		"market_update",
		"order_update",
	}[k]
}

// Event is one bus message. Exactly one payload field is set, matching Kind.
type Event struct {
	// Kind identifies the payload variant.
	Kind Kind
	// Venue names the adapter that published the event.
	Venue string
	// Error carries the failure for KindError events.
	Error *ErrorPayload
	// Market carries the data for KindMarketUpdate events.
	Market *MarketPayload
	// Order carries the order for KindOrderUpdate events.
	Order *core.Order
}

// ErrorPayload describes an asynchronous failure.
type ErrorPayload struct {
	// Kind is the taxonomy classification of the failure.
	Kind core.ErrorKind `json:"kind"`
	// Message is the human-readable description.
	Message string `json:"message"`
}

// MarketPayload carries one normalized market data update.
type MarketPayload struct {
	// Channel is the logical channel ("ticker", "book", "trade", "candle").
	Channel string `json:"channel"`
	// Symbol is the canonical trading pair.
	Symbol string `json:"symbol"`
	// Data is the normalized canonical value (*core.Ticker, *core.OrderBook,
	// *core.Trade, or *core.Kline).
	Data any `json:"data"`
}

// Subscription is the handle returned by Subscribe. Events arrive on C in
// publish order for each kind; no ordering holds across kinds.
type Subscription struct {
	id   uint64
	kind Kind
	ch   chan Event
	bus  *Bus
	once sync.Once
}

// C returns the receive channel for this subscription.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Unsubscribe removes the subscription from the bus and closes its channel.
// It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

// Bus is a typed publish/subscribe hub keyed by event kind.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind]map[uint64]*Subscription
	nextID atomic.Uint64
	buffer int
	closed bool
	logger zerolog.Logger
}

// NewBus creates a bus whose subscription channels hold up to buffer events.
// A non-positive buffer defaults to 64.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[Kind]map[uint64]*Subscription),
		buffer: buffer,
		logger: zerolog.Nop(),
	}
}

// SetLogger configures the logger used for dropped-event warnings.
func (b *Bus) SetLogger(logger zerolog.Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Subscribe registers a listener for one event kind and returns its handle.
func (b *Bus) Subscribe(kind Kind) *Subscription {
	sub := &Subscription{
		id:   b.nextID.Add(1),
		kind: kind,
		ch:   make(chan Event, b.buffer),
		bus:  b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	if b.subs[kind] == nil {
		b.subs[kind] = make(map[uint64]*Subscription)
	}
	b.subs[kind][sub.id] = sub
	return sub
}

// Publish delivers the event to every subscriber of its kind. Delivery is
// non-blocking: a subscriber whose buffer is full misses the event and a
// warning is logged, so one slow consumer never stalls the stream path.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subs[ev.Kind] {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn().
				Str("kind", ev.Kind.String()).
				Str("venue", ev.Venue).
				Msg("subscriber buffer full, event dropped")
		}
	}
}

// Close shuts the bus down and closes every subscriber channel.
// Publishing after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, kinds := range b.subs {
		for _, sub := range kinds {
			close(sub.ch)
		}
	}
	b.subs = make(map[Kind]map[uint64]*Subscription)
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if kinds, ok := b.subs[s.kind]; ok {
		if _, ok := kinds[s.id]; ok {
			delete(kinds, s.id)
			close(s.ch)
		}
	}
}
