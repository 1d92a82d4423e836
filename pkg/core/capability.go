package core

import "strings"

// Capability identifies an optional feature a venue adapter supports.
type Capability int

// Capability constants define the fixed vocabulary adapters declare from.
const (
	// CapSpotTrading indicates spot order placement is supported.
	CapSpotTrading Capability = iota
	// CapMarginTrading indicates margin order placement is supported.
	CapMarginTrading
	// CapWebsocketMarketData indicates streaming market data is supported.
	CapWebsocketMarketData
	// CapWebsocketAccountData indicates streaming account/order data is supported.
	CapWebsocketAccountData
	// CapOrderBookStreaming indicates streaming order book snapshots are supported.
	CapOrderBookStreaming
	// CapStopOrders indicates stop and stop-limit order types are supported.
	CapStopOrders
	// CapPaperTrading indicates the adapter can run without real funds.
	CapPaperTrading
	// CapCandles indicates historical candlestick retrieval is supported.
	CapCandles
)

// String returns the string representation of the capability.
func (c Capability) String() string {
	return [...]string{
		"spot_trading",
		"margin_trading",
		"websocket_market_data",
		"websocket_account_data",
		"order_book_streaming",
		"stop_orders",
		"paper_trading",
		"candles",
	}[c]
}

// CapabilitySet is a fixed set of capabilities declared at adapter
// construction. Callers branch on capability flags instead of adapter
// identity to avoid invoking unsupported operations.
type CapabilitySet uint32

// NewCapabilitySet builds a set from the given capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var set CapabilitySet
	for _, c := range caps {
		set |= 1 << uint(c)
	}
	return set
}

// Has reports whether the set contains the given capability.
func (s CapabilitySet) Has(c Capability) bool {
	return s&(1<<uint(c)) != 0
}

// List returns the capabilities in the set in declaration order.
func (s CapabilitySet) List() []Capability {
	var caps []Capability
	for c := CapSpotTrading; c <= CapCandles; c++ {
		if s.Has(c) {
			caps = append(caps, c)
		}
	}
	return caps
}

// String returns a comma-separated representation of the set.
func (s CapabilitySet) String() string {
	caps := s.List()
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.String())
	}
	return strings.Join(names, ",")
}
