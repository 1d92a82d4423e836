package core

// Operation represents a type of action that can be performed on a venue.
type Operation int

// Operation constants define all supported venue operations.
const (
	// OpGetInstruments retrieves the tradable instrument list.
	OpGetInstruments Operation = iota
	// OpGetTicker retrieves current market ticker data for a symbol.
	OpGetTicker
	// OpGetOrderBook retrieves the current order book depth.
	OpGetOrderBook
	// OpGetTrades retrieves recent trades for a symbol.
	OpGetTrades
	// OpGetKlines retrieves candlestick/OHLCV data.
	OpGetKlines
	// OpGetBalances retrieves account balance information.
	OpGetBalances
	// OpGetAccountInfo retrieves the account summary.
	OpGetAccountInfo
	// OpGetPositions retrieves open positions.
	OpGetPositions
	// OpPlaceOrder submits a new order to the venue.
	OpPlaceOrder
	// OpCancelOrder cancels an existing order.
	OpCancelOrder
	// OpGetOrder retrieves details of a specific order.
	OpGetOrder
	// OpGetOpenOrders retrieves all open orders.
	OpGetOpenOrders
	// OpGetOrderHistory retrieves historical orders.
	OpGetOrderHistory
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	return [...]string{
		"GET_INSTRUMENTS",
		"GET_TICKER",
		"GET_ORDER_BOOK",
		"GET_TRADES",
		"GET_KLINES",
		"GET_BALANCES",
		"GET_ACCOUNT_INFO",
		"GET_POSITIONS",
		"PLACE_ORDER",
		"CANCEL_ORDER",
		"GET_ORDER",
		"GET_OPEN_ORDERS",
		"GET_ORDER_HISTORY",
	}[o]
}

// Class returns the rate-limit class the operation belongs to.
func (o Operation) Class() RequestClass {
	switch o {
	case OpGetInstruments, OpGetTicker, OpGetOrderBook, OpGetTrades, OpGetKlines:
		return ClassPublic
	case OpPlaceOrder, OpCancelOrder:
		return ClassOrder
	default:
		return ClassPrivate
	}
}

// RequestClass partitions operations for rate limiting. Venues apply
// distinct quotas to public market data, private account reads, and order
// placement.
type RequestClass int

// Request class constants.
const (
	// ClassPublic covers unauthenticated market data requests.
	ClassPublic RequestClass = iota
	// ClassPrivate covers authenticated account reads.
	ClassPrivate
	// ClassOrder covers order placement and cancellation.
	ClassOrder
)

// String returns the string representation of the request class.
func (c RequestClass) String() string {
	return [...]string{"public", "private", "order"}[c]
}
