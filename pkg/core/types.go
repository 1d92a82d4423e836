package core

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

// OrderSide represents the direction of an order (buy or sell).
type OrderSide int

// Order side constants define the direction of a trade.
const (
	// SideBuy indicates an order to purchase the base asset.
	SideBuy OrderSide = iota
	// SideSell indicates an order to sell the base asset.
	SideSell
)

// String returns the string representation of the order side ("BUY" or "SELL").
func (s OrderSide) String() string {
	return [...]string{"BUY", "SELL"}[s]
}

// MarshalJSON implements json.Marshaler for OrderSide.
func (s OrderSide) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderSide.
// It accepts both uppercase and lowercase formats.
func (s *OrderSide) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"BUY"`, `"buy"`:
		*s = SideBuy
	case `"SELL"`, `"sell"`:
		*s = SideSell
	}
	return nil
}

// OrderType represents the type of order to place on a venue.
type OrderType int

// Order type constants define how an order is executed.
const (
	// TypeMarket executes immediately at the best available price.
	TypeMarket OrderType = iota
	// TypeLimit executes at a specified price or better.
	TypeLimit
	// TypeStopLoss triggers a market order when price reaches the stop price.
	TypeStopLoss
	// TypeStopLossLimit triggers a limit order when price reaches the stop price.
	TypeStopLossLimit
	// TypeTakeProfit triggers a market order when price reaches the target.
	TypeTakeProfit
	// TypeTakeProfitLimit triggers a limit order when price reaches the target.
	TypeTakeProfitLimit
)

// String returns the string representation of the order type.
func (t OrderType) String() string {
	return [...]string{"MARKET", "LIMIT", "STOP_LOSS", "STOP_LOSS_LIMIT", "TAKE_PROFIT", "TAKE_PROFIT_LIMIT"}[t]
}

// MarshalJSON implements json.Marshaler for OrderType.
func (t OrderType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderType.
// It accepts both uppercase and lowercase formats.
func (t *OrderType) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"MARKET"`, `"market"`:
		*t = TypeMarket
	case `"LIMIT"`, `"limit"`:
		*t = TypeLimit
	case `"STOP_LOSS"`, `"stop_loss"`:
		*t = TypeStopLoss
	case `"STOP_LOSS_LIMIT"`, `"stop_loss_limit"`:
		*t = TypeStopLossLimit
	case `"TAKE_PROFIT"`, `"take_profit"`:
		*t = TypeTakeProfit
	case `"TAKE_PROFIT_LIMIT"`, `"take_profit_limit"`:
		*t = TypeTakeProfitLimit
	}
	return nil
}

// OrderStatus represents the current state of an order.
type OrderStatus int

// Order status constants define the lifecycle state of an order.
// An order is created as StatusPending, becomes StatusOpen once the venue
// acknowledges it, and ends in exactly one terminal state.
const (
	// StatusPending indicates the order has been submitted but not yet acknowledged.
	StatusPending OrderStatus = iota
	// StatusOpen indicates the order is resting on the venue.
	StatusOpen
	// StatusPartiallyFilled indicates the order has been partially executed.
	StatusPartiallyFilled
	// StatusFilled indicates the order has been completely executed.
	StatusFilled
	// StatusCanceled indicates the order has been canceled.
	StatusCanceled
	// StatusRejected indicates the order was rejected by the venue.
	StatusRejected
	// StatusExpired indicates the order expired before completion.
	StatusExpired
	// StatusUnknown indicates a venue status with no canonical mapping.
	// The lower-cased venue status is preserved in Order.VenueStatus.
	StatusUnknown
)

// String returns the string representation of the order status.
func (s OrderStatus) String() string {
	return [...]string{"PENDING", "OPEN", "PARTIALLY_FILLED", "FILLED", "CANCELED", "REJECTED", "EXPIRED", "UNKNOWN"}[s]
}

// IsTerminal returns true if the order is in a terminal state (no further changes possible).
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusCanceled || s == StatusRejected || s == StatusExpired
}

// MarshalJSON implements json.Marshaler for OrderStatus.
func (s OrderStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for OrderStatus.
// It accepts both uppercase and lowercase formats; unrecognized values map
// to StatusUnknown rather than failing.
func (s *OrderStatus) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"PENDING"`, `"pending"`:
		*s = StatusPending
	case `"OPEN"`, `"open"`:
		*s = StatusOpen
	case `"PARTIALLY_FILLED"`, `"partially_filled"`:
		*s = StatusPartiallyFilled
	case `"FILLED"`, `"filled"`:
		*s = StatusFilled
	case `"CANCELED"`, `"canceled"`:
		*s = StatusCanceled
	case `"REJECTED"`, `"rejected"`:
		*s = StatusRejected
	case `"EXPIRED"`, `"expired"`:
		*s = StatusExpired
	default:
		*s = StatusUnknown
	}
	return nil
}

// TimeInForce defines how long an order remains active.
type TimeInForce int

// Time in force constants define order lifetime behavior.
const (
	// GTC (Good Till Canceled) keeps the order active until filled or canceled.
	GTC TimeInForce = iota
	// IOC (Immediate Or Cancel) requires immediate execution; the unfilled portion is canceled.
	IOC
	// FOK (Fill Or Kill) requires complete immediate execution or cancellation.
	FOK
)

// String returns the string representation of time in force.
func (t TimeInForce) String() string {
	return [...]string{"GTC", "IOC", "FOK"}[t]
}

// MarshalJSON implements json.Marshaler for TimeInForce.
func (t TimeInForce) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler for TimeInForce.
// It accepts both uppercase and lowercase formats.
func (t *TimeInForce) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"GTC"`, `"gtc"`:
		*t = GTC
	case `"IOC"`, `"ioc"`:
		*t = IOC
	case `"FOK"`, `"fok"`:
		*t = FOK
	}
	return nil
}

// Instrument describes a tradable market on a venue. Instruments are loaded
// during adapter connection and treated as immutable; a refresh replaces the
// whole instrument map rather than mutating entries in place.
type Instrument struct {
	// VenueSymbol is the venue-native identifier (e.g. "BTC_USDT", "btcusd").
	VenueSymbol string `json:"venue_symbol"`
	// Symbol is the canonical "BASE/QUOTE" identifier.
	Symbol string `json:"symbol"`
	// Base is the base currency code.
	Base string `json:"base"`
	// Quote is the quote currency code.
	Quote string `json:"quote"`
	// Active indicates whether the instrument is currently tradable.
	Active bool `json:"active"`
	// MarketType is the market category this instrument trades in.
	MarketType MarketType `json:"market_type"`
	// PricePrecision is the number of decimal places accepted for prices.
	PricePrecision int `json:"price_precision"`
	// AmountPrecision is the number of decimal places accepted for quantities.
	AmountPrecision int `json:"amount_precision"`
	// MinQuantity is the smallest order size the venue accepts.
	MinQuantity apd.Decimal `json:"min_quantity"`
	// MaxQuantity is the largest order size the venue accepts (zero means unbounded).
	MaxQuantity apd.Decimal `json:"max_quantity"`
}

// Ticker represents real-time market data for a trading pair.
// It is ephemeral: produced per request or per stream tick, never persisted.
type Ticker struct {
	// Symbol is the canonical trading pair identifier (e.g., "BTC/USDT").
	Symbol string `json:"symbol"`
	// Bid is the highest price a buyer is willing to pay.
	Bid apd.Decimal `json:"bid"`
	// Ask is the lowest price a seller is willing to accept.
	Ask apd.Decimal `json:"ask"`
	// Last is the price of the most recent trade.
	Last apd.Decimal `json:"last"`
	// High is the highest price in the last 24 hours.
	High apd.Decimal `json:"high"`
	// Low is the lowest price in the last 24 hours.
	Low apd.Decimal `json:"low"`
	// Volume is the total base-currency volume in the last 24 hours.
	Volume apd.Decimal `json:"volume"`
	// QuoteVolume is the total quote-currency volume in the last 24 hours.
	QuoteVolume apd.Decimal `json:"quote_volume"`
	// ChangePercent is the 24-hour price change in percent.
	ChangePercent apd.Decimal `json:"change_percent"`
	// Timestamp is when this ticker data was generated.
	Timestamp time.Time `json:"timestamp"`
}

// Order represents a venue order with all its details.
// It tracks the order from submission through execution to completion.
type Order struct {
	// ID is the venue-assigned order identifier.
	ID string `json:"id"`
	// ClientOrderID is the client-assigned order identifier.
	ClientOrderID string `json:"client_order_id"`
	// Symbol is the canonical trading pair for this order.
	Symbol string `json:"symbol"`
	// Side indicates whether this is a buy or sell order.
	Side OrderSide `json:"side"`
	// Type defines how the order executes (market, limit, etc.).
	Type OrderType `json:"type"`
	// Price is the limit price for limit orders.
	Price apd.Decimal `json:"price"`
	// Quantity is the total requested order quantity.
	Quantity apd.Decimal `json:"quantity"`
	// FilledQuantity is the amount that has been executed.
	FilledQuantity apd.Decimal `json:"filled_quantity"`
	// RemainingQty is the unfilled portion of the order.
	RemainingQty apd.Decimal `json:"remaining_quantity"`
	// Status is the current canonical state of the order.
	Status OrderStatus `json:"status"`
	// VenueStatus preserves the lower-cased venue status when Status is StatusUnknown.
	VenueStatus string `json:"venue_status,omitempty"`
	// TimeInForce defines how long the order remains active.
	TimeInForce TimeInForce `json:"time_in_force"`
	// Fee is the total fee charged for executions so far.
	Fee apd.Decimal `json:"fee"`
	// FeeCurrency is the currency in which the fee was charged.
	FeeCurrency string `json:"fee_currency,omitempty"`
	// Raw retains the venue-native payload for audit.
	Raw []byte `json:"raw,omitempty"`
	// CreatedAt is when the order was submitted.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the order was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// Balance represents account balance for a single currency.
// The invariant Free + Used == Total holds for every balance the library emits.
type Balance struct {
	// Currency is the asset code (e.g., "BTC", "USD").
	Currency string `json:"currency"`
	// Free is the balance available for trading.
	Free apd.Decimal `json:"free"`
	// Used is the balance held by open orders plus any locked or staked amount.
	Used apd.Decimal `json:"used"`
	// Total is the sum of free and used.
	Total apd.Decimal `json:"total"`
	// Timestamp is when this snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

// Trade represents a single executed trade.
// An order may result in multiple trades if partially filled over time.
type Trade struct {
	// ID is the venue-assigned trade identifier.
	ID string `json:"id"`
	// OrderID links this trade to its parent order, when known.
	OrderID string `json:"order_id,omitempty"`
	// Symbol is the canonical trading pair for this trade.
	Symbol string `json:"symbol"`
	// Side indicates whether this was a buy or sell.
	Side OrderSide `json:"side"`
	// Price is the execution price of this trade.
	Price apd.Decimal `json:"price"`
	// Quantity is the amount executed in this trade.
	Quantity apd.Decimal `json:"quantity"`
	// Cost is Price * Quantity in the quote currency.
	Cost apd.Decimal `json:"cost"`
	// Fee is the trading fee charged.
	Fee apd.Decimal `json:"fee"`
	// FeeCurrency is the currency in which the fee was charged.
	FeeCurrency string `json:"fee_currency,omitempty"`
	// Timestamp is when the trade was executed.
	Timestamp time.Time `json:"timestamp"`
}

// Kline represents a candlestick/OHLCV data point for a time period.
type Kline struct {
	// Symbol is the canonical trading pair for this kline.
	Symbol string `json:"symbol"`
	// Timeframe is the canonical interval of this candle.
	Timeframe Timeframe `json:"timeframe"`
	// OpenTime is the start of the candlestick period.
	OpenTime time.Time `json:"open_time"`
	// Open is the price at the start of the period.
	Open apd.Decimal `json:"open"`
	// High is the highest price during the period.
	High apd.Decimal `json:"high"`
	// Low is the lowest price during the period.
	Low apd.Decimal `json:"low"`
	// Close is the price at the end of the period.
	Close apd.Decimal `json:"close"`
	// Volume is the total trading volume during the period.
	Volume apd.Decimal `json:"volume"`
	// CloseTime is the end of the candlestick period.
	CloseTime time.Time `json:"close_time"`
}

// OrderBookLevel represents a single price level in the order book.
type OrderBookLevel struct {
	// Price is the limit price for this level.
	Price apd.Decimal `json:"price"`
	// Quantity is the total quantity available at this price.
	Quantity apd.Decimal `json:"quantity"`
	// OrderCount is the number of orders at this level, when the venue reports it.
	OrderCount int `json:"order_count,omitempty"`
}

// OrderBook represents a full snapshot of the order book for a trading pair.
// Each snapshot is a complete replacement, not a diff.
type OrderBook struct {
	// Symbol is the canonical trading pair for this order book.
	Symbol string `json:"symbol"`
	// Bids are buy orders sorted by price descending.
	Bids []OrderBookLevel `json:"bids"`
	// Asks are sell orders sorted by price ascending.
	Asks []OrderBookLevel `json:"asks"`
	// Timestamp is when this snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

// Position represents an open position on a margin or derivatives market.
type Position struct {
	// Symbol is the canonical trading pair for this position.
	Symbol string `json:"symbol"`
	// Side is the direction of the position.
	Side OrderSide `json:"side"`
	// Quantity is the absolute position size in base currency.
	Quantity apd.Decimal `json:"quantity"`
	// EntryPrice is the volume-weighted average entry price.
	EntryPrice apd.Decimal `json:"entry_price"`
	// UnrealizedPnL is the mark-to-market profit or loss in quote currency.
	UnrealizedPnL apd.Decimal `json:"unrealized_pnl"`
	// Timestamp is when this snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

// AccountInfo summarizes the account as reported by the venue.
type AccountInfo struct {
	// VenueAccountID is the venue-native account identifier, when reported.
	VenueAccountID string `json:"venue_account_id,omitempty"`
	// Balances holds the per-currency balances at snapshot time.
	Balances []Balance `json:"balances"`
	// CanTrade indicates whether the credentials permit order placement.
	CanTrade bool `json:"can_trade"`
	// Timestamp is when this snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}
