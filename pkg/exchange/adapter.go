// Package exchange defines the unified adapter contract every venue
// implementation satisfies, plus the registry and per-call options shared
// by all of them. Callers program against Adapter and never touch a venue's
// wire format directly.
package exchange

import (
	"context"

	"github.com/cockroachdb/apd/v3"

	"lintas/pkg/core"
	"lintas/pkg/events"
)

// Adapter is the unified interface for interacting with a trading venue.
// All implementations normalize venue payloads into the canonical types in
// pkg/core and classify every failure into a *core.VenueError.
//
// Operations a venue does not support fail with core.ErrUnsupported; the
// supported set is discoverable up front through Capabilities.
type Adapter interface {
	Name() string
	Capabilities() core.CapabilitySet

	// Connect establishes the adapter's streaming connection and, when
	// credentials are configured, authenticates the private channel.
	// Disconnect tears both down; the adapter remains usable for REST calls.
	Connect(ctx context.Context) error
	Disconnect() error

	// ValidateCredentials performs a lightweight authenticated call to verify
	// the configured API key without mutating any account state.
	ValidateCredentials(ctx context.Context) error

	GetInstruments(ctx context.Context, opts ...Option) ([]core.Instrument, error)
	GetTicker(ctx context.Context, symbol string, opts ...Option) (*core.Ticker, error)
	GetOrderBook(ctx context.Context, symbol string, opts ...Option) (*core.OrderBook, error)
	GetTrades(ctx context.Context, symbol string, opts ...Option) ([]core.Trade, error)
	GetKlines(ctx context.Context, symbol string, timeframe core.Timeframe, opts ...Option) ([]core.Kline, error)

	GetBalances(ctx context.Context, opts ...Option) ([]core.Balance, error)
	GetAccountInfo(ctx context.Context, opts ...Option) (*core.AccountInfo, error)
	GetPositions(ctx context.Context, opts ...Option) ([]core.Position, error)

	PlaceOrder(ctx context.Context, req *OrderRequest, opts ...Option) (*core.Order, error)
	CancelOrder(ctx context.Context, req *CancelRequest, opts ...Option) (*core.Order, error)
	GetOrder(ctx context.Context, req *OrderQuery, opts ...Option) (*core.Order, error)
	GetOpenOrders(ctx context.Context, symbol string, opts ...Option) ([]core.Order, error)
	GetOrderHistory(ctx context.Context, symbol string, opts ...Option) ([]core.Order, error)

	// SubscribeMarketData subscribes the given channel ("ticker", "book",
	// "trade", "candle") for one symbol. Updates are published on the event
	// bus as market_update events. Subscriptions survive reconnects.
	SubscribeMarketData(ctx context.Context, channel string, symbol string, opts ...Option) error
	UnsubscribeMarketData(ctx context.Context, channel string, symbol string) error

	// SubscribeOrderUpdates subscribes the authenticated order stream.
	// Updates are published on the event bus as order_update events.
	SubscribeOrderUpdates(ctx context.Context) error
	UnsubscribeOrderUpdates(ctx context.Context) error

	// Events returns the adapter's event bus. The bus carries connected,
	// disconnected, error, market_update, and order_update events.
	Events() *events.Bus

	Close() error
}

// OrderRequest contains the parameters required to place a new order.
type OrderRequest struct {
	Symbol        string
	Side          core.OrderSide
	Type          core.OrderType
	Price         apd.Decimal
	StopPrice     apd.Decimal
	Quantity      apd.Decimal
	TimeInForce   core.TimeInForce
	ClientOrderID string
	PostOnly      bool
}

// CancelRequest contains the parameters required to cancel an existing order.
type CancelRequest struct {
	Symbol        string
	OrderID       string
	ClientOrderID string
}

// OrderQuery contains the parameters required to query order status.
type OrderQuery struct {
	Symbol        string
	OrderID       string
	ClientOrderID string
}
