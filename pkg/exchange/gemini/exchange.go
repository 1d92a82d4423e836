// Package gemini implements the venue adapter for the Gemini exchange:
// REST v1 with base64 payload header authentication and the v2 market data
// plus v1 order events websocket streams.
package gemini

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"lintas/pkg/core"
	"lintas/pkg/events"
	"lintas/pkg/exchange"
)

// Adapter implements the exchange.Adapter interface for Gemini.
type Adapter struct {
	base     *exchange.Base
	protocol *Protocol
	stream   *Stream
	logger   zerolog.Logger
	caps     core.CapabilitySet
}

// Option is a functional option for configuring the Adapter.
type Option func(*Options)

// Options holds configuration options for the Adapter.
type Options struct {
	Logger zerolog.Logger
}

// WithLogger returns an option that sets the logger for the adapter.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// New creates a new Gemini adapter with the given configuration.
func New(config *core.Config, opts ...Option) (*Adapter, error) {
	options := &Options{
		Logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(options)
	}

	protocol := NewProtocol()
	base, err := exchange.NewBase(config, protocol, options.Logger)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		base:     base,
		protocol: protocol,
		logger:   options.Logger,
		caps: core.NewCapabilitySet(
			core.CapSpotTrading,
			core.CapWebsocketMarketData,
			core.CapWebsocketAccountData,
			core.CapOrderBookStreaming,
			core.CapStopOrders,
			core.CapCandles,
		),
	}, nil
}

// Name returns the adapter identifier "gemini".
func (a *Adapter) Name() string {
	return a.protocol.Name()
}

// Capabilities returns the feature set this adapter supports.
func (a *Adapter) Capabilities() core.CapabilitySet {
	return a.caps
}

// Events returns the adapter's event bus.
func (a *Adapter) Events() *events.Bus {
	return a.base.Bus()
}

// Connect loads the instrument map and establishes the market data stream.
func (a *Adapter) Connect(ctx context.Context) error {
	if !a.base.CompareAndSwapState(exchange.StateDisconnected, exchange.StateConnecting) {
		return nil
	}

	instruments, err := a.GetInstruments(ctx)
	if err != nil {
		a.base.SetState(exchange.StateDisconnected)
		return fmt.Errorf("load instruments: %w", err)
	}
	a.base.SetInstruments(instruments)

	a.stream = NewStream(a.base, a.logger)
	if err := a.stream.Connect(ctx); err != nil {
		a.base.SetState(exchange.StateDisconnected)
		return err
	}

	a.base.SetState(exchange.StateConnected)
	a.logger.Info().Int("instruments", len(instruments)).Msg("adapter connected")
	return nil
}

// Disconnect tears down the streams. REST operations remain usable.
func (a *Adapter) Disconnect() error {
	if a.stream != nil {
		if err := a.stream.Close(); err != nil {
			return err
		}
		a.stream = nil
	}
	a.base.SetState(exchange.StateDisconnected)
	return nil
}

// ValidateCredentials performs a balances call to verify the key.
func (a *Adapter) ValidateCredentials(ctx context.Context) error {
	_, err := a.GetBalances(ctx)
	return err
}

// GetInstruments retrieves the tradable instrument list.
func (a *Adapter) GetInstruments(ctx context.Context, opts ...exchange.Option) ([]core.Instrument, error) {
	result, err := a.base.Execute(ctx, core.OpGetInstruments, core.Params{})
	if err != nil {
		return nil, err
	}
	return assertType[[]core.Instrument](result)
}

// GetTicker retrieves the current ticker for the specified symbol.
func (a *Adapter) GetTicker(ctx context.Context, symbol string, opts ...exchange.Option) (*core.Ticker, error) {
	result, err := a.base.Execute(ctx, core.OpGetTicker, core.Params{"symbol": symbol})
	if err != nil {
		return nil, err
	}
	ticker, err := assertType[*core.Ticker](result)
	if err != nil {
		return nil, err
	}
	ticker.Symbol = symbol
	return ticker, nil
}

// GetOrderBook retrieves the order book snapshot for the specified symbol.
func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, opts ...exchange.Option) (*core.OrderBook, error) {
	options := exchange.ApplyOptions(opts...)

	params := core.Params{"symbol": symbol}
	if options.Depth > 0 {
		params["depth"] = options.Depth
	}

	result, err := a.base.Execute(ctx, core.OpGetOrderBook, params)
	if err != nil {
		return nil, err
	}
	book, err := assertType[*core.OrderBook](result)
	if err != nil {
		return nil, err
	}
	book.Symbol = symbol
	return book, nil
}

// GetTrades retrieves recent public trades for the specified symbol.
func (a *Adapter) GetTrades(ctx context.Context, symbol string, opts ...exchange.Option) ([]core.Trade, error) {
	options := exchange.ApplyOptions(opts...)

	params := core.Params{"symbol": symbol}
	if options.Limit > 0 {
		params["limit"] = options.Limit
	}

	result, err := a.base.Execute(ctx, core.OpGetTrades, params)
	if err != nil {
		return nil, err
	}
	trades, err := assertType[[]core.Trade](result)
	if err != nil {
		return nil, err
	}
	for i := range trades {
		trades[i].Symbol = symbol
	}
	return trades, nil
}

// GetKlines retrieves candlestick data for the specified symbol and timeframe.
func (a *Adapter) GetKlines(ctx context.Context, symbol string, timeframe core.Timeframe, opts ...exchange.Option) ([]core.Kline, error) {
	result, err := a.base.Execute(ctx, core.OpGetKlines, core.Params{
		"symbol":    symbol,
		"timeframe": timeframe.String(),
	})
	if err != nil {
		return nil, err
	}
	klines, err := assertType[[]core.Kline](result)
	if err != nil {
		return nil, err
	}
	for i := range klines {
		klines[i].Symbol = symbol
		klines[i].Timeframe = timeframe
		klines[i].CloseTime = klines[i].OpenTime.Add(timeframe.Duration())
	}
	return klines, nil
}

// GetBalances retrieves account balances for all currencies.
func (a *Adapter) GetBalances(ctx context.Context, opts ...exchange.Option) ([]core.Balance, error) {
	result, err := a.base.Execute(ctx, core.OpGetBalances, core.Params{})
	if err != nil {
		return nil, err
	}
	return assertType[[]core.Balance](result)
}

// GetAccountInfo retrieves the account summary.
func (a *Adapter) GetAccountInfo(ctx context.Context, opts ...exchange.Option) (*core.AccountInfo, error) {
	result, err := a.base.Execute(ctx, core.OpGetAccountInfo, core.Params{})
	if err != nil {
		return nil, err
	}
	return assertType[*core.AccountInfo](result)
}

// GetPositions is not supported on the spot-only Gemini adapter.
func (a *Adapter) GetPositions(ctx context.Context, opts ...exchange.Option) ([]core.Position, error) {
	return nil, core.ErrUnsupported
}

// PlaceOrder submits a new order. The venue accepts limit-style orders only;
// market orders fail with an unsupported error.
func (a *Adapter) PlaceOrder(ctx context.Context, req *exchange.OrderRequest, opts ...exchange.Option) (*core.Order, error) {
	params := core.Params{
		"symbol":   req.Symbol,
		"side":     req.Side.String(),
		"type":     req.Type.String(),
		"quantity": req.Quantity.String(),
	}
	if !req.Price.IsZero() {
		params["price"] = req.Price.String()
	}
	if !req.StopPrice.IsZero() {
		params["stop_price"] = req.StopPrice.String()
	}
	if req.TimeInForce != core.GTC {
		params["time_in_force"] = req.TimeInForce.String()
	}
	if req.ClientOrderID != "" {
		params["client_order_id"] = req.ClientOrderID
	}
	if req.PostOnly {
		params["post_only"] = true
	}

	result, err := a.base.Execute(ctx, core.OpPlaceOrder, params)
	if err != nil {
		return nil, err
	}
	return assertType[*core.Order](result)
}

// CancelOrder cancels an existing order.
func (a *Adapter) CancelOrder(ctx context.Context, req *exchange.CancelRequest, opts ...exchange.Option) (*core.Order, error) {
	result, err := a.base.Execute(ctx, core.OpCancelOrder, core.Params{
		"order_id": req.OrderID,
	})
	if err != nil {
		return nil, err
	}
	return assertType[*core.Order](result)
}

// GetOrder retrieves the current state of an order.
func (a *Adapter) GetOrder(ctx context.Context, req *exchange.OrderQuery, opts ...exchange.Option) (*core.Order, error) {
	result, err := a.base.Execute(ctx, core.OpGetOrder, core.Params{
		"order_id": req.OrderID,
	})
	if err != nil {
		return nil, err
	}
	return assertType[*core.Order](result)
}

// GetOpenOrders retrieves open orders. The venue endpoint returns all open
// orders; a symbol filter is applied client-side.
func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string, opts ...exchange.Option) ([]core.Order, error) {
	result, err := a.base.Execute(ctx, core.OpGetOpenOrders, core.Params{})
	if err != nil {
		return nil, err
	}
	orders, err := assertType[[]core.Order](result)
	if err != nil {
		return nil, err
	}
	if symbol == "" {
		return orders, nil
	}
	filtered := orders[:0]
	for _, order := range orders {
		if order.Symbol == symbol {
			filtered = append(filtered, order)
		}
	}
	return filtered, nil
}

// GetOrderHistory retrieves historical orders, optionally filtered by symbol.
func (a *Adapter) GetOrderHistory(ctx context.Context, symbol string, opts ...exchange.Option) ([]core.Order, error) {
	options := exchange.ApplyOptions(opts...)

	params := core.Params{}
	if symbol != "" {
		params["symbol"] = symbol
	}
	if options.Limit > 0 {
		params["limit"] = options.Limit
	}
	result, err := a.base.Execute(ctx, core.OpGetOrderHistory, params)
	if err != nil {
		return nil, err
	}
	return assertType[[]core.Order](result)
}

// SubscribeMarketData subscribes a market data channel for one symbol.
// Updates arrive on the event bus as market_update events.
func (a *Adapter) SubscribeMarketData(ctx context.Context, channel, symbol string, opts ...exchange.Option) error {
	if a.stream == nil {
		return core.ErrNotConnected
	}
	options := exchange.ApplyOptions(opts...)
	return a.stream.SubscribeMarket(channel, symbol, options.Timeframe)
}

// UnsubscribeMarketData removes a market data subscription.
func (a *Adapter) UnsubscribeMarketData(ctx context.Context, channel, symbol string) error {
	if a.stream == nil {
		return core.ErrNotConnected
	}
	return a.stream.UnsubscribeMarket(channel, symbol, core.Timeframe1m)
}

// SubscribeOrderUpdates connects the authenticated order events stream.
func (a *Adapter) SubscribeOrderUpdates(ctx context.Context) error {
	if a.stream == nil {
		return core.ErrNotConnected
	}
	return a.stream.SubscribeOrders(ctx)
}

// UnsubscribeOrderUpdates closes the order events stream.
func (a *Adapter) UnsubscribeOrderUpdates(ctx context.Context) error {
	if a.stream == nil {
		return core.ErrNotConnected
	}
	return a.stream.UnsubscribeOrders()
}

// Close releases all adapter resources.
func (a *Adapter) Close() error {
	if err := a.Disconnect(); err != nil {
		return err
	}
	return a.base.CloseBase()
}

// Register creates a Gemini adapter and registers it with the container.
func Register(container *exchange.Container, config *core.Config, opts ...Option) error {
	a, err := New(config, opts...)
	if err != nil {
		return fmt.Errorf("create gemini adapter: %w", err)
	}
	container.Register(a.Name(), a)
	return nil
}

func assertType[T any](result any) (T, error) {
	v, ok := result.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected response type: %T", result)
	}
	return v, nil
}
