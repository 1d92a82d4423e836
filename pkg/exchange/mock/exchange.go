// Package mock implements a self-contained simulation venue that satisfies
// the full adapter contract without any network calls. Prices drift by a
// random walk, orders fill on timers with taker-direction slippage, and a
// balance ledger moves funds between base and quote on every fill. With a
// fixed seed the whole simulation is deterministic, which makes the adapter
// suitable for conformance tests and offline development.
package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"lintas/pkg/core"
	"lintas/pkg/events"
	"lintas/pkg/exchange"
)

// Adapter is the mock venue. It implements exchange.Adapter entirely
// in-process.
type Adapter struct {
	config *core.Config
	engine *Engine
	bus    *events.Bus
	logger zerolog.Logger
	caps   core.CapabilitySet
	state  atomic.Int32
}

// Option is a functional option for configuring the Adapter.
type Option func(*Options)

// Options holds configuration options for the Adapter.
type Options struct {
	Logger zerolog.Logger

	// Seed fixes the random source; zero selects a time-based seed.
	Seed int64
	// Markets are the simulated instruments and their starting prices.
	Markets []SeedMarket
	// Balances seeds the ledger with free amounts per currency.
	Balances map[string]string
	// TickInterval is the random walk period for the market feed.
	TickInterval time.Duration
	// LatencyMin and LatencyMax bound the simulated call latency.
	LatencyMin time.Duration
	LatencyMax time.Duration
	// MarketFillDelay is how long a market order takes to fill.
	MarketFillDelay time.Duration
	// LimitFillDelay is how long a limit order takes to partially fill;
	// completion follows after the same delay again.
	LimitFillDelay time.Duration
	// MaxSlippageBps bounds the random slippage applied against the taker.
	MaxSlippageBps int64
	// SpreadBps is the full bid/ask spread around the last price.
	SpreadBps int64
	// FailureRates maps an operation class (FailConnection, FailAuth,
	// FailOrder, FailRateLimit) to a probability in [0, 1].
	FailureRates map[string]float64
}

// WithLogger returns an option that sets the logger for the adapter.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithSeed fixes the random source so the simulation is reproducible.
func WithSeed(seed int64) Option {
	return func(o *Options) {
		o.Seed = seed
	}
}

// WithMarket adds a simulated instrument with a starting price.
func WithMarket(symbol, price string) Option {
	return func(o *Options) {
		o.Markets = append(o.Markets, SeedMarket{Symbol: symbol, Price: price})
	}
}

// WithBalance seeds the ledger with a free amount for one currency.
func WithBalance(currency, amount string) Option {
	return func(o *Options) {
		if o.Balances == nil {
			o.Balances = make(map[string]string)
		}
		o.Balances[currency] = amount
	}
}

// WithTickInterval sets the market feed random walk period.
func WithTickInterval(d time.Duration) Option {
	return func(o *Options) {
		o.TickInterval = d
	}
}

// WithLatency bounds the simulated per-call latency.
func WithLatency(min, max time.Duration) Option {
	return func(o *Options) {
		o.LatencyMin = min
		o.LatencyMax = max
	}
}

// WithFillDelays sets the market and limit order execution delays.
func WithFillDelays(market, limit time.Duration) Option {
	return func(o *Options) {
		o.MarketFillDelay = market
		o.LimitFillDelay = limit
	}
}

// WithSlippage bounds the random slippage, in basis points, applied in the
// direction unfavorable to the taker.
func WithSlippage(maxBps int64) Option {
	return func(o *Options) {
		o.MaxSlippageBps = maxBps
	}
}

// WithFailureRate sets the failure injection probability for one operation
// class.
func WithFailureRate(class string, rate float64) Option {
	return func(o *Options) {
		if o.FailureRates == nil {
			o.FailureRates = make(map[string]float64)
		}
		o.FailureRates[class] = rate
	}
}

// New creates a mock adapter. Without options it simulates BTC/USD at 50000
// and ETH/USD at 3000 with 100000 USD of starting balance.
func New(config *core.Config, opts ...Option) (*Adapter, error) {
	if config == nil {
		config = core.DefaultConfig("mock")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	options := &Options{
		Logger:          zerolog.Nop(),
		TickInterval:    250 * time.Millisecond,
		MarketFillDelay: 50 * time.Millisecond,
		LimitFillDelay:  200 * time.Millisecond,
		MaxSlippageBps:  10,
		SpreadBps:       20,
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.Seed == 0 {
		options.Seed = time.Now().UnixNano()
	}
	if len(options.Markets) == 0 {
		options.Markets = []SeedMarket{
			{Symbol: "BTC/USD", Price: "50000"},
			{Symbol: "ETH/USD", Price: "3000"},
		}
	}
	if options.Balances == nil {
		options.Balances = map[string]string{"USD": "100000"}
	}

	bus := events.NewBus(0)
	bus.SetLogger(options.Logger)

	a := &Adapter{
		config: config,
		bus:    bus,
		logger: options.Logger,
		caps: core.NewCapabilitySet(
			core.CapSpotTrading,
			core.CapWebsocketMarketData,
			core.CapWebsocketAccountData,
			core.CapOrderBookStreaming,
			core.CapCandles,
		),
	}
	a.engine = newEngine("mock", settings{
		seed:            options.Seed,
		markets:         options.Markets,
		balances:        options.Balances,
		tickInterval:    options.TickInterval,
		latencyMin:      options.LatencyMin,
		latencyMax:      options.LatencyMax,
		marketFillDelay: options.MarketFillDelay,
		limitFillDelay:  options.LimitFillDelay,
		maxSlippageBps:  options.MaxSlippageBps,
		spreadBps:       options.SpreadBps,
		failureRates:    options.FailureRates,
	}, bus, options.Logger)
	a.state.Store(int32(exchange.StateDisconnected))
	return a, nil
}

// Name returns the adapter identifier "mock".
func (a *Adapter) Name() string {
	return "mock"
}

// Capabilities returns the feature set this adapter supports.
func (a *Adapter) Capabilities() core.CapabilitySet {
	return a.caps
}

// Events returns the adapter's event bus.
func (a *Adapter) Events() *events.Bus {
	return a.bus
}

// State returns the adapter's connection state.
func (a *Adapter) State() exchange.AdapterState {
	return exchange.AdapterState(a.state.Load())
}

// Connect starts the simulation engine. Connection latency and failure
// injection apply.
func (a *Adapter) Connect(ctx context.Context) error {
	if !a.state.CompareAndSwap(int32(exchange.StateDisconnected), int32(exchange.StateConnecting)) {
		return nil
	}
	if err := a.engine.Start(ctx); err != nil {
		a.state.Store(int32(exchange.StateDisconnected))
		return err
	}

	target := exchange.StateConnected
	if a.config.Credentials != nil {
		target = exchange.StateAuthenticated
	}
	a.state.Store(int32(target))
	a.bus.Publish(events.Event{Kind: events.KindConnected, Venue: a.Name()})
	a.logger.Info().Str("state", target.String()).Msg("mock venue started")
	return nil
}

// Disconnect stops the engine and cancels all pending fill timers.
func (a *Adapter) Disconnect() error {
	a.engine.Stop()
	a.state.Store(int32(exchange.StateDisconnected))
	a.bus.Publish(events.Event{Kind: events.KindDisconnected, Venue: a.Name()})
	return nil
}

// ValidateCredentials simulates a credential check subject to auth failure
// injection.
func (a *Adapter) ValidateCredentials(ctx context.Context) error {
	if err := a.engine.latency(ctx); err != nil {
		return err
	}
	if a.config.Credentials == nil {
		return core.ErrNoCredentials
	}
	return a.engine.inject(FailAuth)
}

// admit simulates the per-call overhead every operation pays: latency plus
// rate limit injection.
func (a *Adapter) admit(ctx context.Context) error {
	if a.State() == exchange.StateDisconnected {
		return core.ErrNotConnected
	}
	if err := a.engine.latency(ctx); err != nil {
		return err
	}
	return a.engine.inject(FailRateLimit)
}

// GetInstruments returns the simulated instrument list.
func (a *Adapter) GetInstruments(ctx context.Context, opts ...exchange.Option) ([]core.Instrument, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	return a.engine.Instruments(), nil
}

// GetTicker returns the current simulated ticker for the symbol.
func (a *Adapter) GetTicker(ctx context.Context, symbol string, opts ...exchange.Option) (*core.Ticker, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	return a.engine.Ticker(symbol)
}

// GetOrderBook returns a synthetic order book around the current price.
func (a *Adapter) GetOrderBook(ctx context.Context, symbol string, opts ...exchange.Option) (*core.OrderBook, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	options := exchange.ApplyOptions(opts...)
	return a.engine.OrderBook(symbol, options.Depth)
}

// GetTrades returns the recent synthetic trade feed.
func (a *Adapter) GetTrades(ctx context.Context, symbol string, opts ...exchange.Option) ([]core.Trade, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	options := exchange.ApplyOptions(opts...)
	return a.engine.Trades(symbol, options.Limit)
}

// GetKlines returns a synthetic candle history ending at the live price.
func (a *Adapter) GetKlines(ctx context.Context, symbol string, timeframe core.Timeframe, opts ...exchange.Option) ([]core.Kline, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	options := exchange.ApplyOptions(opts...)
	return a.engine.Klines(symbol, timeframe, options.Limit)
}

// GetBalances returns the current ledger snapshot.
func (a *Adapter) GetBalances(ctx context.Context, opts ...exchange.Option) ([]core.Balance, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	if err := a.engine.inject(FailAuth); err != nil {
		return nil, err
	}
	return a.engine.Ledger().Balances(), nil
}

// GetAccountInfo returns the simulated account summary.
func (a *Adapter) GetAccountInfo(ctx context.Context, opts ...exchange.Option) (*core.AccountInfo, error) {
	balances, err := a.GetBalances(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &core.AccountInfo{
		VenueAccountID: "mock-account",
		Balances:       balances,
		CanTrade:       true,
		Timestamp:      time.Now(),
	}, nil
}

// GetPositions is not supported on the spot-only mock venue.
func (a *Adapter) GetPositions(ctx context.Context, opts ...exchange.Option) ([]core.Position, error) {
	return nil, core.ErrUnsupported
}

// PlaceOrder submits an order to the simulation. Market orders fill after
// the configured delay with taker-direction slippage; limit orders fill
// partially and then complete.
func (a *Adapter) PlaceOrder(ctx context.Context, req *exchange.OrderRequest, opts ...exchange.Option) (*core.Order, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	return a.engine.PlaceOrder(orderIntent{
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		Quantity:      req.Quantity,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: req.ClientOrderID,
	})
}

// CancelOrder cancels a pending or open order and releases held funds.
func (a *Adapter) CancelOrder(ctx context.Context, req *exchange.CancelRequest, opts ...exchange.Option) (*core.Order, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	return a.engine.CancelOrder(req.OrderID)
}

// GetOrder returns a snapshot of one order.
func (a *Adapter) GetOrder(ctx context.Context, req *exchange.OrderQuery, opts ...exchange.Option) (*core.Order, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	return a.engine.Order(req.OrderID)
}

// GetOpenOrders returns all non-terminal orders, optionally filtered by
// symbol.
func (a *Adapter) GetOpenOrders(ctx context.Context, symbol string, opts ...exchange.Option) ([]core.Order, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	return a.engine.Orders(symbol, false), nil
}

// GetOrderHistory returns all terminal orders, optionally filtered by
// symbol.
func (a *Adapter) GetOrderHistory(ctx context.Context, symbol string, opts ...exchange.Option) ([]core.Order, error) {
	if err := a.admit(ctx); err != nil {
		return nil, err
	}
	return a.engine.Orders(symbol, true), nil
}

// SubscribeMarketData registers a channel for tick-time publication on the
// event bus.
func (a *Adapter) SubscribeMarketData(ctx context.Context, channel, symbol string, opts ...exchange.Option) error {
	if a.State() == exchange.StateDisconnected {
		return core.ErrNotConnected
	}
	return a.engine.Subscribe(channel, symbol)
}

// UnsubscribeMarketData removes a market data registration.
func (a *Adapter) UnsubscribeMarketData(ctx context.Context, channel, symbol string) error {
	a.engine.Unsubscribe(channel, symbol)
	return nil
}

// SubscribeOrderUpdates is a no-op: the simulation always publishes
// order_update events for the account's own orders.
func (a *Adapter) SubscribeOrderUpdates(ctx context.Context) error {
	if a.State() == exchange.StateDisconnected {
		return core.ErrNotConnected
	}
	return nil
}

// UnsubscribeOrderUpdates is a no-op counterpart to SubscribeOrderUpdates.
func (a *Adapter) UnsubscribeOrderUpdates(ctx context.Context) error {
	return nil
}

// Close stops the simulation and closes the event bus.
func (a *Adapter) Close() error {
	a.engine.Stop()
	a.state.Store(int32(exchange.StateDisconnected))
	a.bus.Close()
	return nil
}

// Register creates a mock adapter and registers it with the container.
func Register(container *exchange.Container, config *core.Config, opts ...Option) error {
	a, err := New(config, opts...)
	if err != nil {
		return fmt.Errorf("create mock adapter: %w", err)
	}
	container.Register(a.Name(), a)
	return nil
}
