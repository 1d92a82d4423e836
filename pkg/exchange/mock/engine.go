package mock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"lintas/pkg/core"
	"lintas/pkg/events"
)

// Failure injection classes. Rates are probabilities in [0, 1] rolled per
// operation.
const (
	FailConnection = "connection"
	FailAuth       = "auth"
	FailOrder      = "order"
	FailRateLimit  = "rate_limit"
)

// SeedMarket declares one simulated instrument and its starting price.
type SeedMarket struct {
	Symbol string
	Price  string
}

// settings holds the resolved simulation parameters.
type settings struct {
	seed            int64
	markets         []SeedMarket
	balances        map[string]string
	tickInterval    time.Duration
	latencyMin      time.Duration
	latencyMax      time.Duration
	marketFillDelay time.Duration
	limitFillDelay  time.Duration
	maxSlippageBps  int64
	spreadBps       int64
	failureRates    map[string]float64
}

// market is the simulated state for one instrument: the drifting last price
// and a bounded recent-trade feed.
type market struct {
	instrument core.Instrument
	last       apd.Decimal
	trades     []core.Trade
}

// simOrder pairs a canonical order with its ledger reservation so cancels
// can release exactly what is still held.
type simOrder struct {
	order            core.Order
	reservedCurrency string
	reservedAmount   apd.Decimal
}

// Engine is the simulation core behind the mock adapter: per-symbol random
// walk, order fills on timers, and the balance ledger. All timers stop as a
// unit when the engine stops.
type Engine struct {
	venue    string
	settings settings
	bus      *events.Bus
	logger   zerolog.Logger
	ledger   *Ledger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu      sync.Mutex
	markets map[string]*market
	orders  map[string]*simOrder
	subs    map[string]struct{}

	nextOrderID atomic.Int64
	nextTradeID atomic.Int64

	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

func newEngine(venue string, s settings, bus *events.Bus, logger zerolog.Logger) *Engine {
	return &Engine{
		venue:    venue,
		settings: s,
		bus:      bus,
		logger:   logger,
		ledger:   NewLedger(s.balances),
		rng:      rand.New(rand.NewSource(s.seed)),
		markets:  make(map[string]*market),
		orders:   make(map[string]*simOrder),
		subs:     make(map[string]struct{}),
	}
}

// Start seeds the markets and launches the tick loop. It simulates
// connection latency and connection failure injection.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.latency(ctx); err != nil {
		return err
	}
	if err := e.inject(FailConnection); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	e.markets = make(map[string]*market, len(e.settings.markets))
	for _, seed := range e.settings.markets {
		base, quote, ok := core.SplitSymbol(seed.Symbol)
		if !ok {
			continue
		}
		m := &market{
			instrument: core.Instrument{
				VenueSymbol:     seed.Symbol,
				Symbol:          seed.Symbol,
				Base:            base,
				Quote:           quote,
				Active:          true,
				MarketType:      core.MarketTypeSpot,
				PricePrecision:  2,
				AmountPrecision: 8,
			},
			trades: make([]core.Trade, 0, tradeFeedSize),
		}
		m.instrument.MinQuantity.SetInt64(0)
		if _, _, err := m.last.SetString(seed.Price); err != nil {
			continue
		}
		e.markets[seed.Symbol] = m
	}

	e.stop = make(chan struct{})
	e.running = true
	e.wg.Add(1)
	go e.tickLoop()
	return nil
}

// Stop cancels the tick loop and every pending fill timer as a unit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stop)
	e.mu.Unlock()

	e.wg.Wait()
}

const tradeFeedSize = 50

func (e *Engine) tickLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.settings.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// tick drifts every market by a small random walk, records a synthetic
// trade, and publishes updates for subscribed channels.
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	for symbol, m := range e.markets {
		drift := e.randBps(20) - 10 // [-10, +10) bps per tick
		var next apd.Decimal
		_, _ = apd.BaseContext.Mul(&next, &m.last, bpsFactor(drift))
		m.last = next

		trade := core.Trade{
			ID:        fmt.Sprintf("mock-t%d", e.nextTradeID.Add(1)),
			Symbol:    symbol,
			Side:      core.SideBuy,
			Price:     m.last,
			Timestamp: now,
		}
		if drift < 0 {
			trade.Side = core.SideSell
		}
		trade.Quantity = e.randQuantity()
		_, _ = apd.BaseContext.Mul(&trade.Cost, &trade.Price, &trade.Quantity)
		m.trades = append(m.trades, trade)
		if len(m.trades) > tradeFeedSize {
			m.trades = m.trades[len(m.trades)-tradeFeedSize:]
		}

		if e.subscribed("ticker", symbol) {
			e.publishMarket("ticker", symbol, e.tickerLocked(m))
		}
		if e.subscribed("book", symbol) {
			e.publishMarket("book", symbol, e.bookLocked(m, defaultDepth))
		}
		if e.subscribed("trade", symbol) {
			e.publishMarket("trade", symbol, trade)
		}
	}
}

// Subscribe registers a market data channel for tick-time publication.
func (e *Engine) Subscribe(channel, symbol string) error {
	switch channel {
	case "ticker", "book", "trade":
	default:
		return fmt.Errorf("channel %q: %w", channel, core.ErrUnsupported)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.markets[symbol]; !ok {
		return e.invalidSymbol(symbol)
	}
	e.subs[channel+"."+symbol] = struct{}{}
	return nil
}

// Unsubscribe removes a market data channel registration.
func (e *Engine) Unsubscribe(channel, symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs, channel+"."+symbol)
}

func (e *Engine) subscribed(channel, symbol string) bool {
	_, ok := e.subs[channel+"."+symbol]
	return ok
}

// Instruments returns the simulated instrument list.
func (e *Engine) Instruments() []core.Instrument {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]core.Instrument, 0, len(e.markets))
	for _, m := range e.markets {
		out = append(out, m.instrument)
	}
	return out
}

// Ticker builds a ticker around the current last price with a fixed
// half-spread on each side.
func (e *Engine) Ticker(symbol string) (*core.Ticker, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[symbol]
	if !ok {
		return nil, e.invalidSymbol(symbol)
	}
	return e.tickerLocked(m), nil
}

func (e *Engine) tickerLocked(m *market) *core.Ticker {
	half := e.settings.spreadBps / 2
	ticker := &core.Ticker{
		Symbol:    m.instrument.Symbol,
		Last:      m.last,
		Timestamp: time.Now(),
	}
	_, _ = apd.BaseContext.Mul(&ticker.Bid, &m.last, bpsFactor(-half))
	_, _ = apd.BaseContext.Mul(&ticker.Ask, &m.last, bpsFactor(half))
	_, _ = apd.BaseContext.Mul(&ticker.High, &m.last, bpsFactor(100))
	_, _ = apd.BaseContext.Mul(&ticker.Low, &m.last, bpsFactor(-100))
	ticker.Volume = e.randQuantity()
	return ticker
}

const defaultDepth = 10

// OrderBook synthesizes a book around the current price: bids descending
// from the bid, asks ascending from the ask, one half-spread step per level.
func (e *Engine) OrderBook(symbol string, depth int) (*core.OrderBook, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[symbol]
	if !ok {
		return nil, e.invalidSymbol(symbol)
	}
	if depth <= 0 {
		depth = defaultDepth
	}
	return e.bookLocked(m, depth), nil
}

func (e *Engine) bookLocked(m *market, depth int) *core.OrderBook {
	half := e.settings.spreadBps / 2
	book := &core.OrderBook{
		Symbol:    m.instrument.Symbol,
		Bids:      make([]core.OrderBookLevel, 0, depth),
		Asks:      make([]core.OrderBookLevel, 0, depth),
		Timestamp: time.Now(),
	}
	for i := 0; i < depth; i++ {
		step := int64(i) * half
		var bid, ask core.OrderBookLevel
		_, _ = apd.BaseContext.Mul(&bid.Price, &m.last, bpsFactor(-half-step))
		_, _ = apd.BaseContext.Mul(&ask.Price, &m.last, bpsFactor(half+step))
		bid.Quantity = e.randQuantity()
		ask.Quantity = e.randQuantity()
		book.Bids = append(book.Bids, bid)
		book.Asks = append(book.Asks, ask)
	}
	return book
}

// Trades returns the most recent synthetic trades, newest last.
func (e *Engine) Trades(symbol string, limit int) ([]core.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[symbol]
	if !ok {
		return nil, e.invalidSymbol(symbol)
	}
	trades := m.trades
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	out := make([]core.Trade, len(trades))
	copy(out, trades)
	return out, nil
}

// Klines synthesizes a random-walk candle history ending at the current
// price, oldest first.
func (e *Engine) Klines(symbol string, tf core.Timeframe, limit int) ([]core.Kline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[symbol]
	if !ok {
		return nil, e.invalidSymbol(symbol)
	}
	if limit <= 0 {
		limit = 100
	}

	// Walk backwards from the live price so the newest candle closes at it.
	closes := make([]apd.Decimal, limit)
	closes[limit-1] = m.last
	for i := limit - 2; i >= 0; i-- {
		drift := e.randBps(40) - 20
		_, _ = apd.BaseContext.Mul(&closes[i], &closes[i+1], bpsFactor(drift))
	}

	period := tf.Duration()
	start := time.Now().Truncate(period).Add(-period * time.Duration(limit-1))
	klines := make([]core.Kline, 0, limit)
	for i := 0; i < limit; i++ {
		k := core.Kline{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  start.Add(period * time.Duration(i)),
			Close:     closes[i],
			Volume:    e.randQuantity(),
		}
		k.CloseTime = k.OpenTime.Add(period)
		if i == 0 {
			k.Open = closes[i]
		} else {
			k.Open = closes[i-1]
		}
		if k.Open.Cmp(&k.Close) >= 0 {
			k.High = k.Open
			k.Low = k.Close
		} else {
			k.High = k.Close
			k.Low = k.Open
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// PlaceOrder reserves funds and schedules the simulated execution. Market
// orders fill fully after the market fill delay with taker-direction
// slippage; limit orders partially fill after the limit delay, then
// complete.
func (e *Engine) PlaceOrder(req orderIntent) (*core.Order, error) {
	if err := e.inject(FailOrder); err != nil {
		return nil, err
	}

	e.mu.Lock()
	m, ok := e.markets[req.Symbol]
	if !ok {
		e.mu.Unlock()
		return nil, e.invalidSymbol(req.Symbol)
	}

	if req.Quantity.Sign() <= 0 {
		e.mu.Unlock()
		return nil, core.NewVenueError(e.venue, core.KindOrder, 0, "quantity must be positive")
	}
	if req.Type == core.TypeLimit && req.Price.Sign() <= 0 {
		e.mu.Unlock()
		return nil, core.NewVenueError(e.venue, core.KindOrder, 0, "limit orders require a price")
	}
	if req.Type != core.TypeMarket && req.Type != core.TypeLimit {
		e.mu.Unlock()
		return nil, core.NewVenueError(e.venue, core.KindOrder, 0,
			fmt.Sprintf("order type %s not simulated", req.Type))
	}

	// Price basis for the reservation: the limit price, or the touch for
	// market orders.
	var basis apd.Decimal
	if req.Type == core.TypeLimit {
		basis = req.Price
	} else if req.Side == core.SideBuy {
		_, _ = apd.BaseContext.Mul(&basis, &m.last, bpsFactor(e.settings.spreadBps/2))
	} else {
		_, _ = apd.BaseContext.Mul(&basis, &m.last, bpsFactor(-e.settings.spreadBps/2))
	}

	var reserveCurrency string
	var reserveAmount apd.Decimal
	if req.Side == core.SideBuy {
		reserveCurrency = m.instrument.Quote
		_, _ = apd.BaseContext.Mul(&reserveAmount, &basis, &req.Quantity)
	} else {
		reserveCurrency = m.instrument.Base
		reserveAmount = req.Quantity
	}
	e.mu.Unlock()

	if err := e.ledger.Reserve(reserveCurrency, &reserveAmount); err != nil {
		verr := core.NewVenueError(e.venue, core.KindInsufficientFunds, 0, err.Error())
		var ie *insufficientError
		if errors.As(err, &ie) {
			verr = verr.WithFunds(ie.required, ie.available)
		}
		return nil, verr
	}

	now := time.Now()
	order := core.Order{
		ID:            fmt.Sprintf("mock-%d", e.nextOrderID.Add(1)),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		Quantity:      req.Quantity,
		RemainingQty:  req.Quantity,
		Status:        core.StatusPending,
		TimeInForce:   req.TimeInForce,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		e.ledger.Release(reserveCurrency, &reserveAmount)
		return nil, core.ErrNotConnected
	}
	e.orders[order.ID] = &simOrder{
		order:            order,
		reservedCurrency: reserveCurrency,
		reservedAmount:   reserveAmount,
	}
	stop := e.stop
	e.mu.Unlock()

	e.publishOrder(order)

	if order.Type == core.TypeMarket {
		e.after(stop, e.settings.marketFillDelay, func() {
			e.fill(order.ID, 100)
		})
	} else {
		ratio := int64(30 + e.randIntn(41)) // 30..70 percent
		e.after(stop, e.settings.limitFillDelay, func() {
			e.fill(order.ID, ratio)
			e.after(stop, e.settings.limitFillDelay, func() {
				e.fill(order.ID, 100)
			})
		})
	}

	snapshot := order
	return &snapshot, nil
}

// after runs fn once delay elapses unless the engine stops first.
func (e *Engine) after(stop chan struct{}, delay time.Duration, fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-stop:
		case <-timer.C:
			fn()
		}
	}()
}

// fill executes the order up to ratioPercent of its total quantity. A 100
// percent fill completes the order; repeated fills are cumulative.
func (e *Engine) fill(orderID string, ratioPercent int64) {
	e.mu.Lock()
	so, ok := e.orders[orderID]
	if !ok || so.order.Status.IsTerminal() {
		e.mu.Unlock()
		return
	}
	m := e.markets[so.order.Symbol]

	// Target cumulative fill, then the increment from the current state.
	var target, increment apd.Decimal
	_, _ = apd.BaseContext.Mul(&target, &so.order.Quantity, apd.New(ratioPercent, -2))
	_, _ = apd.BaseContext.Sub(&increment, &target, &so.order.FilledQuantity)
	if increment.Sign() <= 0 {
		e.mu.Unlock()
		return
	}

	// Execution price: the limit price, or the touch moved against the
	// taker by random slippage for market orders.
	var price apd.Decimal
	if so.order.Type == core.TypeLimit {
		price = so.order.Price
	} else {
		slip := e.randBps(e.settings.maxSlippageBps + 1)
		half := e.settings.spreadBps / 2
		if so.order.Side == core.SideBuy {
			_, _ = apd.BaseContext.Mul(&price, &m.last, bpsFactor(half+slip))
		} else {
			_, _ = apd.BaseContext.Mul(&price, &m.last, bpsFactor(-half-slip))
		}
	}

	var cost apd.Decimal
	_, _ = apd.BaseContext.Mul(&cost, &price, &increment)

	base, quote := m.instrument.Base, m.instrument.Quote
	side := so.order.Side

	so.order.FilledQuantity = target
	_, _ = apd.BaseContext.Sub(&so.order.RemainingQty, &so.order.Quantity, &target)
	if so.order.RemainingQty.Sign() <= 0 {
		so.order.Status = core.StatusFilled
		so.order.RemainingQty.SetInt64(0)
	} else {
		so.order.Status = core.StatusPartiallyFilled
	}
	so.order.UpdatedAt = time.Now()
	if side == core.SideBuy {
		subFrom(&so.reservedAmount, &cost)
	} else {
		subFrom(&so.reservedAmount, &increment)
	}
	snapshot := so.order
	releaseCurrency := so.reservedCurrency
	var release apd.Decimal
	if snapshot.Status == core.StatusFilled && so.reservedAmount.Sign() > 0 {
		// Limit fills below the reservation basis leave a remainder held.
		release = so.reservedAmount
		so.reservedAmount.SetInt64(0)
	}
	e.mu.Unlock()

	if side == core.SideBuy {
		e.ledger.Settle(quote, &cost, base, &increment)
	} else {
		e.ledger.Settle(base, &increment, quote, &cost)
	}
	if release.Sign() > 0 {
		e.ledger.Release(releaseCurrency, &release)
	}

	e.publishOrder(snapshot)
}

// CancelOrder cancels a non-terminal order and releases the held funds.
func (e *Engine) CancelOrder(orderID string) (*core.Order, error) {
	if err := e.inject(FailOrder); err != nil {
		return nil, err
	}

	e.mu.Lock()
	so, ok := e.orders[orderID]
	if !ok {
		e.mu.Unlock()
		return nil, core.NewVenueError(e.venue, core.KindOrder, 0, "order not found").WithOrderID(orderID)
	}
	if so.order.Status.IsTerminal() {
		e.mu.Unlock()
		return nil, core.NewVenueError(e.venue, core.KindOrder, 0,
			fmt.Sprintf("order already %s", so.order.Status)).WithOrderID(orderID)
	}

	so.order.Status = core.StatusCanceled
	so.order.UpdatedAt = time.Now()
	release := so.reservedAmount
	so.reservedAmount.SetInt64(0)
	currency := so.reservedCurrency
	snapshot := so.order
	e.mu.Unlock()

	if release.Sign() > 0 {
		e.ledger.Release(currency, &release)
	}
	e.publishOrder(snapshot)
	return &snapshot, nil
}

// Order returns a snapshot of one order.
func (e *Engine) Order(orderID string) (*core.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	so, ok := e.orders[orderID]
	if !ok {
		return nil, core.NewVenueError(e.venue, core.KindOrder, 0, "order not found").WithOrderID(orderID)
	}
	snapshot := so.order
	return &snapshot, nil
}

// Orders returns order snapshots filtered by symbol and terminal state.
func (e *Engine) Orders(symbol string, terminal bool) []core.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]core.Order, 0, len(e.orders))
	for _, so := range e.orders {
		if symbol != "" && so.order.Symbol != symbol {
			continue
		}
		if so.order.Status.IsTerminal() != terminal {
			continue
		}
		out = append(out, so.order)
	}
	return out
}

// Ledger exposes the simulated account for balance queries.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// latency sleeps for a random duration within the configured bounds.
func (e *Engine) latency(ctx context.Context) error {
	if e.settings.latencyMax <= 0 {
		return nil
	}
	span := e.settings.latencyMax - e.settings.latencyMin
	d := e.settings.latencyMin
	if span > 0 {
		d += time.Duration(e.randIntn(int(span)))
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// inject rolls the failure rate for a class and returns a classified error
// when the roll fails.
func (e *Engine) inject(class string) error {
	rate := e.settings.failureRates[class]
	if rate <= 0 || e.randFloat() >= rate {
		return nil
	}
	switch class {
	case FailConnection:
		return core.NewVenueError(e.venue, core.KindConnection, 0, "injected connection failure")
	case FailAuth:
		return core.NewVenueError(e.venue, core.KindAuthentication, http.StatusUnauthorized, "injected authentication failure")
	case FailRateLimit:
		return core.NewVenueError(e.venue, core.KindRateLimit, http.StatusTooManyRequests,
			"injected rate limit").WithRetryAfter(e.settings.tickInterval)
	default:
		return core.NewVenueError(e.venue, core.KindOrder, 0, "injected order failure")
	}
}

func (e *Engine) invalidSymbol(symbol string) error {
	return core.NewVenueError(e.venue, core.KindInvalidSymbol, 0,
		fmt.Sprintf("unknown symbol %q", symbol))
}

func (e *Engine) publishMarket(channel, symbol string, data any) {
	e.bus.Publish(events.Event{
		Kind:  events.KindMarketUpdate,
		Venue: e.venue,
		Market: &events.MarketPayload{
			Channel: channel,
			Symbol:  symbol,
			Data:    data,
		},
	})
}

func (e *Engine) publishOrder(order core.Order) {
	e.bus.Publish(events.Event{
		Kind:  events.KindOrderUpdate,
		Venue: e.venue,
		Order: &order,
	})
}

func (e *Engine) randFloat() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) randIntn(n int) int {
	if n <= 0 {
		return 0
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}

// randBps returns a random basis point offset in [0, n).
func (e *Engine) randBps(n int64) int64 {
	return int64(e.randIntn(int(n)))
}

// randQuantity returns a small pseudo-random size for synthetic feed data.
func (e *Engine) randQuantity() apd.Decimal {
	var q apd.Decimal
	q.SetInt64(int64(1 + e.randIntn(500)))
	// Scale to a fractional size, e.g. 347 -> 0.347.
	q.Exponent -= 3
	return q
}

// bpsFactor returns (1 + bps/10000) as a decimal multiplier.
func bpsFactor(bps int64) *apd.Decimal {
	return apd.New(10000+bps, -4)
}

// orderIntent is the subset of an order request the engine consumes.
//
// The adapter translates exchange.OrderRequest into this shape so the engine
// has no dependency on the adapter contract package.
type orderIntent struct {
	Symbol        string
	Side          core.OrderSide
	Type          core.OrderType
	Price         apd.Decimal
	Quantity      apd.Decimal
	TimeInForce   core.TimeInForce
	ClientOrderID string
}
