package mock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lintas/pkg/core"
	"lintas/pkg/events"
	"lintas/pkg/exchange"
)

// newTestAdapter builds a frozen-market adapter: ticks are effectively
// disabled so prices stay put and fills are deterministic under the seed.
func newTestAdapter(t *testing.T, opts ...Option) *Adapter {
	t.Helper()
	base := []Option{
		WithSeed(42),
		WithMarket("BTC/USD", "50000"),
		WithMarket("ETH/USD", "3000"),
		WithBalance("USD", "100000"),
		WithTickInterval(time.Hour),
		WithFillDelays(10*time.Millisecond, 20*time.Millisecond),
	}
	a, err := New(nil, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func connect(t *testing.T, a *Adapter) {
	t.Helper()
	require.NoError(t, a.Connect(t.Context()))
}

func waitForStatus(t *testing.T, a *Adapter, orderID string, want core.OrderStatus) core.Order {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		order, err := a.GetOrder(t.Context(), &exchange.OrderQuery{OrderID: orderID})
		require.NoError(t, err)
		if order.Status == want {
			return *order
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("order %s never reached %s", orderID, want)
	return core.Order{}
}

func TestAdapter_ConnectLifecycle(t *testing.T) {
	a := newTestAdapter(t)
	assert.Equal(t, exchange.StateDisconnected, a.State())

	sub := a.Events().Subscribe(events.KindConnected)
	defer sub.Unsubscribe()

	connect(t, a)
	assert.Equal(t, exchange.StateConnected, a.State())

	ev := <-sub.C()
	assert.Equal(t, "mock", ev.Venue)

	require.NoError(t, a.Disconnect())
	assert.Equal(t, exchange.StateDisconnected, a.State())

	_, err := a.GetTicker(t.Context(), "BTC/USD")
	assert.ErrorIs(t, err, core.ErrNotConnected)
}

func TestAdapter_AuthenticatedWithCredentials(t *testing.T) {
	config := core.DefaultConfig("mock").
		WithCredentials(&core.Credentials{APIKey: "k", SecretKey: "s"})
	a, err := New(config, WithSeed(1), WithTickInterval(time.Hour))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	connect(t, a)
	assert.Equal(t, exchange.StateAuthenticated, a.State())
	assert.NoError(t, a.ValidateCredentials(t.Context()))
}

func TestAdapter_ValidateCredentials_NoCredentials(t *testing.T) {
	a := newTestAdapter(t)
	connect(t, a)
	assert.ErrorIs(t, a.ValidateCredentials(t.Context()), core.ErrNoCredentials)
}

func TestAdapter_GetInstruments(t *testing.T) {
	a := newTestAdapter(t)
	connect(t, a)

	instruments, err := a.GetInstruments(t.Context())
	require.NoError(t, err)
	require.Len(t, instruments, 2)

	bySymbol := make(map[string]core.Instrument, len(instruments))
	for _, inst := range instruments {
		bySymbol[inst.Symbol] = inst
	}
	btc := bySymbol["BTC/USD"]
	assert.Equal(t, "BTC", btc.Base)
	assert.Equal(t, "USD", btc.Quote)
	assert.True(t, btc.Active)
	assert.Equal(t, core.MarketTypeSpot, btc.MarketType)
}

func TestAdapter_GetTicker(t *testing.T) {
	a := newTestAdapter(t)
	connect(t, a)

	ticker, err := a.GetTicker(t.Context(), "BTC/USD")
	require.NoError(t, err)

	assert.Equal(t, "BTC/USD", ticker.Symbol)
	assert.Zero(t, ticker.Last.Cmp(dec(t, "50000")))
	// The spread brackets the last price: bid below, ask above.
	assert.Negative(t, ticker.Bid.Cmp(&ticker.Last))
	assert.Positive(t, ticker.Ask.Cmp(&ticker.Last))

	_, err = a.GetTicker(t.Context(), "DOGE/USD")
	assert.True(t, core.IsInvalidSymbolError(err))
}

func TestAdapter_GetOrderBook(t *testing.T) {
	a := newTestAdapter(t)
	connect(t, a)

	book, err := a.GetOrderBook(t.Context(), "BTC/USD", exchange.WithDepth(5))
	require.NoError(t, err)

	require.Len(t, book.Bids, 5)
	require.Len(t, book.Asks, 5)
	// Bids descend away from the touch, asks ascend.
	assert.Positive(t, book.Bids[0].Price.Cmp(&book.Bids[1].Price))
	assert.Negative(t, book.Asks[0].Price.Cmp(&book.Asks[1].Price))
	assert.Negative(t, book.Bids[0].Price.Cmp(&book.Asks[0].Price))
}

func TestAdapter_GetKlines(t *testing.T) {
	a := newTestAdapter(t)
	connect(t, a)

	klines, err := a.GetKlines(t.Context(), "BTC/USD", core.Timeframe1h, exchange.WithLimit(24))
	require.NoError(t, err)
	require.Len(t, klines, 24)

	// Oldest first, contiguous, and the newest candle closes at the live
	// price.
	for i := 1; i < len(klines); i++ {
		assert.Equal(t, klines[i-1].CloseTime, klines[i].OpenTime)
		assert.Zero(t, klines[i].Open.Cmp(&klines[i-1].Close))
	}
	assert.Zero(t, klines[23].Close.Cmp(dec(t, "50000")))
}

func TestAdapter_MarketOrderFillsAndSettles(t *testing.T) {
	a := newTestAdapter(t)
	connect(t, a)

	req := &exchange.OrderRequest{
		Symbol: "BTC/USD",
		Side:   core.SideBuy,
		Type:   core.TypeMarket,
	}
	_, _, err := req.Quantity.SetString("0.01")
	require.NoError(t, err)

	order, err := a.PlaceOrder(t.Context(), req)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, order.Status)
	assert.NotEmpty(t, order.ID)

	filled := waitForStatus(t, a, order.ID, core.StatusFilled)
	assert.Zero(t, filled.FilledQuantity.Cmp(dec(t, "0.01")))
	assert.Zero(t, filled.RemainingQty.Cmp(dec(t, "0")))

	balances, err := a.GetBalances(t.Context())
	require.NoError(t, err)
	byCurrency := make(map[string]core.Balance, len(balances))
	for _, b := range balances {
		byCurrency[b.Currency] = b
	}

	btc := byCurrency["BTC"]
	assert.Zero(t, btc.Free.Cmp(dec(t, "0.01")))

	// Cost is the ask plus bounded slippage, so between 500 and 502 USD, and
	// nothing stays held after the fill.
	usd := byCurrency["USD"]
	assert.Zero(t, usd.Used.Cmp(dec(t, "0")))
	assert.Negative(t, usd.Total.Cmp(dec(t, "99500.01")))
	assert.Positive(t, usd.Total.Cmp(dec(t, "99498")))
}

func TestAdapter_LimitOrderPartialThenComplete(t *testing.T) {
	a := newTestAdapter(t)
	connect(t, a)

	sub := a.Events().Subscribe(events.KindOrderUpdate)
	defer sub.Unsubscribe()

	req := &exchange.OrderRequest{
		Symbol:      "ETH/USD",
		Side:        core.SideBuy,
		Type:        core.TypeLimit,
		TimeInForce: core.GTC,
	}
	_, _, err := req.Price.SetString("2990")
	require.NoError(t, err)
	_, _, err = req.Quantity.SetString("2")
	require.NoError(t, err)

	order, err := a.PlaceOrder(t.Context(), req)
	require.NoError(t, err)

	var seen []core.OrderStatus
	deadline := time.After(2 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != core.StatusFilled {
		select {
		case ev := <-sub.C():
			require.NotNil(t, ev.Order)
			if ev.Order.ID != order.ID {
				continue
			}
			seen = append(seen, ev.Order.Status)
			if ev.Order.Status == core.StatusPartiallyFilled {
				// The first fill lands between 30 and 70 percent.
				assert.GreaterOrEqual(t, ev.Order.FilledQuantity.Cmp(dec(t, "0.6")), 0)
				assert.LessOrEqual(t, ev.Order.FilledQuantity.Cmp(dec(t, "1.4")), 0)
			}
		case <-deadline:
			t.Fatalf("order never filled, statuses seen: %v", seen)
		}
	}
	assert.Equal(t, []core.OrderStatus{core.StatusPending, core.StatusPartiallyFilled, core.StatusFilled}, seen)

	// Limit fills execute at the limit price, so the ledger lands on exact
	// numbers: 2 ETH bought for 5980 USD with nothing left on hold.
	balances, err := a.GetBalances(t.Context())
	require.NoError(t, err)
	byCurrency := make(map[string]core.Balance, len(balances))
	for _, b := range balances {
		byCurrency[b.Currency] = b
	}
	eth := byCurrency["ETH"]
	usd := byCurrency["USD"]
	assert.Zero(t, eth.Free.Cmp(dec(t, "2")))
	assert.Zero(t, usd.Total.Cmp(dec(t, "94020")))
	assert.Zero(t, usd.Used.Cmp(dec(t, "0")))
}

func TestAdapter_CancelReleasesReservation(t *testing.T) {
	a := newTestAdapter(t, WithFillDelays(time.Hour, time.Hour))
	connect(t, a)

	req := &exchange.OrderRequest{
		Symbol: "ETH/USD",
		Side:   core.SideBuy,
		Type:   core.TypeLimit,
	}
	_, _, err := req.Price.SetString("3000")
	require.NoError(t, err)
	_, _, err = req.Quantity.SetString("1")
	require.NoError(t, err)

	order, err := a.PlaceOrder(t.Context(), req)
	require.NoError(t, err)

	assertBalance(t, a.engine.Ledger(), "USD", "97000", "3000", "100000")

	canceled, err := a.CancelOrder(t.Context(), &exchange.CancelRequest{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCanceled, canceled.Status)
	assertBalance(t, a.engine.Ledger(), "USD", "100000", "0", "100000")

	// Terminal orders cannot be canceled twice.
	_, err = a.CancelOrder(t.Context(), &exchange.CancelRequest{OrderID: order.ID})
	require.Error(t, err)
	assert.True(t, core.IsOrderError(err))
	assert.Contains(t, err.Error(), "already")

	history, err := a.GetOrderHistory(t.Context(), "ETH/USD")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, order.ID, history[0].ID)
}

func TestAdapter_PlaceOrderValidation(t *testing.T) {
	a := newTestAdapter(t)
	connect(t, a)

	// Zero quantity.
	_, err := a.PlaceOrder(t.Context(), &exchange.OrderRequest{
		Symbol: "BTC/USD",
		Side:   core.SideBuy,
		Type:   core.TypeMarket,
	})
	require.Error(t, err)
	assert.True(t, core.IsOrderError(err))

	// Limit without a price.
	limit := &exchange.OrderRequest{Symbol: "BTC/USD", Side: core.SideBuy, Type: core.TypeLimit}
	_, _, _ = limit.Quantity.SetString("1")
	_, err = a.PlaceOrder(t.Context(), limit)
	require.Error(t, err)
	assert.True(t, core.IsOrderError(err))

	// Order types beyond market and limit are not simulated.
	stop := &exchange.OrderRequest{Symbol: "BTC/USD", Side: core.SideSell, Type: core.TypeStopLossLimit}
	_, _, _ = stop.Quantity.SetString("1")
	_, _, _ = stop.Price.SetString("49000")
	_, err = a.PlaceOrder(t.Context(), stop)
	require.Error(t, err)
	assert.True(t, core.IsOrderError(err))
}

func TestAdapter_PlaceOrderInsufficientFunds(t *testing.T) {
	a := newTestAdapter(t)
	connect(t, a)

	req := &exchange.OrderRequest{
		Symbol: "BTC/USD",
		Side:   core.SideBuy,
		Type:   core.TypeLimit,
	}
	_, _, _ = req.Price.SetString("50000")
	_, _, _ = req.Quantity.SetString("100")

	_, err := a.PlaceOrder(t.Context(), req)
	require.Error(t, err)
	assert.True(t, core.IsInsufficientFundsError(err))
	// A failed reservation holds nothing.
	assertBalance(t, a.engine.Ledger(), "USD", "100000", "0", "100000")
}

func TestAdapter_SellReservesBase(t *testing.T) {
	a := newTestAdapter(t, WithBalance("BTC", "1"), WithFillDelays(time.Hour, time.Hour))
	connect(t, a)

	req := &exchange.OrderRequest{
		Symbol: "BTC/USD",
		Side:   core.SideSell,
		Type:   core.TypeLimit,
	}
	_, _, _ = req.Price.SetString("51000")
	_, _, _ = req.Quantity.SetString("0.4")

	_, err := a.PlaceOrder(t.Context(), req)
	require.NoError(t, err)
	assertBalance(t, a.engine.Ledger(), "BTC", "0.6", "0.4", "1")
}

func TestAdapter_SubscribeMarketData(t *testing.T) {
	a := newTestAdapter(t, WithTickInterval(5*time.Millisecond))
	connect(t, a)

	assert.ErrorIs(t, a.SubscribeMarketData(t.Context(), "funding", "BTC/USD"), core.ErrUnsupported)
	assert.True(t, core.IsInvalidSymbolError(a.SubscribeMarketData(t.Context(), "ticker", "DOGE/USD")))

	sub := a.Events().Subscribe(events.KindMarketUpdate)
	defer sub.Unsubscribe()
	require.NoError(t, a.SubscribeMarketData(t.Context(), "ticker", "BTC/USD"))

	select {
	case ev := <-sub.C():
		require.NotNil(t, ev.Market)
		assert.Equal(t, "ticker", ev.Market.Channel)
		assert.Equal(t, "BTC/USD", ev.Market.Symbol)
		_, ok := ev.Market.Data.(*core.Ticker)
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("no market update published")
	}

	require.NoError(t, a.UnsubscribeMarketData(t.Context(), "ticker", "BTC/USD"))
}

func TestAdapter_FailureInjection(t *testing.T) {
	a := newTestAdapter(t, WithFailureRate(FailRateLimit, 1))
	connect(t, a)

	_, err := a.GetTicker(t.Context(), "BTC/USD")
	require.Error(t, err)
	assert.True(t, core.IsRateLimitError(err))

	var ve *core.VenueError
	require.ErrorAs(t, err, &ve)
	assert.Positive(t, ve.RetryAfter)
}

func TestAdapter_AuthFailureInjection(t *testing.T) {
	config := core.DefaultConfig("mock").
		WithCredentials(&core.Credentials{APIKey: "k", SecretKey: "s"})
	a, err := New(config, WithSeed(1), WithTickInterval(time.Hour), WithFailureRate(FailAuth, 1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	connect(t, a)

	assert.True(t, core.IsAuthenticationError(a.ValidateCredentials(t.Context())))
	_, err = a.GetBalances(t.Context())
	assert.True(t, core.IsAuthenticationError(err))
}

func TestAdapter_DeterministicUnderSeed(t *testing.T) {
	run := func() *core.Ticker {
		a, err := New(nil, WithSeed(99), WithMarket("BTC/USD", "50000"), WithTickInterval(time.Hour))
		require.NoError(t, err)
		defer a.Close()
		require.NoError(t, a.Connect(t.Context()))
		ticker, err := a.GetTicker(t.Context(), "BTC/USD")
		require.NoError(t, err)
		return ticker
	}

	first := run()
	second := run()
	assert.Zero(t, first.Bid.Cmp(&second.Bid))
	assert.Zero(t, first.Ask.Cmp(&second.Ask))
	assert.Zero(t, first.Volume.Cmp(&second.Volume))
}

func TestAdapter_StopCancelsPendingFills(t *testing.T) {
	a := newTestAdapter(t, WithFillDelays(50*time.Millisecond, 50*time.Millisecond))
	connect(t, a)

	req := &exchange.OrderRequest{
		Symbol: "BTC/USD",
		Side:   core.SideBuy,
		Type:   core.TypeMarket,
	}
	_, _, _ = req.Quantity.SetString("0.01")
	order, err := a.PlaceOrder(t.Context(), req)
	require.NoError(t, err)

	// Disconnect before the fill timer elapses; the order must stay pending.
	require.NoError(t, a.Disconnect())
	time.Sleep(80 * time.Millisecond)

	snapshot, err := a.engine.Order(order.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, snapshot.Status)
}
