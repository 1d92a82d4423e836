package cryptocom

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lintas/pkg/core"
)

func TestSymbolConversion(t *testing.T) {
	assert.Equal(t, "BTC_USDT", formatSymbol("BTC/USDT"))
	assert.Equal(t, "BTC/USDT", parseSymbol("BTC_USDT"))

	// Round trip is lossless for canonical symbols.
	for _, symbol := range []string{"BTC/USDT", "ETH/BTC", "CRO/USD"} {
		assert.Equal(t, symbol, parseSymbol(formatSymbol(symbol)))
	}

	// Unseparated venue strings pass through unchanged.
	assert.Equal(t, "BTCUSD", parseSymbol("BTCUSD"))
}

func TestTimeframeConversion(t *testing.T) {
	tests := []struct {
		canonical string
		venue     string
	}{
		{"1m", "1m"},
		{"1h", "1h"},
		{"1d", "1D"},
		{"1w", "7D"},
		{"1M", "1M"},
	}

	for _, tt := range tests {
		t.Run(tt.canonical, func(t *testing.T) {
			venue, ok := formatTimeframe(tt.canonical)
			require.True(t, ok)
			assert.Equal(t, tt.venue, venue)

			tf, ok := parseTimeframe(tt.venue)
			require.True(t, ok)
			assert.Equal(t, tt.canonical, tf.String())
		})
	}

	_, ok := formatTimeframe("3m")
	assert.False(t, ok)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name       string
		venue      string
		hasFills   bool
		wantStatus core.OrderStatus
		wantVenue  string
	}{
		{"active no fills", "ACTIVE", false, core.StatusOpen, ""},
		{"active with fills", "ACTIVE", true, core.StatusPartiallyFilled, ""},
		{"filled", "FILLED", false, core.StatusFilled, ""},
		{"canceled", "CANCELED", false, core.StatusCanceled, ""},
		{"rejected", "REJECTED", false, core.StatusRejected, ""},
		{"expired", "EXPIRED", false, core.StatusExpired, ""},
		{"pending", "PENDING", false, core.StatusPending, ""},
		{"unknown passthrough", "TRIGGER_ACTIVATED", false, core.StatusUnknown, "trigger_activated"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, venueStatus := parseStatus(tt.venue, tt.hasFills)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantVenue, venueStatus)
		})
	}
}

func TestNormalizeInstruments(t *testing.T) {
	n := NewNormalizer()
	instruments, err := n.NormalizeInstruments([]ccInstrument{
		{
			InstrumentName:   "BTC_USDT",
			BaseCurrency:     "BTC",
			QuoteCurrency:    "USDT",
			PriceDecimals:    2,
			QuantityDecimals: 6,
			MinQuantity:      "0.0001",
			MaxQuantity:      "100",
		},
	})
	require.NoError(t, err)
	require.Len(t, instruments, 1)

	assert.Equal(t, "BTC/USDT", instruments[0].Symbol)
	assert.Equal(t, "BTC_USDT", instruments[0].VenueSymbol)
	assert.Equal(t, "0.0001", instruments[0].MinQuantity.String())
	assert.Equal(t, "100", instruments[0].MaxQuantity.String())
}

func TestNormalizeInstruments_MalformedMinQuantity(t *testing.T) {
	n := NewNormalizer()

	// A garbage limit must fail the call rather than silently load a zero
	// minimum, which would disable the builder's minimum-quantity check.
	_, err := n.NormalizeInstruments([]ccInstrument{
		{
			InstrumentName: "BTC_USDT",
			BaseCurrency:   "BTC",
			QuoteCurrency:  "USDT",
			MinQuantity:    "abc",
			MaxQuantity:    "100",
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_quantity")
}

func TestNormalizeTicker(t *testing.T) {
	n := NewNormalizer()
	ticker := n.NormalizeTicker(&ccTicker{
		Instrument: "BTC_USDT",
		Bid:        json.Number("50000.5"),
		Ask:        json.Number("50001.5"),
		Last:       json.Number("50001"),
		High:       json.Number("51000"),
		Low:        json.Number("49000"),
		Volume:     json.Number("120.5"),
		Change:     json.Number("1.25"),
		Timestamp:  1700000000000,
	})

	assert.Equal(t, "BTC/USDT", ticker.Symbol)
	assert.Equal(t, "50000.5", ticker.Bid.String())
	assert.Equal(t, "50001.5", ticker.Ask.String())
	assert.Equal(t, "1.25", ticker.ChangePercent.String())
	assert.Equal(t, int64(1700000000000), ticker.Timestamp.UnixMilli())
}

func TestNormalizeOrderBook(t *testing.T) {
	n := NewNormalizer()
	book := n.NormalizeOrderBook(&ccBook{
		Bids: [][]json.Number{
			{"50000", "0.5", "3"},
			{"49999", "1.2", "1"},
		},
		Asks: [][]json.Number{
			{"50001", "0.4", "2"},
		},
		Timestamp: 1700000000000,
	}, "BTC_USDT")

	assert.Equal(t, "BTC/USDT", book.Symbol)
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 1)
	assert.Equal(t, "50000", book.Bids[0].Price.String())
	assert.Equal(t, 3, book.Bids[0].OrderCount)
	assert.Equal(t, "0.4", book.Asks[0].Quantity.String())
}

func TestNormalizeBalances_Invariant(t *testing.T) {
	n := NewNormalizer()
	balances := n.NormalizeBalances(&ccAccountSummary{
		Accounts: []ccAccount{
			{
				Currency:  "usdt",
				Balance:   json.Number("1000"),
				Available: json.Number("700"),
				Order:     json.Number("250"),
				Stake:     json.Number("50"),
			},
		},
	})

	require.Len(t, balances, 1)
	b := balances[0]
	assert.Equal(t, "USDT", b.Currency)
	assert.Equal(t, "700", b.Free.String())
	assert.Equal(t, "300", b.Used.String())
	assert.Equal(t, "1000", b.Total.String())
}

func TestNormalizeOrder(t *testing.T) {
	n := NewNormalizer()
	order, err := n.NormalizeOrder(&ccOrder{
		OrderID:            "367107623521528457",
		ClientOID:          "my-oid",
		InstrumentName:     "ETH_USDT",
		Status:             "ACTIVE",
		Side:               "BUY",
		Type:               "LIMIT",
		Price:              json.Number("3000"),
		Quantity:           json.Number("2"),
		CumulativeQuantity: json.Number("0.5"),
		TimeInForce:        "IMMEDIATE_OR_CANCEL",
		CreateTime:         1700000000000,
		UpdateTime:         1700000001000,
	})
	require.NoError(t, err)

	assert.Equal(t, "ETH/USDT", order.Symbol)
	assert.Equal(t, core.SideBuy, order.Side)
	assert.Equal(t, core.TypeLimit, order.Type)
	assert.Equal(t, core.IOC, order.TimeInForce)
	assert.Equal(t, core.StatusPartiallyFilled, order.Status)
	assert.Equal(t, "0.5", order.FilledQuantity.String())
	assert.Equal(t, "1.5", order.RemainingQty.String())
}

func TestOrderTypeMapping(t *testing.T) {
	assert.Equal(t, "STOP_LIMIT", formatOrderType("STOP_LOSS_LIMIT"))
	assert.Equal(t, "LIMIT", formatOrderType("limit"))
	assert.Equal(t, core.TypeStopLossLimit, parseOrderType("STOP_LIMIT"))
	assert.Equal(t, core.TypeMarket, parseOrderType("MARKET"))
}

func TestTimeInForceMapping(t *testing.T) {
	assert.Equal(t, "IMMEDIATE_OR_CANCEL", formatTimeInForce("IOC"))
	assert.Equal(t, "FILL_OR_KILL", formatTimeInForce("FOK"))
	assert.Equal(t, "GOOD_TILL_CANCEL", formatTimeInForce("GTC"))
	assert.Equal(t, core.IOC, parseTimeInForce("IMMEDIATE_OR_CANCEL"))
	assert.Equal(t, core.GTC, parseTimeInForce("GOOD_TILL_CANCEL"))
}
