package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderSide_String(t *testing.T) {
	tests := []struct {
		name string
		side OrderSide
		want string
	}{
		{"buy", SideBuy, "BUY"},
		{"sell", SideSell, "SELL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.side.String())
		})
	}
}

func TestOrderStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		status   OrderStatus
		expected bool
	}{
		{"pending", StatusPending, false},
		{"open", StatusOpen, false},
		{"partially_filled", StatusPartiallyFilled, false},
		{"unknown", StatusUnknown, false},
		{"filled", StatusFilled, true},
		{"canceled", StatusCanceled, true},
		{"rejected", StatusRejected, true},
		{"expired", StatusExpired, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.status.IsTerminal())
		})
	}
}

func TestOrderStatus_UnmarshalJSON_UnknownStatus(t *testing.T) {
	var status OrderStatus
	err := status.UnmarshalJSON([]byte(`"TRIGGER_ACTIVATED"`))
	assert.NoError(t, err)
	assert.Equal(t, StatusUnknown, status)
}

func TestOrderType_RoundTrip(t *testing.T) {
	for orderType := TypeMarket; orderType <= TypeTakeProfitLimit; orderType++ {
		data, err := orderType.MarshalJSON()
		assert.NoError(t, err)

		var parsed OrderType
		assert.NoError(t, parsed.UnmarshalJSON(data))
		assert.Equal(t, orderType, parsed)
	}
}

func TestCapabilitySet(t *testing.T) {
	set := NewCapabilitySet(CapSpotTrading, CapCandles)

	assert.True(t, set.Has(CapSpotTrading))
	assert.True(t, set.Has(CapCandles))
	assert.False(t, set.Has(CapMarginTrading))
	assert.False(t, set.Has(CapStopOrders))

	assert.Equal(t, []Capability{CapSpotTrading, CapCandles}, set.List())
	assert.Equal(t, "spot_trading,candles", set.String())
}

func TestTimeframe_RoundTrip(t *testing.T) {
	for tf := Timeframe1m; tf <= Timeframe1M; tf++ {
		parsed, ok := ParseTimeframe(tf.String())
		assert.True(t, ok, tf.String())
		assert.Equal(t, tf, parsed)
	}

	_, ok := ParseTimeframe("2h")
	assert.False(t, ok)
}

func TestTimeframe_UnmarshalJSON(t *testing.T) {
	var kline Kline
	require.NoError(t, json.Unmarshal([]byte(`{"timeframe":"1h"}`), &kline))
	assert.Equal(t, Timeframe1h, kline.Timeframe)

	// Non-string and out-of-vocabulary tokens are rejected, not zeroed.
	assert.Error(t, json.Unmarshal([]byte(`{"timeframe":5}`), &Kline{}))
	assert.Error(t, json.Unmarshal([]byte(`{"timeframe":"2h"}`), &Kline{}))
	assert.Error(t, json.Unmarshal([]byte(`{"timeframe":""}`), &Kline{}))
}

func TestTimeframe_Duration(t *testing.T) {
	assert.Equal(t, "1m", Timeframe1m.String())
	assert.Equal(t, Timeframe1h.Duration(), 60*Timeframe1m.Duration())
	assert.Equal(t, Timeframe1d.Duration(), 24*Timeframe1h.Duration())
}
