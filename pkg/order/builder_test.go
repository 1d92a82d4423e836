package order

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lintas/pkg/core"
)

func TestBuilder_LimitOrder(t *testing.T) {
	req, err := NewBuilder("BTC/USDT").
		Buy().
		Limit().
		Price("50000").
		Quantity("0.001").
		GTC().
		ClientOrderID("my-order").
		Build()
	require.NoError(t, err)

	assert.Equal(t, "BTC/USDT", req.Symbol)
	assert.Equal(t, core.SideBuy, req.Side)
	assert.Equal(t, core.TypeLimit, req.Type)
	assert.Equal(t, "50000", req.Price.String())
	assert.Equal(t, "0.001", req.Quantity.String())
	assert.Equal(t, core.GTC, req.TimeInForce)
	assert.Equal(t, "my-order", req.ClientOrderID)
	assert.False(t, req.PostOnly)
}

func TestBuilder_MarketOrder(t *testing.T) {
	req, err := NewBuilder("ETH/USDT").
		Sell().
		Market().
		Quantity("2").
		Build()
	require.NoError(t, err)

	assert.Equal(t, core.SideSell, req.Side)
	assert.Equal(t, core.TypeMarket, req.Type)
	assert.True(t, req.Price.IsZero())
}

func TestBuilder_StopLimitOrder(t *testing.T) {
	req, err := NewBuilder("BTC/USDT").
		Sell().
		StopLimit().
		Price("49000").
		StopPrice("49500").
		Quantity("0.5").
		IOC().
		PostOnly().
		Build()
	require.NoError(t, err)

	assert.Equal(t, core.TypeStopLossLimit, req.Type)
	assert.Equal(t, "49500", req.StopPrice.String())
	assert.Equal(t, core.IOC, req.TimeInForce)
	assert.True(t, req.PostOnly)
}

func TestBuilder_DecimalSetters(t *testing.T) {
	price := apd.New(3000, 0)
	qty := apd.New(15, -1)

	req, err := NewBuilder("ETH/USDT").
		Buy().
		Limit().
		PriceDecimal(*price).
		QuantityDecimal(*qty).
		Build()
	require.NoError(t, err)

	assert.Zero(t, req.Price.Cmp(price))
	assert.Zero(t, req.Quantity.Cmp(qty))
}

func TestBuilder_ParseErrorStopsChain(t *testing.T) {
	_, err := NewBuilder("BTC/USDT").
		Buy().
		Limit().
		Price("not-a-number").
		Quantity("0.001").
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse price")
}

func TestBuilder_Validation(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		wantErr string
	}{
		{
			"missing symbol",
			NewBuilder("").Buy().Market().Quantity("1"),
			"symbol is required",
		},
		{
			"missing quantity",
			NewBuilder("BTC/USDT").Buy().Market(),
			"quantity must be positive",
		},
		{
			"negative quantity",
			NewBuilder("BTC/USDT").Buy().Market().Quantity("-1"),
			"quantity must be positive",
		},
		{
			"limit without price",
			NewBuilder("BTC/USDT").Buy().Limit().Quantity("1"),
			"price must be positive",
		},
		{
			"stop limit without trigger",
			NewBuilder("BTC/USDT").Sell().StopLimit().Price("49000").Quantity("1"),
			"stop price must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuilder_BuildFor(t *testing.T) {
	instrument := &core.Instrument{
		Symbol: "BTC/USDT",
		Active: true,
	}
	_, _, _ = instrument.MinQuantity.SetString("0.001")
	_, _, _ = instrument.MaxQuantity.SetString("10")

	_, err := NewBuilder("BTC/USDT").Buy().Market().Quantity("0.01").BuildFor(instrument)
	assert.NoError(t, err)

	_, err = NewBuilder("BTC/USDT").Buy().Market().Quantity("0.0001").BuildFor(instrument)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below instrument minimum")

	_, err = NewBuilder("BTC/USDT").Buy().Market().Quantity("50").BuildFor(instrument)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "above instrument maximum")

	_, err = NewBuilder("ETH/USDT").Buy().Market().Quantity("1").BuildFor(instrument)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")

	inactive := &core.Instrument{Symbol: "BTC/USDT"}
	_, err = NewBuilder("BTC/USDT").Buy().Market().Quantity("1").BuildFor(inactive)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not tradable")
}
