// Package order provides a fluent builder for order requests with
// validation, including optional validation against instrument limits.
package order

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"lintas/pkg/core"
	"lintas/pkg/exchange"
)

// Builder provides a fluent interface for constructing order requests.
// It accumulates validation errors and reports them on Build.
//
// Example:
//
//	req, err := order.NewBuilder("BTC/USDT").
//	    Buy().
//	    Limit().
//	    Price("50000").
//	    Quantity("0.001").
//	    Build()
type Builder struct {
	req *exchange.OrderRequest
	err error
}

// NewBuilder creates a new builder for the given trading symbol.
func NewBuilder(symbol string) *Builder {
	return &Builder{
		req: &exchange.OrderRequest{
			Symbol: symbol,
		},
	}
}

// Side sets the order side (buy or sell).
func (b *Builder) Side(side core.OrderSide) *Builder {
	if b.err != nil {
		return b
	}
	b.req.Side = side
	return b
}

// Buy sets the order side to buy.
func (b *Builder) Buy() *Builder {
	return b.Side(core.SideBuy)
}

// Sell sets the order side to sell.
func (b *Builder) Sell() *Builder {
	return b.Side(core.SideSell)
}

// Type sets the order type (market, limit, etc.).
func (b *Builder) Type(orderType core.OrderType) *Builder {
	if b.err != nil {
		return b
	}
	b.req.Type = orderType
	return b
}

// Market sets the order type to market.
func (b *Builder) Market() *Builder {
	return b.Type(core.TypeMarket)
}

// Limit sets the order type to limit.
func (b *Builder) Limit() *Builder {
	return b.Type(core.TypeLimit)
}

// StopLimit sets the order type to stop loss limit.
func (b *Builder) StopLimit() *Builder {
	return b.Type(core.TypeStopLossLimit)
}

// Price sets the limit price from a string representation.
func (b *Builder) Price(price string) *Builder {
	if b.err != nil {
		return b
	}
	_, _, err := b.req.Price.SetString(price)
	if err != nil {
		b.err = fmt.Errorf("parse price: %w", err)
	}
	return b
}

// PriceDecimal sets the limit price from an apd.Decimal value.
func (b *Builder) PriceDecimal(price apd.Decimal) *Builder {
	if b.err != nil {
		return b
	}
	b.req.Price.Set(&price)
	return b
}

// StopPrice sets the trigger price from a string representation.
func (b *Builder) StopPrice(price string) *Builder {
	if b.err != nil {
		return b
	}
	_, _, err := b.req.StopPrice.SetString(price)
	if err != nil {
		b.err = fmt.Errorf("parse stop price: %w", err)
	}
	return b
}

// Quantity sets the order quantity from a string representation.
func (b *Builder) Quantity(qty string) *Builder {
	if b.err != nil {
		return b
	}
	_, _, err := b.req.Quantity.SetString(qty)
	if err != nil {
		b.err = fmt.Errorf("parse quantity: %w", err)
	}
	return b
}

// QuantityDecimal sets the order quantity from an apd.Decimal value.
func (b *Builder) QuantityDecimal(qty apd.Decimal) *Builder {
	if b.err != nil {
		return b
	}
	b.req.Quantity.Set(&qty)
	return b
}

// TimeInForce sets the time-in-force policy for the order.
func (b *Builder) TimeInForce(tif core.TimeInForce) *Builder {
	if b.err != nil {
		return b
	}
	b.req.TimeInForce = tif
	return b
}

// GTC sets the time-in-force to Good-Till-Canceled.
func (b *Builder) GTC() *Builder {
	return b.TimeInForce(core.GTC)
}

// IOC sets the time-in-force to Immediate-Or-Cancel.
func (b *Builder) IOC() *Builder {
	return b.TimeInForce(core.IOC)
}

// FOK sets the time-in-force to Fill-Or-Kill.
func (b *Builder) FOK() *Builder {
	return b.TimeInForce(core.FOK)
}

// PostOnly marks the order as maker-only.
func (b *Builder) PostOnly() *Builder {
	if b.err != nil {
		return b
	}
	b.req.PostOnly = true
	return b
}

// ClientOrderID sets a client-assigned identifier for order tracking.
func (b *Builder) ClientOrderID(id string) *Builder {
	if b.err != nil {
		return b
	}
	b.req.ClientOrderID = id
	return b
}

// Build validates and returns the constructed order request.
// Returns an error if any required fields are missing or invalid.
func (b *Builder) Build() (*exchange.OrderRequest, error) {
	if b.err != nil {
		return nil, b.err
	}

	if err := validateRequest(b.req); err != nil {
		return nil, err
	}

	return b.req, nil
}

// BuildFor validates the request against the instrument's size limits in
// addition to the structural checks.
func (b *Builder) BuildFor(instrument *core.Instrument) (*exchange.OrderRequest, error) {
	req, err := b.Build()
	if err != nil {
		return nil, err
	}

	if instrument.Symbol != "" && instrument.Symbol != req.Symbol {
		return nil, fmt.Errorf("instrument %s does not match order symbol %s", instrument.Symbol, req.Symbol)
	}
	if !instrument.Active {
		return nil, fmt.Errorf("instrument %s is not tradable", instrument.Symbol)
	}
	if !instrument.MinQuantity.IsZero() && req.Quantity.Cmp(&instrument.MinQuantity) < 0 {
		return nil, fmt.Errorf("quantity %s below instrument minimum %s",
			req.Quantity.String(), instrument.MinQuantity.String())
	}
	if !instrument.MaxQuantity.IsZero() && req.Quantity.Cmp(&instrument.MaxQuantity) > 0 {
		return nil, fmt.Errorf("quantity %s above instrument maximum %s",
			req.Quantity.String(), instrument.MaxQuantity.String())
	}

	return req, nil
}

func validateRequest(req *exchange.OrderRequest) error {
	if req.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}

	if req.Quantity.IsZero() || req.Quantity.Negative {
		return fmt.Errorf("quantity must be positive")
	}

	if req.Type == core.TypeLimit || req.Type == core.TypeStopLossLimit || req.Type == core.TypeTakeProfitLimit {
		if req.Price.IsZero() || req.Price.Negative {
			return fmt.Errorf("price must be positive for limit orders")
		}
	}

	if req.Type == core.TypeStopLoss || req.Type == core.TypeStopLossLimit ||
		req.Type == core.TypeTakeProfit || req.Type == core.TypeTakeProfitLimit {
		if req.StopPrice.IsZero() || req.StopPrice.Negative {
			return fmt.Errorf("stop price must be positive for trigger orders")
		}
	}

	if req.Side != core.SideBuy && req.Side != core.SideSell {
		return fmt.Errorf("invalid order side")
	}

	if req.Type < core.TypeMarket || req.Type > core.TypeTakeProfitLimit {
		return fmt.Errorf("invalid order type")
	}

	return nil
}
