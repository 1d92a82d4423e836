package gemini

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"lintas/pkg/core"
)

// gmTicker is the /v2/ticker response. All prices are strings.
type gmTicker struct {
	Symbol string `json:"symbol"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Bid    string `json:"bid"`
	Ask    string `json:"ask"`
}

// gmBookEntry is one price level in /v1/book.
type gmBookEntry struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// gmBook is the /v1/book response.
type gmBook struct {
	Bids []gmBookEntry `json:"bids"`
	Asks []gmBookEntry `json:"asks"`
}

// gmTrade is one entry in /v1/trades.
type gmTrade struct {
	TimestampMS int64  `json:"timestampms"`
	TID         int64  `json:"tid"`
	Price       string `json:"price"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
}

// gmBalance is one entry in /v1/balances. The venue reports total (amount)
// and available; the held portion is the difference.
type gmBalance struct {
	Type      string `json:"type"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	Available string `json:"available"`
}

// gmOrder is the order status shape shared by order/new, order/cancel,
// order/status, orders, and orders/history. Lifecycle is expressed through
// is_live / is_cancelled plus the executed and remaining amounts.
type gmOrder struct {
	OrderID           string   `json:"order_id"`
	ClientOrderID     string   `json:"client_order_id"`
	Symbol            string   `json:"symbol"`
	Side              string   `json:"side"`
	Type              string   `json:"type"`
	TimestampMS       int64    `json:"timestampms"`
	IsLive            bool     `json:"is_live"`
	IsCancelled       bool     `json:"is_cancelled"`
	Options           []string `json:"options"`
	Price             string   `json:"price"`
	OriginalAmount    string   `json:"original_amount"`
	ExecutedAmount    string   `json:"executed_amount"`
	RemainingAmount   string   `json:"remaining_amount"`
	AvgExecutionPrice string   `json:"avg_execution_price"`
}

// decimalCtx bounds division results. Addition, subtraction, and
// multiplication stay exact under BaseContext.
var decimalCtx = apd.Context{
	Precision:   34,
	MaxExponent: apd.MaxExponent,
	MinExponent: apd.MinExponent,
	Rounding:    apd.RoundHalfUp,
}

// Normalizer converts Gemini wire structures to canonical core types.
// All methods are pure.
type Normalizer struct{}

// NewNormalizer creates a new Normalizer instance.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeInstruments converts the /v1/symbols list to canonical
// Instruments. Gemini reports concatenated lowercase symbols ("btcusd"); the
// base/quote split relies on the quote-priority suffix heuristic.
func (n *Normalizer) NormalizeInstruments(symbols []string) []core.Instrument {
	out := make([]core.Instrument, 0, len(symbols))
	for _, raw := range symbols {
		inst := core.Instrument{
			VenueSymbol: raw,
			Active:      true,
			MarketType:  core.MarketTypeSpot,
		}
		if base, quote, ok := core.SplitConcatenated(strings.ToUpper(raw)); ok {
			inst.Symbol = core.MakeSymbol(base, quote)
			inst.Base = base
			inst.Quote = quote
		} else {
			inst.Symbol = strings.ToUpper(raw)
		}
		out = append(out, inst)
	}
	return out
}

// NormalizeTicker converts a /v2/ticker response to a canonical Ticker.
// The 24h change percentage is derived from open and close.
func (n *Normalizer) NormalizeTicker(data *gmTicker) (*core.Ticker, error) {
	ticker := &core.Ticker{
		Symbol:    parseSymbol(data.Symbol),
		Timestamp: time.Now(),
	}
	var open apd.Decimal
	for _, field := range []struct {
		name string
		dst  *apd.Decimal
		raw  string
	}{
		{"bid", &ticker.Bid, data.Bid},
		{"ask", &ticker.Ask, data.Ask},
		{"close", &ticker.Last, data.Close},
		{"high", &ticker.High, data.High},
		{"low", &ticker.Low, data.Low},
		{"open", &open, data.Open},
	} {
		if err := parseDecimal(field.dst, field.raw); err != nil {
			return nil, fmt.Errorf("ticker %s: %w", field.name, err)
		}
	}

	if !open.IsZero() && !ticker.Last.IsZero() {
		var diff, ratio, hundred apd.Decimal
		hundred.SetInt64(100)
		_, _ = apd.BaseContext.Sub(&diff, &ticker.Last, &open)
		_, _ = decimalCtx.Quo(&ratio, &diff, &open)
		_, _ = apd.BaseContext.Mul(&ticker.ChangePercent, &ratio, &hundred)
	}
	return ticker, nil
}

// NormalizeOrderBook converts a /v1/book response to a canonical OrderBook.
func (n *Normalizer) NormalizeOrderBook(data *gmBook, symbol string) (*core.OrderBook, error) {
	bids, err := normalizeLevels(data.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := normalizeLevels(data.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	return &core.OrderBook{
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now(),
	}, nil
}

func normalizeLevels(entries []gmBookEntry) ([]core.OrderBookLevel, error) {
	levels := make([]core.OrderBookLevel, 0, len(entries))
	for _, entry := range entries {
		var level core.OrderBookLevel
		if err := parseDecimal(&level.Price, entry.Price); err != nil {
			return nil, fmt.Errorf("level price: %w", err)
		}
		if err := parseDecimal(&level.Quantity, entry.Amount); err != nil {
			return nil, fmt.Errorf("level quantity: %w", err)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// NormalizeTrades converts /v1/trades entries to canonical Trades.
func (n *Normalizer) NormalizeTrades(data []gmTrade, symbol string) ([]core.Trade, error) {
	trades := make([]core.Trade, 0, len(data))
	for _, raw := range data {
		trade := core.Trade{
			ID:        fmt.Sprintf("%d", raw.TID),
			Symbol:    symbol,
			Side:      parseSide(raw.Type),
			Timestamp: time.UnixMilli(raw.TimestampMS),
		}
		if err := parseDecimal(&trade.Price, raw.Price); err != nil {
			return nil, fmt.Errorf("trade %d price: %w", raw.TID, err)
		}
		if err := parseDecimal(&trade.Quantity, raw.Amount); err != nil {
			return nil, fmt.Errorf("trade %d amount: %w", raw.TID, err)
		}
		_, _ = apd.BaseContext.Mul(&trade.Cost, &trade.Price, &trade.Quantity)
		trades = append(trades, trade)
	}
	return trades, nil
}

// NormalizeKlines converts /v2/candles rows to canonical Klines. Rows are
// [time_ms, open, high, low, close, volume] arrays, newest first; output is
// oldest first.
func (n *Normalizer) NormalizeKlines(rows [][]json.Number, symbol string, tf core.Timeframe) []core.Kline {
	klines := make([]core.Kline, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if len(row) < 6 {
			continue
		}
		ts, err := row[0].Int64()
		if err != nil {
			continue
		}
		kline := core.Kline{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  time.UnixMilli(ts),
			CloseTime: time.UnixMilli(ts).Add(tf.Duration()),
		}
		setNumber(&kline.Open, row[1])
		setNumber(&kline.High, row[2])
		setNumber(&kline.Low, row[3])
		setNumber(&kline.Close, row[4])
		setNumber(&kline.Volume, row[5])
		klines = append(klines, kline)
	}
	return klines
}

// NormalizeBalances converts /v1/balances entries to canonical Balances with
// used derived as amount - available.
func (n *Normalizer) NormalizeBalances(data []gmBalance) ([]core.Balance, error) {
	now := time.Now()
	balances := make([]core.Balance, 0, len(data))
	for _, raw := range data {
		balance := core.Balance{
			Currency:  strings.ToUpper(raw.Currency),
			Timestamp: now,
		}
		if err := parseDecimal(&balance.Total, raw.Amount); err != nil {
			return nil, fmt.Errorf("balance %s amount: %w", raw.Currency, err)
		}
		if err := parseDecimal(&balance.Free, raw.Available); err != nil {
			return nil, fmt.Errorf("balance %s available: %w", raw.Currency, err)
		}
		_, _ = apd.BaseContext.Sub(&balance.Used, &balance.Total, &balance.Free)
		balances = append(balances, balance)
	}
	return balances, nil
}

// NormalizeOrder converts an order status payload to a canonical Order.
func (n *Normalizer) NormalizeOrder(data *gmOrder) (*core.Order, error) {
	order := &core.Order{
		ID:            data.OrderID,
		ClientOrderID: data.ClientOrderID,
		Symbol:        parseSymbol(data.Symbol),
		Side:          parseSide(data.Side),
		Type:          parseOrderType(data.Type),
		TimeInForce:   parseTimeInForce(data.Options),
		CreatedAt:     time.UnixMilli(data.TimestampMS),
		UpdatedAt:     time.UnixMilli(data.TimestampMS),
	}

	for _, field := range []struct {
		name string
		dst  *apd.Decimal
		raw  string
	}{
		{"price", &order.Price, data.Price},
		{"original_amount", &order.Quantity, data.OriginalAmount},
		{"executed_amount", &order.FilledQuantity, data.ExecutedAmount},
		{"remaining_amount", &order.RemainingQty, data.RemainingAmount},
	} {
		if err := parseDecimal(field.dst, field.raw); err != nil {
			return nil, fmt.Errorf("order %s %s: %w", data.OrderID, field.name, err)
		}
	}

	order.Status = parseStatus(data)

	if order.RemainingQty.IsZero() && !order.Quantity.IsZero() {
		var remaining apd.Decimal
		if _, err := apd.BaseContext.Sub(&remaining, &order.Quantity, &order.FilledQuantity); err != nil {
			return nil, fmt.Errorf("calculate remaining: %w", err)
		}
		order.RemainingQty = remaining
	}
	return order, nil
}

// NormalizeOrders converts a list of order payloads to canonical Orders.
func (n *Normalizer) NormalizeOrders(data []gmOrder) ([]core.Order, error) {
	orders := make([]core.Order, 0, len(data))
	for i := range data {
		order, err := n.NormalizeOrder(&data[i])
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, nil
}

// parseStatus derives the canonical status from the is_live / is_cancelled
// flags and execution amounts.
func parseStatus(data *gmOrder) core.OrderStatus {
	executed := data.ExecutedAmount != "" && data.ExecutedAmount != "0"
	switch {
	case data.IsCancelled:
		return core.StatusCanceled
	case data.IsLive && executed:
		return core.StatusPartiallyFilled
	case data.IsLive:
		return core.StatusOpen
	case executed && (data.RemainingAmount == "" || data.RemainingAmount == "0"):
		return core.StatusFilled
	case executed:
		return core.StatusPartiallyFilled
	default:
		return core.StatusCanceled
	}
}

// formatSymbol converts canonical "BTC/USD" to venue "btcusd".
func formatSymbol(symbol string) string {
	return strings.ToLower(strings.ReplaceAll(symbol, "/", ""))
}

// parseSymbol converts venue "btcusd" to canonical "BTC/USD" using the
// quote-priority suffix heuristic. Symbols that do not match any known quote
// currency are returned upper-cased as-is.
func parseSymbol(venueSymbol string) string {
	if venueSymbol == "" {
		return ""
	}
	upper := strings.ToUpper(venueSymbol)
	if base, quote, ok := core.SplitConcatenated(upper); ok {
		return core.MakeSymbol(base, quote)
	}
	return upper
}

var timeframeToVenue = map[core.Timeframe]string{
	core.Timeframe1m:  "1m",
	core.Timeframe5m:  "5m",
	core.Timeframe15m: "15m",
	core.Timeframe30m: "30m",
	core.Timeframe1h:  "1hr",
	core.Timeframe6h:  "6hr",
	core.Timeframe1d:  "1day",
}

func formatTimeframe(canonical string) (string, bool) {
	tf, ok := core.ParseTimeframe(canonical)
	if !ok {
		return "", false
	}
	venue, ok := timeframeToVenue[tf]
	return venue, ok
}

func parseSide(side string) core.OrderSide {
	if strings.EqualFold(side, "sell") {
		return core.SideSell
	}
	return core.SideBuy
}

func parseOrderType(venueType string) core.OrderType {
	switch venueType {
	case "exchange stop limit", "stop limit":
		return core.TypeStopLossLimit
	default:
		return core.TypeLimit
	}
}

func parseTimeInForce(options []string) core.TimeInForce {
	for _, opt := range options {
		switch opt {
		case "immediate-or-cancel":
			return core.IOC
		case "fill-or-kill":
			return core.FOK
		}
	}
	return core.GTC
}

// parseDecimal loads a string-typed venue field. Strings that do not parse
// as decimals are an error; an empty string leaves dst zero.
func parseDecimal(dst *apd.Decimal, s string) error {
	if s == "" {
		return nil
	}
	if _, _, err := dst.SetString(s); err != nil {
		return fmt.Errorf("invalid decimal %q", s)
	}
	return nil
}

// setNumber loads a json.Number field. The decoder has already validated the
// numeric syntax, so the conversion cannot fail.
func setNumber(dst *apd.Decimal, n json.Number) {
	if n == "" {
		return
	}
	_, _, _ = dst.SetString(n.String())
}

func timeNow() time.Time {
	return time.Now()
}
