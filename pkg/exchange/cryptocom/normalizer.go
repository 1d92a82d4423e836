package cryptocom

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"lintas/pkg/core"
)

// ccInstrument is the raw instrument entry from public/get-instruments.
type ccInstrument struct {
	InstrumentName   string `json:"instrument_name"`
	QuoteCurrency    string `json:"quote_currency"`
	BaseCurrency     string `json:"base_currency"`
	PriceDecimals    int    `json:"price_decimals"`
	QuantityDecimals int    `json:"quantity_decimals"`
	MinQuantity      string `json:"min_quantity"`
	MaxQuantity      string `json:"max_quantity"`
}

// ccTicker is the raw ticker payload. The venue uses single-letter keys:
// b best bid, k best ask, a last trade, h/l 24h range, v volume, c change.
type ccTicker struct {
	Instrument string      `json:"i"`
	Bid        json.Number `json:"b"`
	Ask        json.Number `json:"k"`
	Last       json.Number `json:"a"`
	High       json.Number `json:"h"`
	Low        json.Number `json:"l"`
	Volume     json.Number `json:"v"`
	Change     json.Number `json:"c"`
	Timestamp  int64       `json:"t"`
}

// ccBook is one order book snapshot from public/get-book. Levels are
// [price, quantity, order count] triples.
type ccBook struct {
	Bids      [][]json.Number `json:"bids"`
	Asks      [][]json.Number `json:"asks"`
	Timestamp int64           `json:"t"`
}

// ccTrade is one public trade.
type ccTrade struct {
	ID         json.Number `json:"d"`
	Instrument string      `json:"i"`
	Side       string      `json:"s"`
	Price      json.Number `json:"p"`
	Quantity   json.Number `json:"q"`
	Timestamp  int64       `json:"t"`
}

// ccKline is one candlestick from public/get-candlestick.
type ccKline struct {
	Timestamp int64       `json:"t"`
	Open      json.Number `json:"o"`
	High      json.Number `json:"h"`
	Low       json.Number `json:"l"`
	Close     json.Number `json:"c"`
	Volume    json.Number `json:"v"`
}

// ccAccount is one currency row in private/get-account-summary.
type ccAccount struct {
	Currency  string      `json:"currency"`
	Balance   json.Number `json:"balance"`
	Available json.Number `json:"available"`
	Order     json.Number `json:"order"`
	Stake     json.Number `json:"stake"`
}

// ccAccountSummary is the private/get-account-summary result.
type ccAccountSummary struct {
	Accounts []ccAccount `json:"accounts"`
}

// ccOrder is the order_info payload shared by order detail and order lists.
type ccOrder struct {
	OrderID            string      `json:"order_id"`
	ClientOID          string      `json:"client_oid"`
	InstrumentName     string      `json:"instrument_name"`
	Status             string      `json:"status"`
	Side               string      `json:"side"`
	Type               string      `json:"type"`
	Price              json.Number `json:"price"`
	Quantity           json.Number `json:"quantity"`
	CumulativeQuantity json.Number `json:"cumulative_quantity"`
	CumulativeValue    json.Number `json:"cumulative_value"`
	AvgPrice           json.Number `json:"avg_price"`
	FeeCurrency        string      `json:"fee_currency"`
	TimeInForce        string      `json:"time_in_force"`
	CreateTime         int64       `json:"create_time"`
	UpdateTime         int64       `json:"update_time"`
}

// Normalizer converts Crypto.com wire structures to canonical core types.
// All methods are pure.
type Normalizer struct{}

// NewNormalizer creates a new Normalizer instance.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeInstruments converts raw instrument entries to canonical Instruments.
func (n *Normalizer) NormalizeInstruments(data []ccInstrument) ([]core.Instrument, error) {
	out := make([]core.Instrument, 0, len(data))
	for _, raw := range data {
		inst := core.Instrument{
			VenueSymbol:     raw.InstrumentName,
			Symbol:          core.MakeSymbol(raw.BaseCurrency, raw.QuoteCurrency),
			Base:            raw.BaseCurrency,
			Quote:           raw.QuoteCurrency,
			Active:          true,
			MarketType:      core.MarketTypeSpot,
			PricePrecision:  raw.PriceDecimals,
			AmountPrecision: raw.QuantityDecimals,
		}
		if err := parseDecimal(&inst.MinQuantity, raw.MinQuantity); err != nil {
			return nil, fmt.Errorf("instrument %s min_quantity: %w", raw.InstrumentName, err)
		}
		if err := parseDecimal(&inst.MaxQuantity, raw.MaxQuantity); err != nil {
			return nil, fmt.Errorf("instrument %s max_quantity: %w", raw.InstrumentName, err)
		}
		out = append(out, inst)
	}
	return out, nil
}

// NormalizeTicker converts a raw ticker to a canonical Ticker.
func (n *Normalizer) NormalizeTicker(data *ccTicker) *core.Ticker {
	ticker := &core.Ticker{
		Symbol:    parseSymbol(data.Instrument),
		Timestamp: time.UnixMilli(data.Timestamp),
	}
	setNumber(&ticker.Bid, data.Bid)
	setNumber(&ticker.Ask, data.Ask)
	setNumber(&ticker.Last, data.Last)
	setNumber(&ticker.High, data.High)
	setNumber(&ticker.Low, data.Low)
	setNumber(&ticker.Volume, data.Volume)
	setNumber(&ticker.ChangePercent, data.Change)
	return ticker
}

// NormalizeOrderBook converts a raw book snapshot to a canonical OrderBook.
func (n *Normalizer) NormalizeOrderBook(data *ccBook, instrument string) *core.OrderBook {
	book := &core.OrderBook{
		Symbol:    parseSymbol(instrument),
		Bids:      normalizeLevels(data.Bids),
		Asks:      normalizeLevels(data.Asks),
		Timestamp: time.UnixMilli(data.Timestamp),
	}
	return book
}

func normalizeLevels(raw [][]json.Number) []core.OrderBookLevel {
	levels := make([]core.OrderBookLevel, 0, len(raw))
	for _, row := range raw {
		if len(row) < 2 {
			continue
		}
		var level core.OrderBookLevel
		setNumber(&level.Price, row[0])
		setNumber(&level.Quantity, row[1])
		if len(row) > 2 {
			if count, err := row[2].Int64(); err == nil {
				level.OrderCount = int(count)
			}
		}
		levels = append(levels, level)
	}
	return levels
}

// NormalizeTrades converts raw public trades to canonical Trades.
func (n *Normalizer) NormalizeTrades(data []ccTrade) []core.Trade {
	trades := make([]core.Trade, 0, len(data))
	for _, raw := range data {
		trade := core.Trade{
			ID:        raw.ID.String(),
			Symbol:    parseSymbol(raw.Instrument),
			Side:      parseSide(raw.Side),
			Timestamp: time.UnixMilli(raw.Timestamp),
		}
		setNumber(&trade.Price, raw.Price)
		setNumber(&trade.Quantity, raw.Quantity)
		mulDecimal(&trade.Cost, &trade.Price, &trade.Quantity)
		trades = append(trades, trade)
	}
	return trades
}

// NormalizeKlines converts raw candlesticks to canonical Klines.
func (n *Normalizer) NormalizeKlines(data []ccKline, instrument, interval string) []core.Kline {
	symbol := parseSymbol(instrument)
	tf, _ := parseTimeframe(interval)

	klines := make([]core.Kline, 0, len(data))
	for _, raw := range data {
		kline := core.Kline{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  time.UnixMilli(raw.Timestamp),
			CloseTime: time.UnixMilli(raw.Timestamp).Add(tf.Duration()),
		}
		setNumber(&kline.Open, raw.Open)
		setNumber(&kline.High, raw.High)
		setNumber(&kline.Low, raw.Low)
		setNumber(&kline.Close, raw.Close)
		setNumber(&kline.Volume, raw.Volume)
		klines = append(klines, kline)
	}
	return klines
}

// NormalizeBalances converts an account summary to canonical Balances.
// The venue reports balance/available/order/stake; used is order + stake so
// that free + used equals the reported total.
func (n *Normalizer) NormalizeBalances(data *ccAccountSummary) []core.Balance {
	now := time.Now()
	balances := make([]core.Balance, 0, len(data.Accounts))
	for _, acct := range data.Accounts {
		balance := core.Balance{
			Currency:  strings.ToUpper(acct.Currency),
			Timestamp: now,
		}
		setNumber(&balance.Free, acct.Available)
		setNumber(&balance.Total, acct.Balance)

		var order, stake apd.Decimal
		setNumber(&order, acct.Order)
		setNumber(&stake, acct.Stake)
		_, _ = apd.BaseContext.Add(&balance.Used, &order, &stake)
		balances = append(balances, balance)
	}
	return balances
}

// NormalizeAccountInfo converts an account summary to canonical AccountInfo.
func (n *Normalizer) NormalizeAccountInfo(data *ccAccountSummary) *core.AccountInfo {
	return &core.AccountInfo{
		Balances:  n.NormalizeBalances(data),
		CanTrade:  true,
		Timestamp: time.Now(),
	}
}

// NormalizeOrder converts a raw order_info payload to a canonical Order.
func (n *Normalizer) NormalizeOrder(data *ccOrder) (*core.Order, error) {
	order := &core.Order{
		ID:            data.OrderID,
		ClientOrderID: data.ClientOID,
		Symbol:        parseSymbol(data.InstrumentName),
		Side:          parseSide(data.Side),
		Type:          parseOrderType(data.Type),
		TimeInForce:   parseTimeInForce(data.TimeInForce),
		FeeCurrency:   data.FeeCurrency,
		CreatedAt:     time.UnixMilli(data.CreateTime),
		UpdatedAt:     time.UnixMilli(data.UpdateTime),
	}

	setNumber(&order.Price, data.Price)
	setNumber(&order.Quantity, data.Quantity)
	setNumber(&order.FilledQuantity, data.CumulativeQuantity)

	order.Status, order.VenueStatus = parseStatus(data.Status, !order.FilledQuantity.IsZero())

	var remaining apd.Decimal
	if _, err := apd.BaseContext.Sub(&remaining, &order.Quantity, &order.FilledQuantity); err != nil {
		return nil, fmt.Errorf("calculate remaining: %w", err)
	}
	order.RemainingQty = remaining

	return order, nil
}

// NormalizeOrders converts a list of raw orders to canonical Orders.
func (n *Normalizer) NormalizeOrders(data []ccOrder) ([]core.Order, error) {
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

// formatSymbol converts canonical "BTC/USDT" to venue "BTC_USDT".
func formatSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "_")
}

// parseSymbol converts venue "BTC_USDT" to canonical "BTC/USDT".
func parseSymbol(instrument string) string {
	base, quote, found := strings.Cut(instrument, "_")
	if !found {
		return instrument
	}
	return core.MakeSymbol(base, quote)
}

var timeframeToVenue = map[core.Timeframe]string{
	core.Timeframe1m:  "1m",
	core.Timeframe5m:  "5m",
	core.Timeframe15m: "15m",
	core.Timeframe30m: "30m",
	core.Timeframe1h:  "1h",
	core.Timeframe4h:  "4h",
	core.Timeframe6h:  "6h",
	core.Timeframe12h: "12h",
	core.Timeframe1d:  "1D",
	core.Timeframe1w:  "7D",
	core.Timeframe1M:  "1M",
}

func formatTimeframe(canonical string) (string, bool) {
	tf, ok := core.ParseTimeframe(canonical)
	if !ok {
		return "", false
	}
	venue, ok := timeframeToVenue[tf]
	return venue, ok
}

func parseTimeframe(venue string) (core.Timeframe, bool) {
	for tf, v := range timeframeToVenue {
		if v == venue {
			return tf, true
		}
	}
	return core.Timeframe1m, false
}

func parseSide(side string) core.OrderSide {
	if strings.EqualFold(side, "SELL") {
		return core.SideSell
	}
	return core.SideBuy
}

func formatOrderType(canonical string) string {
	switch strings.ToUpper(canonical) {
	case "STOP_LOSS_LIMIT":
		return "STOP_LIMIT"
	default:
		return strings.ToUpper(canonical)
	}
}

func parseOrderType(venueType string) core.OrderType {
	switch strings.ToUpper(venueType) {
	case "LIMIT":
		return core.TypeLimit
	case "STOP_LOSS":
		return core.TypeStopLoss
	case "STOP_LIMIT":
		return core.TypeStopLossLimit
	case "TAKE_PROFIT":
		return core.TypeTakeProfit
	case "TAKE_PROFIT_LIMIT":
		return core.TypeTakeProfitLimit
	default:
		return core.TypeMarket
	}
}

func formatTimeInForce(canonical string) string {
	switch strings.ToUpper(canonical) {
	case "IOC":
		return "IMMEDIATE_OR_CANCEL"
	case "FOK":
		return "FILL_OR_KILL"
	default:
		return "GOOD_TILL_CANCEL"
	}
}

func parseTimeInForce(venue string) core.TimeInForce {
	switch venue {
	case "IMMEDIATE_OR_CANCEL":
		return core.IOC
	case "FILL_OR_KILL":
		return core.FOK
	default:
		return core.GTC
	}
}

// parseStatus maps a venue order status to its canonical value. Statuses
// outside the documented set map to StatusUnknown with the lower-cased
// venue string preserved.
func parseStatus(venueStatus string, hasFills bool) (core.OrderStatus, string) {
	switch strings.ToUpper(venueStatus) {
	case "ACTIVE":
		if hasFills {
			return core.StatusPartiallyFilled, ""
		}
		return core.StatusOpen, ""
	case "FILLED":
		return core.StatusFilled, ""
	case "CANCELED":
		return core.StatusCanceled, ""
	case "REJECTED":
		return core.StatusRejected, ""
	case "EXPIRED":
		return core.StatusExpired, ""
	case "PENDING":
		return core.StatusPending, ""
	default:
		return core.StatusUnknown, strings.ToLower(venueStatus)
	}
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

func mulDecimal(dst, a, b *apd.Decimal) {
	_, _ = apd.BaseContext.Mul(dst, a, b)
}
