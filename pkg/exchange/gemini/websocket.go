package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/apd/v3"
	"github.com/rs/zerolog"

	"lintas/internal/ws"
	"lintas/pkg/core"
	"lintas/pkg/exchange"
)

const (
	marketStreamURL        = "wss://api.gemini.com/v2/marketdata"
	orderEventsURL         = "wss://api.gemini.com/v1/order/events"
	sandboxMarketStreamURL = "wss://api.sandbox.gemini.com/v2/marketdata"
	sandboxOrderEventsURL  = "wss://api.sandbox.gemini.com/v1/order/events"
)

// Stream manages the Gemini websocket connections. Market data uses the v2
// endpoint with explicit subscribe frames; order events use the v1 endpoint,
// which authenticates through the signed payload headers at connect time and
// needs no subscribe message. The venue pushes heartbeat frames that require
// no reply.
//
// The v2 l2 channel delivers diffs, so the stream maintains a book per
// symbol and publishes full snapshots.
type Stream struct {
	base       *exchange.Base
	normalizer *Normalizer
	logger     zerolog.Logger

	market *ws.Client
	orders *ws.Client

	mu    sync.Mutex
	books map[string]*bookState
}

// bookState accumulates l2 diffs into a current book for one symbol.
// Levels are keyed by the venue price string and hold parsed decimals, so
// snapshots never re-parse and malformed diffs never enter the book.
type bookState struct {
	bids map[string]bookLevel
	asks map[string]bookLevel
}

type bookLevel struct {
	price    apd.Decimal
	quantity apd.Decimal
}

// marketRequest is the outbound v2 subscribe/unsubscribe frame.
type marketRequest struct {
	Type          string             `json:"type"`
	Subscriptions []subscriptionSpec `json:"subscriptions"`
}

type subscriptionSpec struct {
	Name    string   `json:"name"`
	Symbols []string `json:"symbols"`
}

// l2Frame is an l2_updates message: diffs as [side, price, quantity]
// string triples.
type l2Frame struct {
	Symbol  string      `json:"symbol"`
	Changes [][3]string `json:"changes"`
}

// tradeFrame is a v2 trade message.
type tradeFrame struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Qty    string `json:"quantity"`
	Side   string `json:"side"`
	TimeMS int64  `json:"timestamp"`
}

// candleFrame is a candles_<tf>_updates message: rows in the same
// [time, open, high, low, close, volume] shape as the REST endpoint.
type candleFrame struct {
	Symbol  string          `json:"symbol"`
	Changes [][]json.Number `json:"changes"`
}

// orderEvent is one entry on the order events stream.
type orderEvent struct {
	Type string `json:"type"`
	gmOrder
}

// NewStream creates the stream manager for the given adapter base.
func NewStream(base *exchange.Base, logger zerolog.Logger) *Stream {
	return &Stream{
		base:       base,
		normalizer: NewNormalizer(),
		logger:     logger,
		books:      make(map[string]*bookState),
	}
}

func (s *Stream) urls() (market, orders string) {
	if s.base.Config().Sandbox {
		return sandboxMarketStreamURL, sandboxOrderEventsURL
	}
	return marketStreamURL, orderEventsURL
}

// Connect establishes the market data stream.
func (s *Stream) Connect(ctx context.Context) error {
	marketURL, _ := s.urls()

	s.market = ws.NewClient(ws.Config{
		URL:              marketURL,
		ReconnectEnabled: true,
	})
	s.market.SetLogger(s.logger)
	s.market.OnConnected = func() {
		s.mu.Lock()
		s.books = make(map[string]*bookState)
		s.mu.Unlock()
		s.base.PublishConnected()
	}
	s.market.OnDisconnected = func(err error) {
		s.base.PublishDisconnected()
	}
	if err := s.market.Subscribe("demux", s.handleMarketFrame); err != nil {
		return err
	}
	if err := s.market.Connect(ctx); err != nil {
		return fmt.Errorf("connect market stream: %w", err)
	}
	return nil
}

// SubscribeMarket registers a market data channel for one symbol.
// Registering an already-active topic is a no-op.
func (s *Stream) SubscribeMarket(channel, symbol string, timeframe core.Timeframe) error {
	name, err := s.subscriptionName(channel, timeframe)
	if err != nil {
		return err
	}
	venueSymbol := formatSymbol(symbol)
	topic := name + "." + venueSymbol
	return s.market.RegisterTopic(topic, &marketRequest{
		Type:          "subscribe",
		Subscriptions: []subscriptionSpec{{Name: name, Symbols: []string{venueSymbol}}},
	})
}

// UnsubscribeMarket removes a market data channel for one symbol.
func (s *Stream) UnsubscribeMarket(channel, symbol string, timeframe core.Timeframe) error {
	name, err := s.subscriptionName(channel, timeframe)
	if err != nil {
		return err
	}
	venueSymbol := formatSymbol(symbol)
	topic := name + "." + venueSymbol
	return s.market.UnregisterTopic(topic, &marketRequest{
		Type:          "unsubscribe",
		Subscriptions: []subscriptionSpec{{Name: name, Symbols: []string{venueSymbol}}},
	})
}

func (s *Stream) subscriptionName(channel string, timeframe core.Timeframe) (string, error) {
	switch channel {
	case "book", "trade":
		// Both arrive on the l2 feed.
		return "l2", nil
	case "candle":
		venueTF, ok := timeframeToVenue[timeframe]
		if !ok {
			return "", fmt.Errorf("timeframe %s not offered by venue: %w", timeframe, core.ErrUnsupported)
		}
		return "candles_" + venueTF, nil
	case "ticker":
		return "", fmt.Errorf("ticker streaming not offered by venue: %w", core.ErrUnsupported)
	default:
		return "", fmt.Errorf("unknown market channel: %s", channel)
	}
}

// SubscribeOrders connects the authenticated order events stream. The
// subscription is implicit in the connection; reconnects re-authenticate
// with fresh headers.
func (s *Stream) SubscribeOrders(ctx context.Context) error {
	if s.orders != nil && s.orders.IsConnected() {
		return nil
	}

	creds, err := s.base.Credentials()
	if err != nil {
		return err
	}

	_, ordersURL := s.urls()
	encoded, err := EncodePayload("/v1/order/events", s.base.NextNonce(), nil)
	if err != nil {
		return fmt.Errorf("encode auth payload: %w", err)
	}

	headers := http.Header{}
	headers.Set("X-GEMINI-APIKEY", creds.APIKey)
	headers.Set("X-GEMINI-PAYLOAD", encoded)
	headers.Set("X-GEMINI-SIGNATURE", Sign(encoded, creds.SecretKey))

	s.orders = ws.NewClient(ws.Config{
		URL:     ordersURL,
		Headers: headers,
	})
	s.orders.SetLogger(s.logger)
	s.orders.OnConnected = func() {
		s.base.CompareAndSwapState(exchange.StateConnected, exchange.StateAuthenticated)
	}
	s.orders.OnDisconnected = func(err error) {
		s.base.CompareAndSwapState(exchange.StateAuthenticated, exchange.StateConnected)
	}
	if err := s.orders.Subscribe("demux", s.handleOrderFrame); err != nil {
		return err
	}
	if err := s.orders.Connect(ctx); err != nil {
		return fmt.Errorf("connect order events: %w", err)
	}
	return nil
}

// UnsubscribeOrders closes the order events stream.
func (s *Stream) UnsubscribeOrders() error {
	if s.orders == nil {
		return nil
	}
	err := s.orders.Close()
	s.orders = nil
	s.base.CompareAndSwapState(exchange.StateAuthenticated, exchange.StateConnected)
	return err
}

// Close shuts both streams down.
func (s *Stream) Close() error {
	var firstErr error
	if s.market != nil {
		firstErr = s.market.Close()
	}
	if s.orders != nil {
		if err := s.orders.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Stream) handleMarketFrame(data []byte) error {
	var header struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(data, &header); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}

	switch {
	case header.Type == "heartbeat":
		return nil

	case header.Type == "l2_updates":
		var frame l2Frame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("decode l2 update: %w", err)
		}
		symbol := parseSymbol(frame.Symbol)
		book, err := s.applyBookChanges(frame.Symbol, frame.Changes)
		if err != nil {
			return fmt.Errorf("apply l2 update: %w", err)
		}
		s.base.PublishMarket("book", symbol, book)

	case header.Type == "trade":
		var frame tradeFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("decode trade: %w", err)
		}
		symbol := parseSymbol(frame.Symbol)
		trade := &core.Trade{
			Symbol:    symbol,
			Side:      parseSide(frame.Side),
			Timestamp: time.UnixMilli(frame.TimeMS),
		}
		if err := parseDecimal(&trade.Price, frame.Price); err != nil {
			return fmt.Errorf("trade price: %w", err)
		}
		if err := parseDecimal(&trade.Quantity, frame.Qty); err != nil {
			return fmt.Errorf("trade quantity: %w", err)
		}
		s.base.PublishMarket("trade", symbol, trade)

	case strings.HasPrefix(header.Type, "candles_"):
		tf, ok := parseCandleType(header.Type)
		if !ok {
			return nil
		}
		var frame candleFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("decode candles: %w", err)
		}
		symbol := parseSymbol(frame.Symbol)
		for _, kline := range s.normalizer.NormalizeKlines(frame.Changes, symbol, tf) {
			k := kline
			s.base.PublishMarket("candle", symbol, &k)
		}
	}
	return nil
}

// parseCandleType extracts the timeframe from a "candles_<tf>_updates" type.
func parseCandleType(frameType string) (core.Timeframe, bool) {
	venueTF := strings.TrimSuffix(strings.TrimPrefix(frameType, "candles_"), "_updates")
	for tf, v := range timeframeToVenue {
		if v == venueTF {
			return tf, true
		}
	}
	return core.Timeframe1m, false
}

// applyBookChanges folds an l2 diff into the tracked book and returns the
// resulting snapshot. A malformed level fails the whole diff before any of
// it is applied.
func (s *Stream) applyBookChanges(venueSymbol string, changes [][3]string) (*core.OrderBook, error) {
	parsed := make([]bookLevel, len(changes))
	for i, change := range changes {
		if err := parseDecimal(&parsed[i].price, change[1]); err != nil {
			return nil, fmt.Errorf("level price: %w", err)
		}
		if err := parseDecimal(&parsed[i].quantity, change[2]); err != nil {
			return nil, fmt.Errorf("level quantity: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.books[venueSymbol]
	if !ok {
		state = &bookState{bids: make(map[string]bookLevel), asks: make(map[string]bookLevel)}
		s.books[venueSymbol] = state
	}

	for i, change := range changes {
		side, price := change[0], change[1]
		levels := state.bids
		if side == "sell" {
			levels = state.asks
		}
		if parsed[i].quantity.IsZero() {
			delete(levels, price)
		} else {
			levels[price] = parsed[i]
		}
	}
	return state.snapshot(parseSymbol(venueSymbol)), nil
}

func (b *bookState) snapshot(symbol string) *core.OrderBook {
	book := &core.OrderBook{
		Symbol:    symbol,
		Bids:      levelsFromMap(b.bids, true),
		Asks:      levelsFromMap(b.asks, false),
		Timestamp: timeNow(),
	}
	return book
}

func levelsFromMap(m map[string]bookLevel, descending bool) []core.OrderBookLevel {
	levels := make([]core.OrderBookLevel, 0, len(m))
	for _, entry := range m {
		levels = append(levels, core.OrderBookLevel{Price: entry.price, Quantity: entry.quantity})
	}
	sort.Slice(levels, func(i, j int) bool {
		cmp := levels[i].Price.Cmp(&levels[j].Price)
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
	return levels
}

func (s *Stream) handleOrderFrame(data []byte) error {
	// Order events arrive either as control objects or as event arrays.
	if len(data) > 0 && data[0] == '[' {
		var eventList []orderEvent
		if err := sonic.Unmarshal(data, &eventList); err != nil {
			return fmt.Errorf("decode order events: %w", err)
		}
		for i := range eventList {
			s.publishOrderEvent(&eventList[i])
		}
		return nil
	}

	var control struct {
		Type string `json:"type"`
	}
	if err := sonic.Unmarshal(data, &control); err != nil {
		return fmt.Errorf("decode control frame: %w", err)
	}
	switch control.Type {
	case "subscription_ack", "heartbeat":
		return nil
	default:
		s.logger.Debug().Str("type", control.Type).Msg("unhandled order event frame")
		return nil
	}
}

func (s *Stream) publishOrderEvent(ev *orderEvent) {
	order, err := s.normalizer.NormalizeOrder(&ev.gmOrder)
	if err != nil {
		s.base.PublishError(core.KindExchange, err.Error())
		return
	}
	if ev.Type == "rejected" {
		order.Status = core.StatusRejected
	}
	s.base.PublishOrder(order)
}
