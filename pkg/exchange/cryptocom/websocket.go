package cryptocom

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"lintas/internal/ws"
	"lintas/pkg/core"
	"lintas/pkg/exchange"
)

const (
	marketStreamURL        = "wss://stream.crypto.com/v2/market"
	userStreamURL          = "wss://stream.crypto.com/v2/user"
	sandboxMarketStreamURL = "wss://uat-stream.3ona.co/v2/market"
	sandboxUserStreamURL   = "wss://uat-stream.3ona.co/v2/user"
)

// Stream manages the Crypto.com websocket connections: one market data
// stream and, when credentials are configured, one authenticated user
// stream. The venue pushes {"method":"public/heartbeat"} frames that must be
// answered with public/respond-heartbeat carrying the same id, or the venue
// drops the connection.
type Stream struct {
	base       *exchange.Base
	normalizer *Normalizer
	logger     zerolog.Logger

	market *ws.Client
	user   *ws.Client
	reqID  atomic.Int64
	authed atomic.Bool
}

// wsRequest is the outbound frame shape shared by subscribe and auth.
type wsRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	APIKey string         `json:"api_key,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	Nonce  int64          `json:"nonce,omitempty"`
	Sig    string         `json:"sig,omitempty"`
}

// wsFrame is the inbound frame shape.
type wsFrame struct {
	ID     int64    `json:"id"`
	Method string   `json:"method"`
	Code   int      `json:"code"`
	Result wsResult `json:"result"`
}

type wsResult struct {
	Channel        string          `json:"channel"`
	InstrumentName string          `json:"instrument_name"`
	Subscription   string          `json:"subscription"`
	Interval       string          `json:"interval"`
	Depth          int             `json:"depth"`
	Data           json.RawMessage `json:"data"`
}

// NewStream creates the stream manager for the given adapter base.
func NewStream(base *exchange.Base, logger zerolog.Logger) *Stream {
	s := &Stream{
		base:       base,
		normalizer: NewNormalizer(),
		logger:     logger,
	}
	s.reqID.Store(1)
	return s
}

func (s *Stream) urls() (market, user string) {
	if s.base.Config().Sandbox {
		return sandboxMarketStreamURL, sandboxUserStreamURL
	}
	return marketStreamURL, userStreamURL
}

// Connect establishes the market stream and, when credentials are present,
// the authenticated user stream.
func (s *Stream) Connect(ctx context.Context) error {
	marketURL, userURL := s.urls()

	s.market = ws.NewClient(ws.Config{
		URL:              marketURL,
		ReconnectEnabled: true,
	})
	s.market.SetLogger(s.logger)
	s.market.OnConnected = s.base.PublishConnected
	s.market.OnDisconnected = func(err error) {
		s.base.PublishDisconnected()
	}
	if err := s.market.Subscribe("demux", s.handleMarketFrame(s.market)); err != nil {
		return err
	}
	if err := s.market.Connect(ctx); err != nil {
		return fmt.Errorf("connect market stream: %w", err)
	}

	if !s.base.HasCredentials() {
		return nil
	}

	s.user = ws.NewClient(ws.Config{
		URL:              userURL,
		ReconnectEnabled: true,
	})
	s.user.SetLogger(s.logger)
	s.user.OnConnected = func() {
		if err := s.authenticate(); err != nil {
			s.logger.Error().Err(err).Msg("user stream auth failed")
			s.base.PublishError(core.KindAuthentication, err.Error())
		}
	}
	s.user.OnDisconnected = func(err error) {
		s.authed.Store(false)
		if s.base.CompareAndSwapState(exchange.StateAuthenticated, exchange.StateConnected) {
			s.base.PublishDisconnected()
		}
	}
	if err := s.user.Subscribe("demux", s.handleUserFrame(s.user)); err != nil {
		return err
	}
	if err := s.user.Connect(ctx); err != nil {
		return fmt.Errorf("connect user stream: %w", err)
	}
	return nil
}

// authenticate signs in on the user stream. The signature recipe is the same
// as REST with method public/auth and empty params.
func (s *Stream) authenticate() error {
	creds, err := s.base.Credentials()
	if err != nil {
		return err
	}

	id := s.reqID.Add(1)
	nonce := s.base.NextNonce()
	return s.user.SendJSON(&wsRequest{
		ID:     id,
		Method: "public/auth",
		APIKey: creds.APIKey,
		Nonce:  nonce,
		Sig:    Sign("public/auth", id, creds.APIKey, nil, nonce, creds.SecretKey),
	})
}

// SubscribeMarket registers a market data channel for one symbol.
// Registering an already-active topic is a no-op.
func (s *Stream) SubscribeMarket(channel, symbol string, timeframe core.Timeframe) error {
	topic, err := s.topicFor(channel, symbol, timeframe)
	if err != nil {
		return err
	}
	return s.market.RegisterTopic(topic, s.subscribePayload(topic))
}

// UnsubscribeMarket removes a market data channel for one symbol.
func (s *Stream) UnsubscribeMarket(channel, symbol string, timeframe core.Timeframe) error {
	topic, err := s.topicFor(channel, symbol, timeframe)
	if err != nil {
		return err
	}
	return s.market.UnregisterTopic(topic, &wsRequest{
		ID:     s.reqID.Add(1),
		Method: "unsubscribe",
		Params: map[string]any{"channels": []string{topic}},
		Nonce:  time.Now().UnixMilli(),
	})
}

// SubscribeOrders registers the authenticated order update channel.
func (s *Stream) SubscribeOrders() error {
	if s.user == nil {
		return core.ErrNoCredentials
	}
	return s.user.RegisterTopic("user.order", s.subscribePayload("user.order"))
}

// UnsubscribeOrders removes the order update channel.
func (s *Stream) UnsubscribeOrders() error {
	if s.user == nil {
		return core.ErrNoCredentials
	}
	return s.user.UnregisterTopic("user.order", &wsRequest{
		ID:     s.reqID.Add(1),
		Method: "unsubscribe",
		Params: map[string]any{"channels": []string{"user.order"}},
		Nonce:  time.Now().UnixMilli(),
	})
}

func (s *Stream) subscribePayload(topic string) *wsRequest {
	return &wsRequest{
		ID:     s.reqID.Add(1),
		Method: "subscribe",
		Params: map[string]any{"channels": []string{topic}},
		Nonce:  time.Now().UnixMilli(),
	}
}

func (s *Stream) topicFor(channel, symbol string, timeframe core.Timeframe) (string, error) {
	instrument := formatSymbol(symbol)
	switch channel {
	case "ticker":
		return "ticker." + instrument, nil
	case "book":
		return "book." + instrument + ".10", nil
	case "trade":
		return "trade." + instrument, nil
	case "candle":
		venueTF, ok := timeframeToVenue[timeframe]
		if !ok {
			return "", fmt.Errorf("unsupported timeframe: %s", timeframe)
		}
		return "candlestick." + venueTF + "." + instrument, nil
	default:
		return "", fmt.Errorf("unknown market channel: %s", channel)
	}
}

// Authenticated reports whether the user stream has signed in.
func (s *Stream) Authenticated() bool {
	return s.authed.Load()
}

// Close shuts both streams down.
func (s *Stream) Close() error {
	var firstErr error
	if s.market != nil {
		firstErr = s.market.Close()
	}
	if s.user != nil {
		if err := s.user.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.authed.Store(false)
	return firstErr
}

func (s *Stream) handleMarketFrame(client *ws.Client) func([]byte) error {
	return func(data []byte) error {
		var frame wsFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}

		if frame.Method == "public/heartbeat" {
			return client.SendJSON(&wsRequest{ID: frame.ID, Method: "public/respond-heartbeat"})
		}
		if frame.Code != 0 {
			s.base.PublishError(mapErrorCode(frame.Code),
				fmt.Sprintf("stream error code %d", frame.Code))
			return nil
		}
		if frame.Result.Channel == "" {
			return nil
		}
		return s.dispatchMarket(&frame.Result)
	}
}

func (s *Stream) handleUserFrame(client *ws.Client) func([]byte) error {
	return func(data []byte) error {
		var frame wsFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			return fmt.Errorf("decode frame: %w", err)
		}

		switch {
		case frame.Method == "public/heartbeat":
			return client.SendJSON(&wsRequest{ID: frame.ID, Method: "public/respond-heartbeat"})

		case frame.Method == "public/auth":
			if frame.Code != 0 {
				s.base.PublishError(core.KindAuthentication,
					fmt.Sprintf("auth rejected with code %d", frame.Code))
				return nil
			}
			s.authed.Store(true)
			s.base.CompareAndSwapState(exchange.StateConnected, exchange.StateAuthenticated)
			return nil

		case frame.Code != 0:
			s.base.PublishError(mapErrorCode(frame.Code),
				fmt.Sprintf("stream error code %d", frame.Code))
			return nil

		case frame.Result.Channel == "user.order":
			var orders []ccOrder
			if err := sonic.Unmarshal(frame.Result.Data, &orders); err != nil {
				return fmt.Errorf("decode order update: %w", err)
			}
			for i := range orders {
				order, err := s.normalizer.NormalizeOrder(&orders[i])
				if err != nil {
					return err
				}
				s.base.PublishOrder(order)
			}
		}
		return nil
	}
}

func (s *Stream) dispatchMarket(result *wsResult) error {
	symbol := parseSymbol(result.InstrumentName)

	switch result.Channel {
	case "ticker":
		var ticks []ccTicker
		if err := sonic.Unmarshal(result.Data, &ticks); err != nil {
			return fmt.Errorf("decode ticker: %w", err)
		}
		for i := range ticks {
			s.base.PublishMarket("ticker", symbol, s.normalizer.NormalizeTicker(&ticks[i]))
		}

	case "book":
		var books []ccBook
		if err := sonic.Unmarshal(result.Data, &books); err != nil {
			return fmt.Errorf("decode book: %w", err)
		}
		for i := range books {
			s.base.PublishMarket("book", symbol,
				s.normalizer.NormalizeOrderBook(&books[i], result.InstrumentName))
		}

	case "trade":
		var trades []ccTrade
		if err := sonic.Unmarshal(result.Data, &trades); err != nil {
			return fmt.Errorf("decode trade: %w", err)
		}
		for _, trade := range s.normalizer.NormalizeTrades(trades) {
			t := trade
			s.base.PublishMarket("trade", symbol, &t)
		}

	case "candlestick":
		var klines []ccKline
		if err := sonic.Unmarshal(result.Data, &klines); err != nil {
			return fmt.Errorf("decode candlestick: %w", err)
		}
		for _, kline := range s.normalizer.NormalizeKlines(klines, result.InstrumentName, result.Interval) {
			k := kline
			s.base.PublishMarket("candle", symbol, &k)
		}

	default:
		s.logger.Debug().Str("channel", result.Channel).Msg("unhandled stream channel")
	}
	return nil
}
