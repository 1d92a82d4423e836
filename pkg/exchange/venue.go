package exchange

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"lintas/internal/circuitbreaker"
	httpclient "lintas/internal/http"
	"lintas/internal/ratelimit"
	"lintas/pkg/core"
	"lintas/pkg/events"
)

// AdapterState tracks the lifecycle of one adapter's connection. Connected
// and authenticated are independent: losing the private stream drops the
// adapter back to connected, losing the transport drops it to disconnected.
type AdapterState int32

// Adapter lifecycle states.
const (
	StateDisconnected AdapterState = iota
	StateConnecting
	StateConnected
	StateAuthenticated
)

// String returns the string representation of the adapter state.
func (s AdapterState) String() string {
	return [...]string{"disconnected", "connecting", "connected", "authenticated"}[s]
}

// Base carries the runtime every REST-backed venue adapter shares: the HTTP
// transport, per-class admission control, circuit breaker, event bus, the
// instrument map loaded on connect, and the connection state machine.
// Venue packages embed it and add their protocol, normalizer, and streams.
type Base struct {
	config   *core.Config
	protocol core.Protocol
	http     *httpclient.Client
	limits   *ratelimit.ClassLimiter
	breaker  *circuitbreaker.Breaker
	bus      *events.Bus
	logger   zerolog.Logger

	state       atomic.Int32
	nonce       atomic.Int64
	instruments atomic.Pointer[map[string]core.Instrument]
}

// NewBase constructs the shared runtime for a venue adapter. The protocol
// supplies the base URL; rate limits and the breaker come from the config.
func NewBase(config *core.Config, protocol core.Protocol, logger zerolog.Logger) (*Base, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	hc, err := httpclient.NewClient(&httpclient.Config{
		BaseURL: protocol.BaseURL(config.Sandbox),
		Timeout: config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create http client: %w", err)
	}
	hc.SetLogger(logger)

	limits := ratelimit.NewClassLimiter()
	for class, rl := range map[core.RequestClass]core.RateLimitConfig{
		core.ClassPublic:  config.PublicRateLimit,
		core.ClassPrivate: config.PrivateRateLimit,
		core.ClassOrder:   config.OrderRateLimit,
	} {
		if rl.Limit > 0 {
			limits.Set(class.String(), rl.Limit, rl.Window)
		}
	}

	var cb *circuitbreaker.Breaker
	if config.CircuitBreakerEnabled {
		cb = circuitbreaker.New(circuitbreaker.Config{
			FailThreshold:    config.CircuitBreakerFailThreshold,
			SuccessThreshold: config.CircuitBreakerSuccessThreshold,
			Timeout:          config.CircuitBreakerTimeout,
		})
	}

	b := &Base{
		config:   config,
		protocol: protocol,
		http:     hc,
		limits:   limits,
		breaker:  cb,
		bus:      events.NewBus(0),
		logger:   logger,
	}
	b.bus.SetLogger(logger)
	b.nonce.Store(time.Now().UnixMilli())

	empty := make(map[string]core.Instrument)
	b.instruments.Store(&empty)
	return b, nil
}

// Config returns the adapter configuration.
func (b *Base) Config() *core.Config {
	return b.config
}

// Bus returns the adapter's event bus.
func (b *Base) Bus() *events.Bus {
	return b.bus
}

// Logger returns the adapter's logger.
func (b *Base) Logger() zerolog.Logger {
	return b.logger
}

// State returns the current adapter lifecycle state.
func (b *Base) State() AdapterState {
	return AdapterState(b.state.Load())
}

// SetState stores the adapter lifecycle state.
func (b *Base) SetState(s AdapterState) {
	b.state.Store(int32(s))
}

// CompareAndSwapState transitions the state machine atomically.
func (b *Base) CompareAndSwapState(old, new AdapterState) bool {
	return b.state.CompareAndSwap(int32(old), int32(new))
}

// HasCredentials reports whether API credentials are configured.
func (b *Base) HasCredentials() bool {
	return b.config.Credentials != nil && b.config.Credentials.APIKey != ""
}

// Credentials returns the configured credentials, or ErrNoCredentials.
func (b *Base) Credentials() (core.Credentials, error) {
	if !b.HasCredentials() {
		return core.Credentials{}, core.ErrNoCredentials
	}
	return *b.config.Credentials, nil
}

// NextNonce returns a strictly increasing nonce. Wall-clock milliseconds are
// used when ahead of the counter so nonces stay close to venue server time.
func (b *Base) NextNonce() int64 {
	for {
		prev := b.nonce.Load()
		next := time.Now().UnixMilli()
		if next <= prev {
			next = prev + 1
		}
		if b.nonce.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// SetInstruments atomically replaces the instrument map. The map is keyed by
// canonical symbol and treated as immutable after the swap.
func (b *Base) SetInstruments(list []core.Instrument) {
	m := make(map[string]core.Instrument, len(list))
	for _, inst := range list {
		m[inst.Symbol] = inst
	}
	b.instruments.Store(&m)
}

// Instrument looks up a loaded instrument by canonical symbol.
func (b *Base) Instrument(symbol string) (core.Instrument, bool) {
	m := b.instruments.Load()
	inst, ok := (*m)[symbol]
	return inst, ok
}

// Instruments returns all loaded instruments.
func (b *Base) Instruments() []core.Instrument {
	m := b.instruments.Load()
	out := make([]core.Instrument, 0, len(*m))
	for _, inst := range *m {
		out = append(out, inst)
	}
	return out
}

// Execute runs one operation end to end: build the venue request, pass
// admission control, sign when required, perform the HTTP call, and parse
// the response into its canonical type. Every failure is a classified error.
func (b *Base) Execute(ctx context.Context, op core.Operation, params core.Params) (any, error) {
	req, err := b.protocol.BuildRequest(ctx, op, params)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := b.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	return b.protocol.ParseResponse(op, resp)
}

// Do performs a prepared request through admission control and the breaker.
func (b *Base) Do(ctx context.Context, req *core.Request) (*resty.Response, error) {
	venue := b.protocol.Name()

	if limiter := b.limits.Get(req.Class.String()); limiter != nil {
		if !limiter.Allow() {
			return nil, core.NewVenueError(venue, core.KindRateLimit, 0,
				fmt.Sprintf("%s request budget exhausted", req.Class)).
				WithCode(string(core.ErrCodeRateLimit)).
				WithRetryAfter(limiter.RetryAfter())
		}
	}

	if b.breaker != nil && !b.breaker.Allow() {
		return nil, core.NewVenueError(venue, core.KindConnection, 0, "circuit breaker open").
			WithCode(string(core.ErrCodeCircuitBreaker))
	}

	if req.RequireAuth {
		creds, err := b.Credentials()
		if err != nil {
			return nil, core.NewVenueError(venue, core.KindAuthentication, 0, err.Error()).
				WithCode(string(core.ErrCodeNoCredentials))
		}
		if err := b.protocol.SignRequest(req, creds, b.NextNonce()); err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
	}

	opts := make([]httpclient.RequestOption, 0, len(req.Headers)+len(req.Query))
	for k, v := range req.Headers {
		opts = append(opts, httpclient.WithHeader(k, v))
	}
	for k, v := range req.Query {
		opts = append(opts, httpclient.WithQueryParam(k, fmt.Sprint(v)))
	}

	var resp *resty.Response
	var err error
	switch req.Method {
	case http.MethodGet:
		resp, err = b.http.Get(ctx, req.Path, opts...)
	case http.MethodPost:
		resp, err = b.http.Post(ctx, req.Path, req.Body, opts...)
	case http.MethodDelete:
		resp, err = b.http.Delete(ctx, req.Path, opts...)
	default:
		return nil, fmt.Errorf("unsupported method: %s", req.Method)
	}

	if b.breaker != nil {
		b.breaker.Record(err == nil)
	}

	if err != nil {
		return nil, core.NewVenueError(venue, core.KindConnection, 0, err.Error()).
			WithCode(string(core.ErrCodeConnection))
	}
	return resp, nil
}

// PublishConnected emits a connected event on the bus.
func (b *Base) PublishConnected() {
	b.bus.Publish(events.Event{Kind: events.KindConnected, Venue: b.protocol.Name()})
}

// PublishDisconnected emits a disconnected event on the bus.
func (b *Base) PublishDisconnected() {
	b.bus.Publish(events.Event{Kind: events.KindDisconnected, Venue: b.protocol.Name()})
}

// PublishError emits an error event on the bus.
func (b *Base) PublishError(kind core.ErrorKind, message string) {
	b.bus.Publish(events.Event{
		Kind:  events.KindError,
		Venue: b.protocol.Name(),
		Error: &events.ErrorPayload{Kind: kind, Message: message},
	})
}

// PublishMarket emits a market_update event on the bus.
func (b *Base) PublishMarket(channel, symbol string, data any) {
	b.bus.Publish(events.Event{
		Kind:   events.KindMarketUpdate,
		Venue:  b.protocol.Name(),
		Market: &events.MarketPayload{Channel: channel, Symbol: symbol, Data: data},
	})
}

// PublishOrder emits an order_update event on the bus.
func (b *Base) PublishOrder(order *core.Order) {
	b.bus.Publish(events.Event{Kind: events.KindOrderUpdate, Venue: b.protocol.Name(), Order: order})
}

// CloseBase releases the HTTP transport and the event bus.
func (b *Base) CloseBase() error {
	b.SetState(StateDisconnected)
	b.bus.Close()
	if b.http != nil {
		return b.http.Close()
	}
	return nil
}
