package ws

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/lxzan/gws"
	"github.com/rs/zerolog"
)

// Config holds configuration options for a stream client.
type Config struct {
	// URL is the websocket server endpoint to connect to.
	URL string
	// Headers are sent with the connection handshake. Venues that
	// authenticate at connect time place their signature headers here.
	Headers http.Header
	// ReconnectEnabled determines whether automatic reconnection is enabled.
	ReconnectEnabled bool
	// ReconnectMaxWait is the maximum duration to wait between reconnection attempts.
	ReconnectMaxWait time.Duration
	// ReconnectBaseWait is the initial duration to wait before the first reconnection attempt.
	ReconnectBaseWait time.Duration
	// HeartbeatInterval is the period of the heartbeat scheduler.
	HeartbeatInterval time.Duration
	// PongWait is the maximum time to wait for traffic before considering the connection dead.
	PongWait time.Duration
	// BufferSize is the capacity of channel buffers for subscription messages.
	BufferSize int
	// Heartbeat, when set, is invoked on the heartbeat timer and its result
	// sent as a text frame. The scheduler runs on its own goroutine so a
	// slow caller elsewhere can never delay a heartbeat. When nil, a
	// websocket-level ping frame is sent instead.
	Heartbeat func() ([]byte, error)
}

// Client manages one persistent stream connection with heartbeating,
// reconnection, and idempotent resubscription.
type Client struct {
	config  Config
	state   *State
	conn    *gws.Conn
	handler *eventHandler
	logger  zerolog.Logger

	mu                sync.RWMutex
	subs              map[string]*subscription
	pendingSubs       map[string][]byte
	connectedChan     chan struct{}
	stopChan          chan struct{}
	wg                sync.WaitGroup
	reconnectAttempts int
	heartbeatStop     chan struct{}

	// OnConnected and OnDisconnected report transport transitions to the
	// owning adapter so it can publish lifecycle events.
	OnConnected    func()
	OnDisconnected func(err error)
}

type subscription struct {
	channel string
	dataCh  chan []byte
	errCh   chan error
	closeCh chan struct{}
}

type eventHandler struct {
	client *Client
}

// NewClient creates a new stream client with the given configuration.
// Default values are applied for any zero-valued configuration fields.
func NewClient(config Config) *Client {
	if config.ReconnectBaseWait == 0 {
		config.ReconnectBaseWait = 1 * time.Second
	}
	if config.ReconnectMaxWait == 0 {
		config.ReconnectMaxWait = 30 * time.Second
	}
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 10 * time.Second
	}
	if config.PongWait == 0 {
		config.PongWait = 20 * time.Second
	}
	if config.BufferSize == 0 {
		config.BufferSize = 100
	}

	client := &Client{
		config:        config,
		state:         &State{},
		subs:          make(map[string]*subscription),
		pendingSubs:   make(map[string][]byte),
		connectedChan: make(chan struct{}),
		stopChan:      make(chan struct{}),
		logger:        zerolog.Nop(),
	}
	client.state.Store(StateDisconnected)
	client.handler = &eventHandler{client: client}
	return client
}

// SetLogger configures the logger for the stream client.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

func (h *eventHandler) OnOpen(socket *gws.Conn) {
	h.client.state.Store(StateConnected)

	h.client.mu.Lock()
	h.client.reconnectAttempts = 0
	select {
	case <-h.client.connectedChan:
	default:
		close(h.client.connectedChan)
	}
	pending := make(map[string][]byte, len(h.client.pendingSubs))
	for topic, payload := range h.client.pendingSubs {
		pending[topic] = payload
	}
	h.client.mu.Unlock()

	h.client.logger.Info().
		Str("url", h.client.config.URL).
		Msg("stream connected")

	_ = socket.SetDeadline(time.Now().Add(h.client.config.HeartbeatInterval + h.client.config.PongWait))

	// Replay subscribe messages so reconnects restore every channel.
	for topic, payload := range pending {
		if err := socket.WriteMessage(gws.OpcodeText, payload); err != nil {
			h.client.logger.Error().Err(err).Str("topic", topic).Msg("resubscribe failed")
		}
	}

	h.client.startHeartbeat()

	if h.client.OnConnected != nil {
		h.client.OnConnected()
	}
}

func (h *eventHandler) OnClose(socket *gws.Conn, err error) {
	// Close advances the state machine to its terminal state before the
	// socket teardown reaches this callback; closed must stay closed.
	if h.client.state.Load() != StateClosed {
		h.client.state.Store(StateDisconnected)
	}
	h.client.stopHeartbeat()

	h.client.mu.Lock()
	h.client.connectedChan = make(chan struct{})
	h.client.mu.Unlock()

	h.client.logger.Warn().
		Err(err).
		Str("url", h.client.config.URL).
		Msg("stream disconnected")

	if h.client.OnDisconnected != nil {
		h.client.OnDisconnected(err)
	}

	if h.client.config.ReconnectEnabled {
		select {
		case <-h.client.stopChan:
			return
		default:
			go h.client.attemptReconnect()
		}
	}
}

func (h *eventHandler) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.client.config.HeartbeatInterval + h.client.config.PongWait))
	_ = socket.WritePong(nil)
}

func (h *eventHandler) OnPong(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(h.client.config.HeartbeatInterval + h.client.config.PongWait))
}

func (h *eventHandler) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()

	data := message.Bytes()
	if len(data) == 0 {
		return
	}

	_ = socket.SetDeadline(time.Now().Add(h.client.config.HeartbeatInterval + h.client.config.PongWait))

	h.client.mu.RLock()
	subs := make([]*subscription, 0, len(h.client.subs))
	for _, sub := range h.client.subs {
		subs = append(subs, sub)
	}
	h.client.mu.RUnlock()

	for _, sub := range subs {
		select {
		case <-sub.closeCh:
			continue
		case sub.dataCh <- data:
		default:
			h.client.logger.Warn().Str("channel", sub.channel).Msg("channel buffer full, dropping message")
		}
	}
}

// Connect establishes the stream connection to the configured URL.
// It returns an error if the connection fails or the client is in an invalid state.
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(StateDisconnected, StateConnecting) {
		current := c.state.Load()
		if current == StateConnected {
			return nil
		}
		return fmt.Errorf("invalid state for connect: %s", current)
	}

	socket, _, err := gws.NewClient(c.handler, &gws.ClientOption{
		Addr:          c.config.URL,
		RequestHeader: c.config.Headers,
	})
	if err != nil {
		c.state.Store(StateDisconnected)
		return fmt.Errorf("connect stream: %w", err)
	}

	c.mu.Lock()
	c.conn = socket
	c.mu.Unlock()

	c.wg.Go(func() {
		socket.ReadLoop()
	})

	c.mu.RLock()
	connected := c.connectedChan
	c.mu.RUnlock()

	select {
	case <-connected:
		return nil
	case <-ctx.Done():
		_ = socket.NetConn().Close()
		c.state.Store(StateDisconnected)
		return ctx.Err()
	case <-c.stopChan:
		_ = socket.NetConn().Close()
		c.state.Store(StateClosed)
		return fmt.Errorf("client stopped")
	}
}

// Close shuts down the stream client and releases every timer, goroutine,
// and channel. It is safe to call at any time, including during an in-flight
// operation, and never returns an error for an already-closed client.
func (c *Client) Close() error {
	if !c.state.CompareAndSwap(StateConnected, StateClosed) &&
		!c.state.CompareAndSwap(StateConnecting, StateClosed) &&
		!c.state.CompareAndSwap(StateReconnecting, StateClosed) &&
		!c.state.CompareAndSwap(StateDisconnected, StateClosed) {
		return nil
	}

	close(c.stopChan)
	c.stopHeartbeat()

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.NetConn().Close()
	}
	for _, sub := range c.subs {
		close(sub.closeCh)
		close(sub.dataCh)
		close(sub.errCh)
	}
	c.subs = make(map[string]*subscription)
	c.pendingSubs = make(map[string][]byte)
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// State returns the current connection state of the stream.
func (c *Client) State() ConnState {
	return c.state.Load()
}

// IsConnected returns true if the stream has an active connection.
func (c *Client) IsConnected() bool {
	return c.state.Load() == StateConnected
}

// SubscribeChannel registers a subscription for the given channel and returns
// separate channels for receiving data and errors.
func (c *Client) SubscribeChannel(channel string) (<-chan []byte, <-chan error) {
	dataCh := make(chan []byte, c.config.BufferSize)
	errCh := make(chan error, 1)
	closeCh := make(chan struct{})

	sub := &subscription{
		channel: channel,
		dataCh:  dataCh,
		errCh:   errCh,
		closeCh: closeCh,
	}

	c.mu.Lock()
	c.subs[channel] = sub
	c.mu.Unlock()

	c.logger.Debug().Str("channel", channel).Msg("subscribed to channel")

	return dataCh, errCh
}

// Subscribe registers a handler function for messages on the given channel.
// The handler runs on a dedicated goroutine per subscription.
func (c *Client) Subscribe(channel string, handler func([]byte) error) error {
	dataCh, errCh := c.SubscribeChannel(channel)

	c.wg.Go(func() {
		for {
			select {
			case data, ok := <-dataCh:
				if !ok {
					return
				}
				if err := handler(data); err != nil {
					c.logger.Error().Err(err).Str("channel", channel).Msg("handler error")
				}
			case err, ok := <-errCh:
				if !ok {
					return
				}
				if err != nil {
					c.logger.Error().Err(err).Str("channel", channel).Msg("subscription error")
				}
			case <-c.stopChan:
				return
			}
		}
	})

	return nil
}

// UnsubscribeChannel removes the subscription for the given channel and closes its channels.
func (c *Client) UnsubscribeChannel(channel string) {
	c.mu.Lock()
	if sub, ok := c.subs[channel]; ok {
		close(sub.closeCh)
		close(sub.dataCh)
		close(sub.errCh)
		delete(c.subs, channel)
	}
	c.mu.Unlock()

	c.logger.Debug().Str("channel", channel).Msg("unsubscribed from channel")
}

// Subscriptions returns a list of all active subscription channel names.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs := make([]string, 0, len(c.subs))
	for channel := range c.subs {
		subs = append(subs, channel)
	}
	return subs
}

// RegisterTopic records the venue subscribe payload for a topic and sends it
// when connected. Registering an already-registered topic is a no-op, so
// resubscription after reconnect is idempotent. The payload is replayed on
// every reconnect until UnregisterTopic is called.
func (c *Client) RegisterTopic(topic string, payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}

	c.mu.Lock()
	if _, exists := c.pendingSubs[topic]; exists {
		c.mu.Unlock()
		return nil
	}
	c.pendingSubs[topic] = data
	c.mu.Unlock()

	if c.IsConnected() {
		return c.WriteMessage(data)
	}
	return nil
}

// UnregisterTopic removes a topic from the replay set and sends the venue
// unsubscribe payload when one is given and the stream is connected.
func (c *Client) UnregisterTopic(topic string, payload any) error {
	c.mu.Lock()
	delete(c.pendingSubs, topic)
	c.mu.Unlock()

	if payload == nil || !c.IsConnected() {
		return nil
	}
	return c.SendJSON(payload)
}

// WriteMessage sends raw bytes over the stream connection.
// It returns an error if the connection is not active.
func (c *Client) WriteMessage(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.conn == nil || c.state.Load() != StateConnected {
		return fmt.Errorf("stream not connected")
	}

	return c.conn.WriteMessage(gws.OpcodeText, data)
}

// SendJSON marshals the given value to JSON and sends it over the stream.
func (c *Client) SendJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	return c.WriteMessage(data)
}

// startHeartbeat launches the heartbeat scheduler. The scheduler owns its
// ticker and goroutine; heartbeat timing is never coupled to request traffic
// because a missed heartbeat is a hard disconnect condition on most venues.
func (c *Client) startHeartbeat() {
	c.mu.Lock()
	if c.heartbeatStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	c.wg.Go(func() {
		ticker := time.NewTicker(c.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.sendHeartbeat()
			case <-stop:
				return
			case <-c.stopChan:
				return
			}
		}
	})
}

func (c *Client) stopHeartbeat() {
	c.mu.Lock()
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
	c.mu.Unlock()
}

func (c *Client) sendHeartbeat() {
	if !c.IsConnected() {
		return
	}

	if c.config.Heartbeat != nil {
		payload, err := c.config.Heartbeat()
		if err != nil {
			c.logger.Error().Err(err).Msg("build heartbeat")
			return
		}
		if err := c.WriteMessage(payload); err != nil {
			c.logger.Error().Err(err).Msg("send heartbeat")
		}
		return
	}

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn != nil {
		_ = conn.WritePing(nil)
	}
}

func (c *Client) attemptReconnect() {
	if !c.state.CompareAndSwap(StateDisconnected, StateReconnecting) {
		return
	}

	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		c.mu.Lock()
		attempts := c.reconnectAttempts
		c.reconnectAttempts++
		c.mu.Unlock()

		wait := c.calculateBackoff(attempts)
		c.logger.Info().
			Dur("wait", wait).
			Int("attempt", attempts+1).
			Msg("attempting reconnect")

		select {
		case <-time.After(wait):
		case <-c.stopChan:
			return
		}

		c.state.Store(StateDisconnected)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.Connect(ctx); err != nil {
			c.logger.Error().Err(err).
				Int("attempt", attempts+1).
				Msg("reconnect failed")
			cancel()
			c.state.Store(StateReconnecting)
			continue
		}
		cancel()

		c.logger.Info().Msg("reconnected successfully")
		return
	}
}

func (c *Client) calculateBackoff(attempts int) time.Duration {
	return min(c.config.ReconnectBaseWait*time.Duration(1<<uint(attempts)), c.config.ReconnectMaxWait)
}
