package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Emit errors
var (
	ErrNotConnected   = errors.New("realtime channel is not connected")
	ErrSendBufferFull = errors.New("realtime send buffer is full")
	ErrRateLimited    = errors.New("realtime emit rate exceeded")
	ErrClosed         = errors.New("realtime channel is closed")
)

const maxFrameSize = 1 << 20

// Channel is one WebSocket connection scoped by a room. Once started it
// reconnects with exponential backoff until Close is called; consumers come
// and go through Subscribe without affecting the connection.
type Channel struct {
	cfg        config.RealtimeConfig
	identity   identity.ChannelIdentity
	room       string
	name       string
	token      string
	dialer     *websocket.Dialer
	limiter    *rate.Limiter
	registry   *Registry
	logger     *zap.Logger
	metrics    *metrics.Metrics
	newBackOff func() backoff.BackOff

	send chan []byte

	mu           sync.Mutex
	state        State
	changed      chan struct{}
	listeners    map[uint64]func(State)
	nextListener uint64

	lifecycle sync.Mutex
	started   bool
	closed    bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Channel
type Option func(*Channel)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Channel) { c.logger = l }
}

// WithMetrics records state, reconnects and events in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Channel) { c.metrics = m }
}

// WithName sets the channel label used in logs and metrics
func WithName(name string) Option {
	return func(c *Channel) { c.name = name }
}

// WithToken sends the access token as a bearer header on every dial
func WithToken(token string) Option {
	return func(c *Channel) { c.token = token }
}

// WithDialer replaces the WebSocket dialer
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Channel) { c.dialer = d }
}

// WithBackOff replaces the reconnect policy
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Channel) { c.newBackOff = fn }
}

// NewChannel creates an idle channel for room. Call Start to connect.
func NewChannel(cfg config.RealtimeConfig, id identity.ChannelIdentity, room string, opts ...Option) (*Channel, error) {
	if id.AccountID == "" {
		return nil, identity.ErrIncompleteIdentity
	}
	if room == "" {
		return nil, fmt.Errorf("realtime: room is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("realtime: url must use ws:// or wss://, got %q", cfg.URL)
	}
	cfg = withDefaults(cfg)

	c := &Channel{
		cfg:       cfg,
		identity:  id,
		room:      room,
		name:      "default",
		send:      make(chan []byte, cfg.SendBuffer),
		changed:   make(chan struct{}),
		listeners: make(map[uint64]func(State)),
		done:      make(chan struct{}),
		limiter:   rate.NewLimiter(rate.Limit(cfg.EmitRate), cfg.EmitBurst),
		dialer:    &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
	}
	c.newBackOff = c.defaultBackOff
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.Named(c.logger, "realtime").With(zap.String("channel", c.name), zap.String("room", room))
	c.registry = NewRegistry(c.logger, c.metrics)
	c.metrics.SetChannelState(c.name, int(StateIdle))
	return c, nil
}

func withDefaults(cfg config.RealtimeConfig) config.RealtimeConfig {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = cfg.PingInterval * 12 / 5
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 2
	}
	if cfg.EmitRate <= 0 {
		cfg.EmitRate = 10
	}
	if cfg.EmitBurst <= 0 {
		cfg.EmitBurst = 20
	}
	return cfg
}

func (c *Channel) defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	b.Multiplier = c.cfg.BackoffFactor
	b.MaxInterval = c.cfg.MaxBackoff
	b.MaxElapsedTime = c.cfg.MaxElapsed
	b.Reset()
	return b
}

// URL is the address dialled, with the identity and room as query parameters
func (c *Channel) URL() string {
	u, _ := url.Parse(c.cfg.URL)
	q := u.Query()
	q.Set("username", c.identity.Username)
	q.Set("room", c.room)
	u.RawQuery = q.Encode()
	return u.String()
}

// Room returns the room the channel is scoped by
func (c *Channel) Room() string {
	return c.room
}

// Identity returns the identity the channel was opened with
func (c *Channel) Identity() identity.ChannelIdentity {
	return c.identity
}

// Subscribe registers h for t and returns the unsubscribe func
func (c *Channel) Subscribe(t EventType, h Handler) func() {
	return c.registry.Subscribe(t, h)
}

// State returns the current state
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers fn for every transition and returns a func that
// removes it. fn runs on the connection goroutine.
func (c *Channel) OnStateChange(fn func(State)) func() {
	c.mu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// WaitFor blocks until the channel reaches s, the channel closes or ctx ends
func (c *Channel) WaitFor(ctx context.Context, s State) error {
	for {
		c.mu.Lock()
		cur, ch := c.state, c.changed
		c.mu.Unlock()

		if cur == s {
			return nil
		}
		if cur == StateClosed {
			return ErrClosed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	prev := c.state
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
	fns := make([]func(State), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	c.metrics.SetChannelState(c.name, int(s))
	c.logger.Info("channel state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	for _, fn := range fns {
		fn(s)
	}
}

// Start connects in the background. ctx supplies values only; its
// cancellation does not stop the channel.
func (c *Channel) Start(ctx context.Context) error {
	c.lifecycle.Lock()
	defer c.lifecycle.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = logger.WithRoom(runCtx, c.room)
	c.cancel = cancel
	go c.run(runCtx)
	return nil
}

// Close stops the channel and waits for the connection goroutine to exit.
func (c *Channel) Close() error {
	c.lifecycle.Lock()
	if c.closed {
		c.lifecycle.Unlock()
		<-c.done
		return nil
	}
	c.closed = true
	started := c.started
	cancel := c.cancel
	c.lifecycle.Unlock()

	if !started {
		c.setState(StateClosed)
		close(c.done)
		return nil
	}
	cancel()
	<-c.done
	return nil
}

// Done is closed once the channel has stopped
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Emit queues env for sending. Room, sender and timestamp are filled in when
// empty. There is no acknowledgement.
func (c *Channel) Emit(ctx context.Context, env Envelope) error {
	switch c.State() {
	case StateOpen:
	case StateClosed:
		return ErrClosed
	default:
		c.metrics.Event(string(env.Type), metrics.EventDropped)
		return ErrNotConnected
	}
	if !c.limiter.Allow() {
		c.metrics.Event(string(env.Type), metrics.EventDropped)
		return ErrRateLimited
	}

	if env.Room == "" {
		env.Room = c.room
	}
	if env.Sender == "" {
		env.Sender = c.identity.AccountID
	}
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: encoding envelope: %w", err)
	}

	select {
	case c.send <- frame:
		c.metrics.Event(string(env.Type), metrics.EventSent)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		c.metrics.Event(string(env.Type), metrics.EventDropped)
		return ErrSendBufferFull
	}
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)
	defer c.setState(StateClosed)

	bo := c.newBackOff()
	next := StateConnecting
	for {
		c.setState(next)
		conn, err := c.dial(ctx)
		if err == nil {
			bo.Reset()
			c.setState(StateOpen)
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			c.logger.Error("giving up reconnecting", zap.Error(err))
			return
		}
		c.logger.Warn("connection lost, reconnecting", zap.Error(err), zap.Duration("wait", wait))
		next = StateReconnecting
		c.setState(next)
		c.metrics.Reconnect(c.name)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, c.URL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// serve pumps one connection until it fails or ctx ends
func (c *Channel) serve(ctx context.Context, conn *websocket.Conn) error {
	connCtx, stop := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	defer func() {
		stop()
		<-writerDone
	}()

	conn.SetReadLimit(maxFrameSize)
	alive := func() error { return conn.SetReadDeadline(time.Now().Add(c.cfg.PongTimeout)) }
	_ = alive()
	conn.SetPongHandler(func(string) error { return alive() })

	go func() {
		defer close(writerDone)
		c.writePump(connCtx, conn)
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = alive()
		c.handleFrame(ctx, frame)
	}
}

func (c *Channel) writePump(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case frame := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Warn("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				c.logger.Warn("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *Channel) handleFrame(ctx context.Context, frame []byte) {
	env, err := ParseEnvelope(frame)
	if err != nil {
		c.metrics.Event("", metrics.EventMalformed)
		c.logger.Warn("dropping malformed frame", zap.Error(err), zap.Int("bytes", len(frame)))
		return
	}
	c.registry.Dispatch(ctx, env)
}
