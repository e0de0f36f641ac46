// Package chat runs the conversation between a customer and a driver about
// one booking.
package chat

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/chat"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/httpclient"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/realtime"
)

// PathHistory is the chat history endpoint prefix
const PathHistory = "/api/chat-message"

// API is the part of the REST client the chat service uses
type API interface {
	Get(ctx context.Context, path string, out any, opts ...httpclient.CallOption) error
}

// Channel is the part of a realtime channel a conversation uses
type Channel interface {
	Subscribe(t realtime.EventType, h realtime.Handler) func()
	Emit(ctx context.Context, env realtime.Envelope) error
	Identity() identity.ChannelIdentity
}

var (
	_ API     = (*httpclient.Client)(nil)
	_ Channel = (*realtime.Channel)(nil)
)

// Service opens conversations
type Service struct {
	api    API
	sent   shared.IdempotencyStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewService creates a chat service. sent remembers the client keys of
// outbound messages so their echoes can be dropped.
func NewService(api API, sent shared.IdempotencyStore, cfg config.ChatConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{api: api, sent: sent, ttl: cfg.DedupTTL, logger: logger}
}

// Conversation is one open chat about a booking
type Conversation struct {
	bookingID  string
	id         identity.ChannelIdentity
	ch         Channel
	transcript *chat.Transcript
	logger     *zap.Logger
	newKey     func() string
	now        func() time.Time

	mu        sync.Mutex
	listeners map[int]func(chat.Message)
	nextID    int
	unsub     func()
	closed    bool
}

// Open subscribes to the booking room, then loads the history. Messages that
// arrive while the history loads are shown after it, in arrival order.
func (s *Service) Open(ctx context.Context, ch Channel, bookingID string) (*Conversation, error) {
	if bookingID == "" {
		return nil, shared.ErrInvalidInput
	}
	id := ch.Identity()
	if id.AccountID == "" {
		return nil, identity.ErrIncompleteIdentity
	}

	c := &Conversation{
		bookingID:  bookingID,
		id:         id,
		ch:         ch,
		transcript: chat.NewTranscript(s.sent, s.ttl),
		logger:     s.logger.With(zap.String("booking_id", bookingID)),
		newKey:     uuid.NewString,
		now:        time.Now,
		listeners:  make(map[int]func(chat.Message)),
	}
	c.unsub = ch.Subscribe(realtime.EventMessageReceived, c.receive)

	var history []chat.Message
	path := PathHistory + "/" + url.PathEscape(bookingID)
	if err := s.api.Get(ctx, path, &history, httpclient.WithRoute(PathHistory+"/{bookingId}")); err != nil {
		c.unsub()
		return nil, err
	}
	for i := range history {
		history[i] = chat.Tag(history[i], id.IsSelf)
	}

	replayed, err := c.transcript.LoadBaseline(ctx, history)
	if err != nil {
		c.logger.Warn("Checking replayed messages for echoes", zap.Error(err))
	}
	for _, m := range replayed {
		c.notify(m)
	}
	logger.Enrich(ctx, c.logger).Debug("Conversation opened",
		zap.Int("history", len(history)),
		zap.Int("replayed", len(replayed)),
	)
	return c, nil
}

// BookingID returns the booking the conversation is about
func (c *Conversation) BookingID() string {
	return c.bookingID
}

// Send appends text to the transcript at once and emits it. When the emit
// fails the message stays in the transcript flagged as failed and the error
// is returned.
func (c *Conversation) Send(ctx context.Context, text string) (chat.Message, error) {
	text, err := chat.NormalizeText(text)
	if err != nil {
		return chat.Message{}, err
	}
	if c.isClosed() {
		return chat.Message{}, realtime.ErrClosed
	}

	m := chat.Message{
		ClientKey: c.newKey(),
		BookingID: c.bookingID,
		SenderID:  c.id.AccountID,
		Text:      text,
		Timestamp: c.now(),
		Role:      chat.RoleSelf,
		Status:    chat.StatusSent,
	}
	if err := c.transcript.AppendOutbound(ctx, m); err != nil {
		c.logger.Warn("Could not remember sent message key, its echo may show twice", zap.Error(err))
	}
	c.notify(m)

	env, err := realtime.NewEnvelope(realtime.EventMessageSend, c.bookingID, c.id.AccountID, m)
	if err == nil {
		env.ClientKey = m.ClientKey
		err = c.ch.Emit(ctx, env)
	}
	if err != nil {
		c.transcript.MarkFailed(m.ClientKey)
		m.Status = chat.StatusFailed
		c.logger.Warn("Message not sent", zap.String("client_key", m.ClientKey), zap.Error(err))
		return m, err
	}
	return m, nil
}

// Messages returns the transcript in display order
func (c *Conversation) Messages() []chat.Message {
	return c.transcript.Messages()
}

// OnMessage calls fn for every message appended after the history and
// returns a func that stops it
func (c *Conversation) OnMessage(fn func(chat.Message)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Close stops receiving. The transcript is not kept anywhere.
func (c *Conversation) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.listeners = map[int]func(chat.Message){}
	c.mu.Unlock()
	c.unsub()
	return nil
}

func (c *Conversation) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conversation) receive(ctx context.Context, env realtime.Envelope) {
	if env.Room != "" && env.Room != c.bookingID {
		return
	}
	var m chat.Message
	if err := realtime.DecodeContent(env, &m); err != nil {
		c.logger.Warn("Dropping malformed chat message", zap.Error(err))
		return
	}
	if m.SenderID == "" {
		m.SenderID = env.Sender
	}
	if m.ClientKey == "" {
		m.ClientKey = env.ClientKey
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = env.Time()
	}
	if m.BookingID == "" {
		m.BookingID = c.bookingID
	}
	m.Status = ""
	m = chat.Tag(m, c.id.IsSelf)

	appended, err := c.transcript.AppendInbound(ctx, m)
	if err != nil {
		c.logger.Warn("Checking message for echo", zap.Error(err))
	}
	if appended {
		c.notify(m)
	}
}

func (c *Conversation) notify(m chat.Message) {
	c.mu.Lock()
	fns := make([]func(chat.Message), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(m)
	}
}
