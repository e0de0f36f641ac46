package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/chat"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/infrastructure/auth"
	"github.com/logiride/client/internal/infrastructure/metrics"
	"github.com/logiride/client/internal/infrastructure/persistence"
	"github.com/logiride/client/internal/infrastructure/realtime"
)

const (
	hubWriteWait  = 10 * time.Second
	hubPongWait   = 60 * time.Second
	hubPingPeriod = 50 * time.Second
	hubMaxFrame   = 64 << 10
	hubSendBuffer = 32
)

// originChecker accepts requests without an Origin header and, when origins
// is not empty, browser requests from one of origins
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}

// Hub relays realtime envelopes between the connections of a room. A room
// is either an account id (trip offers) or a booking id (chat, location).
type Hub struct {
	store    *persistence.Store
	logger   *zap.Logger
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	rooms  map[string]map[*hubClient]struct{}
	count  int
	closed bool
}

// NewHub creates an empty hub
func NewHub(store *persistence.Store, logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		store:   store,
		logger:  logger.Named("hub"),
		metrics: m,
		rooms:   make(map[string]map[*hubClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(nil),
		},
	}
}

// AllowOrigins restricts browser upgrades to origins. An empty list allows any.
func (h *Hub) AllowOrigins(origins []string) {
	h.upgrader.CheckOrigin = originChecker(origins)
}

type hubClient struct {
	hub     *Hub
	conn    *websocket.Conn
	room    string
	account string
	role    identity.Role
	send    chan []byte
	once    sync.Once
}

// Serve upgrades authenticated requests that may join the room query parameter
func (h *Hub) Serve(jwt *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(jwt, c.Request)
		if err != nil {
			fail(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		room := c.Query("room")
		if room == "" {
			fail(c, http.StatusBadRequest, "room is required")
			return
		}
		if !h.mayJoin(c.Request.Context(), claims.AccountID, room) {
			fail(c, http.StatusForbidden, "You are not a member of this room")
			return
		}

		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("Upgrade failed", zap.Error(err))
			return
		}
		client := &hubClient{
			hub:     h,
			conn:    conn,
			room:    room,
			account: claims.AccountID,
			role:    claims.IdentityRole(),
			send:    make(chan []byte, hubSendBuffer),
		}
		if !h.register(client) {
			conn.Close()
			return
		}
		go client.writePump()
		go client.readPump()
	}
}

// mayJoin allows an account into its own room and into the rooms of the
// bookings it takes part in
func (h *Hub) mayJoin(ctx context.Context, account, room string) bool {
	if room == account {
		return true
	}
	b, err := h.store.Bookings.FindByID(ctx, room)
	if err != nil {
		return false
	}
	return b.CustomerID == account || (b.DriverID != "" && b.DriverID == account)
}

func (h *Hub) register(c *hubClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	members, ok := h.rooms[c.room]
	if !ok {
		members = make(map[*hubClient]struct{})
		h.rooms[c.room] = members
	}
	members[c] = struct{}{}
	h.count++
	h.metrics.HubClients(h.count)
	h.logger.Debug("Client joined", zap.String("room", c.room), zap.String("account_id", c.account))
	return true
}

func (h *Hub) unregister(c *hubClient) {
	h.mu.Lock()
	if members, ok := h.rooms[c.room]; ok {
		if _, ok := members[c]; ok {
			delete(members, c)
			h.count--
			if len(members) == 0 {
				delete(h.rooms, c.room)
			}
		}
	}
	h.metrics.HubClients(h.count)
	h.mu.Unlock()
	c.close()
}

// Publish sends env to every connection in room and returns how many were
// reached. Connections whose buffer is full are skipped.
func (h *Hub) Publish(room string, env realtime.Envelope) int {
	return h.publish(room, env, nil)
}

func (h *Hub) publish(room string, env realtime.Envelope, except *hubClient) int {
	if env.Room == "" {
		env.Room = room
	}
	if env.Timestamp == 0 {
		env.Timestamp = time.Now().UnixMilli()
	}
	frame, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("Encoding envelope", zap.Error(err))
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		select {
		case c.send <- frame:
			n++
		default:
			h.logger.Warn("Dropping frame for slow client", zap.String("room", room), zap.String("account_id", c.account))
		}
	}
	return n
}

// Clients returns the number of open connections
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Close disconnects every client and refuses new ones
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*hubClient
	for _, members := range h.rooms {
		for c := range members {
			all = append(all, c)
		}
	}
	h.rooms = make(map[string]map[*hubClient]struct{})
	h.count = 0
	h.metrics.HubClients(0)
	h.mu.Unlock()

	for _, c := range all {
		c.close()
	}
}

func (c *hubClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

func (c *hubClient) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(hubMaxFrame)
	_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Debug("Client read failed", zap.String("account_id", c.account), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(hubPongWait))
		c.hub.handle(c, frame)
	}
}

func (c *hubClient) writePump() {
	ticker := time.NewTicker(hubPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(hubWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle processes one inbound frame. Bad frames are logged and dropped.
func (h *Hub) handle(c *hubClient, frame []byte) {
	env, err := realtime.ParseEnvelope(frame)
	if err != nil {
		h.logger.Warn("Dropping malformed frame", zap.String("account_id", c.account), zap.Error(err))
		return
	}

	switch env.Type {
	case realtime.EventMessageSend:
		h.relayChat(c, env)
	case realtime.EventLocation:
		if c.role != identity.RoleDriver {
			h.logger.Warn("Ignoring location from non-driver", zap.String("account_id", c.account))
			return
		}
		env.Sender = c.account
		env.Room = c.room
		h.publish(c.room, env, c)
	default:
		h.logger.Debug("Ignoring event", zap.String("type", string(env.Type)))
	}
}

// relayChat stores a chat message and sends it back to the whole room,
// sender included, as MESSAGE_RECEIVED
func (h *Hub) relayChat(c *hubClient, env realtime.Envelope) {
	var in chat.Message
	if err := realtime.DecodeContent(env, &in); err != nil {
		h.logger.Warn("Dropping malformed chat message", zap.String("account_id", c.account), zap.Error(err))
		return
	}
	text, err := chat.NormalizeText(in.Text)
	if err != nil {
		h.logger.Debug("Dropping invalid chat message", zap.Error(err))
		return
	}
	clientKey := env.ClientKey
	if clientKey == "" {
		clientKey = in.ClientKey
	}

	m := &persistence.ChatMessageModel{
		BookingID: c.room,
		SenderID:  c.account,
		ClientKey: clientKey,
		Text:      text,
	}
	if err := h.store.Content.AppendMessage(context.Background(), m); err != nil {
		h.logger.Error("Storing chat message", zap.Error(err))
		return
	}

	out, err := realtime.NewEnvelope(realtime.EventMessageReceived, c.room, c.account, m.ToDomain())
	if err != nil {
		h.logger.Error("Encoding chat message", zap.Error(err))
		return
	}
	out.ClientKey = clientKey
	h.publish(c.room, out, nil)
}
