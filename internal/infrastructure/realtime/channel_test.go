package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIdentity = identity.ChannelIdentity{AccountID: "acc-1", Username: "0912345678", Role: identity.RoleDriver}

// wsServer accepts connections and lets the test push frames or drop them.
type wsServer struct {
	t        *testing.T
	srv      *httptest.Server
	mu       sync.Mutex
	conns    []*websocket.Conn
	queries  []url.Values
	received chan Envelope
	accepted chan *websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{t: t, received: make(chan Envelope, 16), accepted: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.queries = append(s.queries, r.URL.Query())
		s.mu.Unlock()
		s.accepted <- conn

		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env Envelope
			if json.Unmarshal(frame, &env) == nil {
				s.received <- env
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func (s *wsServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.accepted:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("no connection accepted")
		return nil
	}
}

func testConfig(u string) config.RealtimeConfig {
	return config.RealtimeConfig{
		URL:            u,
		PingInterval:   time.Second,
		PongTimeout:    3 * time.Second,
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		BackoffFactor:  2,
		SendBuffer:     8,
	}
}

func waitState(t *testing.T, c *Channel, s State) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.WaitFor(ctx, s), "waiting for %s, at %s", s, c.State())
}

func TestNewChannel_Validation(t *testing.T) {
	_, err := NewChannel(testConfig("ws://x/ws"), identity.ChannelIdentity{}, "room")
	assert.ErrorIs(t, err, identity.ErrIncompleteIdentity)

	_, err = NewChannel(testConfig("ws://x/ws"), testIdentity, "")
	assert.Error(t, err)

	_, err = NewChannel(testConfig("http://x/ws"), testIdentity, "acc-1")
	assert.Error(t, err)

	c, err := NewChannel(testConfig("ws://x/ws?v=1"), testIdentity, "acc-1")
	require.NoError(t, err)
	u, _ := url.Parse(c.URL())
	assert.Equal(t, "0912345678", u.Query().Get("username"))
	assert.Equal(t, "acc-1", u.Query().Get("room"))
	assert.Equal(t, "1", u.Query().Get("v"))
	assert.Equal(t, StateIdle, c.State())
}

func TestChannel_ReceivesAndEmits(t *testing.T) {
	s := newWSServer(t)
	c, err := NewChannel(testConfig(s.url()), testIdentity, "b-7")
	require.NoError(t, err)
	defer c.Close()

	got := make(chan chatPayload, 4)
	c.Subscribe(EventMessageReceived, func(_ context.Context, env Envelope) {
		var p chatPayload
		if DecodeContent(env, &p) == nil {
			got <- p
		}
	})

	assert.ErrorIs(t, c.Emit(context.Background(), Envelope{Type: EventMessageSend}), ErrNotConnected)

	require.NoError(t, c.Start(context.Background()))
	conn := s.waitConn(t)
	waitState(t, c, StateOpen)

	s.mu.Lock()
	assert.Equal(t, "b-7", s.queries[0].Get("room"))
	s.mu.Unlock()

	content, _ := EncodeContent(chatPayload{ID: "m1", Text: "hello"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	require.NoError(t, conn.WriteJSON(Envelope{Type: EventMessageReceived, Content: content}))

	select {
	case p := <-got:
		assert.Equal(t, "m1", p.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("message not dispatched")
	}

	env, err := NewEnvelope(EventMessageSend, "", "", chatPayload{ID: "m2", Text: "hi"})
	require.NoError(t, err)
	env.ClientKey = "ck-1"
	require.NoError(t, c.Emit(context.Background(), env))

	select {
	case out := <-s.received:
		assert.Equal(t, EventMessageSend, out.Type)
		assert.Equal(t, "b-7", out.Room)
		assert.Equal(t, "acc-1", out.Sender)
		assert.Equal(t, "ck-1", out.ClientKey)
	case <-time.After(3 * time.Second):
		t.Fatal("emit not received")
	}
}

func TestChannel_ReconnectsAfterDrop(t *testing.T) {
	s := newWSServer(t)
	m := metrics.New()
	c, err := NewChannel(testConfig(s.url()), testIdentity, "acc-1", WithMetrics(m), WithName("notifications"))
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	var states []State
	c.OnStateChange(func(st State) {
		mu.Lock()
		states = append(states, st)
		mu.Unlock()
	})

	require.NoError(t, c.Start(context.Background()))
	first := s.waitConn(t)
	waitState(t, c, StateOpen)

	first.Close()
	s.waitConn(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	for {
		mu.Lock()
		n := len(states)
		done := n >= 4 && states[n-1] == StateOpen
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-ctx.Done():
			t.Fatalf("states: %v", states)
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	assert.Equal(t, []State{StateConnecting, StateOpen, StateReconnecting, StateOpen}, states[:4])
	mu.Unlock()
	count, err := testutil.GatherAndCount(m.Registry(), "logiride_realtime_reconnects_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestChannel_CloseIsFinal(t *testing.T) {
	s := newWSServer(t)
	c, err := NewChannel(testConfig(s.url()), testIdentity, "acc-1")
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	waitState(t, c, StateOpen)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateClosed, c.State())
	assert.ErrorIs(t, c.Emit(context.Background(), Envelope{Type: EventLocation}), ErrClosed)
	assert.ErrorIs(t, c.Start(context.Background()), ErrClosed)
	assert.ErrorIs(t, c.WaitFor(context.Background(), StateOpen), ErrClosed)
}

func TestChannel_CloseBeforeStart(t *testing.T) {
	c, err := NewChannel(testConfig("ws://127.0.0.1:1/ws"), testIdentity, "acc-1")
	require.NoError(t, err)
	require.NoError(t, c.Close())

	select {
	case <-c.Done():
	default:
		t.Fatal("done not closed")
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestChannel_GivesUpAfterMaxElapsed(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/ws")
	cfg.MaxElapsed = 60 * time.Millisecond
	c, err := NewChannel(cfg, testIdentity, "acc-1")
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background()))
	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("channel kept retrying")
	}
	assert.Equal(t, StateClosed, c.State())
}

func TestChannel_StartContextDoesNotStopChannel(t *testing.T) {
	s := newWSServer(t)
	c, err := NewChannel(testConfig(s.url()), testIdentity, "acc-1")
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Start(ctx))
	waitState(t, c, StateOpen)
	cancel()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateOpen, c.State())
}

func TestChannel_EmitBackpressure(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/ws")
	cfg.SendBuffer = 1
	c, err := NewChannel(cfg, testIdentity, "acc-1")
	require.NoError(t, err)
	c.setState(StateOpen)

	ctx := context.Background()
	require.NoError(t, c.Emit(ctx, Envelope{Type: EventLocation}))
	assert.ErrorIs(t, c.Emit(ctx, Envelope{Type: EventLocation}), ErrSendBufferFull)
}

func TestChannel_EmitRateLimited(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1/ws")
	cfg.EmitRate = 0.001
	cfg.EmitBurst = 1
	c, err := NewChannel(cfg, testIdentity, "acc-1")
	require.NoError(t, err)
	c.setState(StateOpen)

	ctx := context.Background()
	require.NoError(t, c.Emit(ctx, Envelope{Type: EventLocation}))
	assert.ErrorIs(t, c.Emit(ctx, Envelope{Type: EventLocation}), ErrRateLimited)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "unknown", State(42).String())
}
