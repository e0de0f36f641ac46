package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/metrics"
	"github.com/logiride/client/internal/infrastructure/session"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) (*Client, *session.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore()
	require.NoError(t, store.Set(context.Background(), &identity.Session{AccessToken: "tok-1", AccountID: "acc-1"}))

	c, err := New(config.APIConfig{BaseURL: srv.URL, Timeout: 2 * time.Second}, store, opts...)
	require.NoError(t, err)
	return c, store
}

func writeEnvelope(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestClient_DecodesData(t *testing.T) {
	var gotAuth, gotPath string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		writeEnvelope(w, http.StatusOK, `{"code":200,"message":"ok","data":{"id":"b-1","price":125000}}`)
	}))

	var out struct {
		ID    string `json:"id"`
		Price int    `json:"price"`
	}
	require.NoError(t, c.Get(context.Background(), "/api/tripBookings/b-1", &out))
	assert.Equal(t, "Bearer tok-1", gotAuth)
	assert.Equal(t, "/api/tripBookings/b-1", gotPath)
	assert.Equal(t, "b-1", out.ID)
	assert.Equal(t, 125000, out.Price)
}

func TestClient_SuccessRule(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
		code    int
	}{
		{"2xx without code", http.StatusOK, `{"message":"ok","data":null}`, "", 0},
		{"2xx with empty body", http.StatusNoContent, ``, "", 0},
		{"2xx with failing code", http.StatusOK, `{"code":400,"message":"Số điện thoại đã tồn tại"}`, "Số điện thoại đã tồn tại", 400},
		{"non-2xx with message", http.StatusBadRequest, `{"code":400,"message":"Invalid voucher"}`, "Invalid voucher", 400},
		{"non-2xx with code 200", http.StatusInternalServerError, `{"code":200,"message":"boom"}`, "boom", 200},
		{"non-2xx without json", http.StatusBadGateway, `<html>bad gateway</html>`, "Bad Gateway", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeEnvelope(w, tt.status, tt.body)
			}))

			err := c.Post(context.Background(), "/api/voucher/apply", map[string]string{"code": "X"}, nil)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "got %v", err)
			assert.Equal(t, tt.wantErr, apiErr.Error())
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestClient_MalformedSuccessBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, `not json`)
	}))
	err := c.Get(context.Background(), "/api/voucher", nil)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClient_AnonymousSkipsToken(t *testing.T) {
	var gotAuth string
	var body map[string]string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		writeEnvelope(w, http.StatusOK, `{"code":200,"data":{}}`)
	}))

	err := c.Post(context.Background(), "/api/auth/login", map[string]string{"phone": "0912345678"}, nil, Anonymous())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
	assert.Equal(t, "0912345678", body["phone"])
}

func TestClient_AnonymousUnauthorizedIsAPIError(t *testing.T) {
	var called atomic.Int32
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, `{"code":401,"message":"Sai mật khẩu"}`)
	}), WithSessionExpiredHandler(func(context.Context) { called.Add(1) }))

	err := c.Post(context.Background(), "/api/auth/login", nil, nil, Anonymous())
	require.True(t, IsAPIError(err))
	assert.Equal(t, "Sai mật khẩu", err.Error())
	assert.Zero(t, called.Load())

	_, err = store.Get(context.Background())
	assert.NoError(t, err)
}

func TestClient_UnauthorizedHandledOnce(t *testing.T) {
	var handled atomic.Int32
	m := metrics.New()
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		writeEnvelope(w, http.StatusUnauthorized, `{"code":401,"message":"Token expired"}`)
	}), WithMetrics(m), WithSessionExpiredHandler(func(context.Context) { handled.Add(1) }))

	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make([]error, 10)
	start := make(chan struct{})
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = c.Get(ctx, "/api/account/profile", nil)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired)
	}
	assert.Equal(t, int32(1), handled.Load())

	_, err := store.Get(ctx)
	assert.ErrorIs(t, err, shared.ErrNoSession)

	// A new login with a new token gets its own expiry.
	require.NoError(t, store.Set(ctx, &identity.Session{AccessToken: "tok-2"}))
	before := handled.Load()
	assert.ErrorIs(t, c.Get(ctx, "/api/account/profile", nil), ErrSessionExpired)
	assert.ErrorIs(t, c.Get(ctx, "/api/account/profile", nil), ErrSessionExpired)
	assert.Equal(t, before+1, handled.Load())
}

func TestClient_UnauthorizedSameTokenOnce(t *testing.T) {
	var handled atomic.Int32
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusUnauthorized, `{}`)
	}), WithSessionExpiredHandler(func(context.Context) { handled.Add(1) }))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Set(ctx, &identity.Session{AccessToken: "same"}))
		assert.ErrorIs(t, c.Get(ctx, "/api/schedule", nil), ErrSessionExpired)
	}
	assert.Equal(t, int32(1), handled.Load())
}

func TestClient_LateUnauthorizedKeepsNewSession(t *testing.T) {
	var handled atomic.Int32
	inFlight := make(chan struct{})
	release := make(chan struct{})
	c, store := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			close(inFlight)
			<-release
			writeEnvelope(w, http.StatusUnauthorized, `{"code":401,"message":"Token expired"}`)
			return
		}
		writeEnvelope(w, http.StatusOK, `{"code":200}`)
	}), WithSessionExpiredHandler(func(context.Context) { handled.Add(1) }))

	ctx := context.Background()
	errc := make(chan error, 1)
	go func() { errc <- c.Get(ctx, "/api/account/profile", nil) }()

	<-inFlight
	require.NoError(t, store.Set(ctx, &identity.Session{AccessToken: "tok-2", AccountID: "acc-1"}))
	close(release)

	assert.ErrorIs(t, <-errc, ErrSessionExpired)
	assert.Equal(t, int32(0), handled.Load())

	current, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", current.AccessToken)
	assert.NoError(t, c.Get(ctx, "/api/account/profile", nil))
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	m := metrics.New()
	c, err := New(config.APIConfig{BaseURL: url, Timeout: time.Second}, session.NewMemoryStore(), WithMetrics(m))
	require.NoError(t, err)

	err = c.Get(context.Background(), "/api/voucher", nil, WithRoute("/api/voucher"))
	assert.True(t, IsTransportError(err))
	assert.False(t, IsAPIError(err))

	count, gErr := testutil.GatherAndCount(m.Registry(), "logiride_http_requests_total")
	require.NoError(t, gErr)
	assert.Equal(t, 1, count)
}

func TestClient_QueryAndAbsoluteURL(t *testing.T) {
	var gotQuery string
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		writeEnvelope(w, http.StatusOK, `{"code":200}`)
	}))
	defer other.Close()

	c, _ := newTestClient(t, http.NotFoundHandler())
	err := c.Get(context.Background(), other.URL+"/ocr", nil, WithQuery(map[string][]string{"lang": {"vi"}}))
	require.NoError(t, err)
	assert.Equal(t, "lang=vi", gotQuery)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(config.APIConfig{}, nil)
	assert.Error(t, err)

	c, err := New(config.APIConfig{BaseURL: "http://localhost:8088/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8088/", c.BaseURL())
}

func TestClient_Upload(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "front", r.FormValue("side"))

		f, hdr, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "card.jpg", hdr.Filename)
		assert.Equal(t, "JPEGDATA", string(data))

		writeEnvelope(w, http.StatusOK, `{"code":200,"data":{"id":"012345678901"}}`)
	}))

	var out struct {
		ID string `json:"id"`
	}
	err := c.Upload(context.Background(), "/api/ocr/id-card",
		map[string]string{"side": "front"},
		[]File{{Field: "image", Name: "card.jpg", ContentType: "image/jpeg", Content: strings.NewReader("JPEGDATA")}},
		&out,
	)
	require.NoError(t, err)
	assert.Equal(t, "012345678901", out.ID)
}
