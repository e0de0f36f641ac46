// Package httpclient is the authenticated REST client every service goes
// through. It decodes the {code, message, data} envelope, injects the bearer
// token and turns any 401 into one centralized session-expiry flow.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/metrics"
	"github.com/logiride/client/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxBodySize = 10 << 20

// SessionExpiredHandler runs once per expired token, after the session store
// has been cleared.
type SessionExpiredHandler func(ctx context.Context)

// Envelope is the response wrapper used by every endpoint
type Envelope struct {
	Code    *int            `json:"code,omitempty"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK reports whether the envelope signals success
func (e Envelope) OK() bool {
	return e.Code == nil || *e.Code == http.StatusOK
}

// Client is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	sessions   identity.SessionStore
	userAgent  string
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu        sync.Mutex
	onExpired SessionExpiredHandler
	expired   string // last token that expired
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = logger.Named(l, "http") }
}

// WithMetrics records every call in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithSessionExpiredHandler registers the single session-expiry handler
func WithSessionExpiredHandler(h SessionExpiredHandler) Option {
	return func(c *Client) { c.onExpired = h }
}

// New creates a client for cfg.BaseURL reading tokens from sessions
func New(cfg config.APIConfig, sessions identity.SessionStore, opts ...Option) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "logiride-client"
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		sessions:   sessions,
		userAgent:  cfg.UserAgent,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetSessionExpiredHandler replaces the session-expiry handler
func (c *Client) SetSessionExpiredHandler(h SessionExpiredHandler) {
	c.mu.Lock()
	c.onExpired = h
	c.mu.Unlock()
}

// BaseURL returns the configured base URL
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Request describes one REST call
type Request struct {
	Method string
	Path   string // relative to the base URL, or absolute
	Route  string // low-cardinality label for metrics, defaults to Path
	Query  url.Values
	Body   any

	// Anonymous requests carry no bearer token and a 401 is an ordinary
	// APIError (wrong password on login).
	Anonymous bool

	body        io.Reader
	contentType string
}

// CallOption adjusts a Request built by the verb helpers
type CallOption func(*Request)

// Anonymous marks the call as not requiring a session
func Anonymous() CallOption {
	return func(r *Request) { r.Anonymous = true }
}

// WithRoute sets the metrics label of the call
func WithRoute(route string) CallOption {
	return func(r *Request) { r.Route = route }
}

// WithQuery adds query parameters
func WithQuery(q url.Values) CallOption {
	return func(r *Request) { r.Query = q }
}

// Get performs a GET and decodes data into out
func (c *Client) Get(ctx context.Context, path string, out any, opts ...CallOption) error {
	return c.Do(ctx, build(http.MethodGet, path, nil, opts), out)
}

// Post performs a POST with a JSON body
func (c *Client) Post(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return c.Do(ctx, build(http.MethodPost, path, body, opts), out)
}

// Put performs a PUT with a JSON body
func (c *Client) Put(ctx context.Context, path string, body, out any, opts ...CallOption) error {
	return c.Do(ctx, build(http.MethodPut, path, body, opts), out)
}

// Delete performs a DELETE
func (c *Client) Delete(ctx context.Context, path string, out any, opts ...CallOption) error {
	return c.Do(ctx, build(http.MethodDelete, path, nil, opts), out)
}

func build(method, path string, body any, opts []CallOption) Request {
	r := Request{Method: method, Path: path, Body: body}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// Do executes req and decodes the envelope data into out (which may be nil).
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	route := req.Route
	if route == "" {
		route = req.Path
	}

	ctx, span := telemetry.StartSpan(ctx, "http."+req.Method,
		telemetry.WithSpanKind(trace.SpanKindClient),
		telemetry.WithAttribute(telemetry.AttrRoute, route),
	)
	defer span.End()

	start := time.Now()
	outcome, status, err := c.do(ctx, req, out)
	c.metrics.ObserveRequest(req.Method, route, outcome, time.Since(start))

	if status != 0 {
		telemetry.SetAttributes(span, telemetry.AttrStatus, status)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		logger.Enrich(ctx, c.logger).Debug("request failed",
			zap.String("method", req.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) do(ctx context.Context, req Request, out any) (string, int, error) {
	u, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return metrics.OutcomeTransportError, 0, fmt.Errorf("building URL: %w", err)
	}

	body := req.body
	contentType := req.contentType
	if body == nil && req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return metrics.OutcomeTransportError, 0, fmt.Errorf("marshaling request body: %w", err)
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return metrics.OutcomeTransportError, 0, fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if id := logger.RequestID(ctx); id != "" {
		httpReq.Header.Set(logger.RequestIDHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	var token string
	if !req.Anonymous && c.sessions != nil {
		sess, err := c.sessions.Get(ctx)
		switch {
		case err == nil && sess != nil:
			token = sess.AccessToken
		case err != nil && !errors.Is(err, shared.ErrNoSession):
			return metrics.OutcomeTransportError, 0, fmt.Errorf("loading session: %w", err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return metrics.OutcomeTransportError, 0, &TransportError{Method: req.Method, URL: u.Redacted(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return metrics.OutcomeTransportError, resp.StatusCode, &TransportError{Method: req.Method, URL: u.Redacted(), Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.Anonymous {
		c.expire(ctx, token)
		return metrics.OutcomeUnauthorized, resp.StatusCode, ErrSessionExpired
	}

	if err := decode(resp.StatusCode, raw, out); err != nil {
		if IsAPIError(err) {
			return metrics.OutcomeAPIError, resp.StatusCode, err
		}
		return metrics.OutcomeTransportError, resp.StatusCode, err
	}
	return metrics.OutcomeSuccess, resp.StatusCode, nil
}

// decode applies the success rule: 2xx and (no code or code 200)
func decode(status int, raw []byte, out any) error {
	success := status >= 200 && status < 300

	var env Envelope
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			if !success {
				return &APIError{Status: status, Message: http.StatusText(status)}
			}
			return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
	}

	if !success || !env.OK() {
		apiErr := &APIError{Status: status, Message: env.Message}
		if env.Code != nil {
			apiErr.Code = *env.Code
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: decoding data: %v", ErrMalformedResponse, err)
	}
	return nil
}

// expire clears the session and notifies the handler once per token. A 401
// on a request sent without a token has nothing left to expire, and a late
// 401 for a token the store no longer holds must not end the newer session.
func (c *Client) expire(ctx context.Context, token string) {
	if token == "" {
		return
	}
	log := logger.Enrich(ctx, c.logger)

	c.mu.Lock()
	if token == c.expired {
		c.mu.Unlock()
		return
	}
	if c.sessions != nil {
		current, err := c.sessions.Get(ctx)
		switch {
		case errors.Is(err, shared.ErrNoSession):
			c.mu.Unlock()
			return
		case err == nil && current.AccessToken != token:
			c.mu.Unlock()
			return
		}
		if err := c.sessions.Clear(ctx); err != nil {
			log.Error("failed to clear session", zap.Error(err))
		}
	}
	c.expired = token
	handler := c.onExpired
	c.mu.Unlock()

	c.metrics.SessionExpired()
	log.Warn("session expired, cleared stored session")
	if handler != nil {
		handler(ctx)
	}
}

func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	var u *url.URL
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		parsed, err := url.Parse(path)
		if err != nil {
			return nil, err
		}
		u = parsed
	} else {
		ref, err := url.Parse(strings.TrimPrefix(path, "/"))
		if err != nil {
			return nil, err
		}
		base := *c.baseURL
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		u = base.ResolveReference(ref)
	}

	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}
