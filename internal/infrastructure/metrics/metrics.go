// Package metrics exposes prometheus collectors for the REST client, the
// realtime channel and the development server.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "logiride"

// Request outcomes
const (
	OutcomeSuccess        = "success"
	OutcomeAPIError       = "api_error"
	OutcomeTransportError = "transport_error"
	OutcomeUnauthorized   = "unauthorized"
)

// Realtime event outcomes
const (
	EventDispatched = "dispatched"
	EventUnhandled  = "unhandled"
	EventMalformed  = "malformed"
	EventPanicked   = "panicked"
	EventSent       = "sent"
	EventDropped    = "dropped"
)

// Metrics owns a private registry and every collector of the process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	rtState       *prometheus.GaugeVec
	rtReconnects  *prometheus.CounterVec
	rtEvents      *prometheus.CounterVec
	hubClients    prometheus.Gauge
	sessionExpiry prometheus.Counter
}

// New creates the collectors and registers them with a fresh registry
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "REST calls made by the client, by outcome.",
	}, []string{"method", "route", "outcome"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Latency of REST calls made by the client.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	m.rtState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_state",
		Help:      "Push channel state (0=idle, 1=connecting, 2=open, 3=reconnecting, 4=closed).",
	}, []string{"channel"})

	m.rtReconnects = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_reconnects_total",
		Help:      "Reconnect attempts of the push channel.",
	}, []string{"channel"})

	m.rtEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "realtime_events_total",
		Help:      "Push channel events by type and outcome.",
	}, []string{"type", "outcome"})

	m.hubClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "devserver_ws_clients",
		Help:      "WebSocket clients connected to the development server hub.",
	})

	m.sessionExpiry = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_expired_total",
		Help:      "Times the session was cleared after a 401.",
	})

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.rtState,
		m.rtReconnects,
		m.rtEvents,
		m.hubClients,
		m.sessionExpiry,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live in
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveRequest records one REST call
func (m *Metrics) ObserveRequest(method, route, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, outcome).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SessionExpired counts a centralized 401 handling
func (m *Metrics) SessionExpired() {
	if m == nil {
		return
	}
	m.sessionExpiry.Inc()
}

// SetChannelState records the numeric state of a push channel
func (m *Metrics) SetChannelState(channel string, state int) {
	if m == nil {
		return
	}
	m.rtState.WithLabelValues(channel).Set(float64(state))
}

// Reconnect counts a reconnect attempt
func (m *Metrics) Reconnect(channel string) {
	if m == nil {
		return
	}
	m.rtReconnects.WithLabelValues(channel).Inc()
}

// Event counts a realtime event
func (m *Metrics) Event(eventType, outcome string) {
	if m == nil {
		return
	}
	m.rtEvents.WithLabelValues(eventType, outcome).Inc()
}

// HubClients sets the number of connected devserver WebSocket clients
func (m *Metrics) HubClients(n int) {
	if m == nil {
		return
	}
	m.hubClients.Set(float64(n))
}

// Server exposes a Metrics registry over HTTP
type Server struct {
	mu      sync.Mutex
	metrics *Metrics
	path    string
	server  *http.Server
	ln      net.Listener
	errCh   chan error
}

// NewServer creates a server for m at path
func NewServer(m *Metrics, path string) *Server {
	if path == "" {
		path = "/metrics"
	}
	return &Server{metrics: m, path: path}
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(s.path, s.metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.ln = ln
	s.errCh = make(chan error, 1)
	s.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func(srv *http.Server, errCh chan<- error) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}(s.server, s.errCh)
	return nil
}

// Addr returns the bound address, useful when started on port 0
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
