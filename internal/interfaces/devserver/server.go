// Package devserver is a local stand-in for the ride platform. It speaks the
// REST and WebSocket contract the client consumes, backed by a gorm store.
package devserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/infrastructure/auth"
	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/metrics"
	"github.com/logiride/client/internal/infrastructure/persistence"
	"github.com/logiride/client/internal/infrastructure/validation"
)

// Server is the development platform
type Server struct {
	cfg     config.DevserverConfig
	store   *persistence.Store
	jwt     *auth.JWTService
	hub     *Hub
	metrics *metrics.Metrics
	logger  *zap.Logger
	engine  *gin.Engine
	now     func() time.Time
	http    *http.Server

	mu         sync.Mutex
	dispatcher *dispatcher
}

// Option configures a Server
type Option func(*Server)

// WithMetrics exposes hub gauges and serves /metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithTracing instruments every route with otelgin under serviceName
func WithTracing(serviceName string) Option {
	return func(s *Server) {
		s.engine.Use(otelgin.Middleware(serviceName))
	}
}

// New builds the router on store
func New(cfg config.DevserverConfig, store *persistence.Store, opts ...Option) *Server {
	gin.SetMode(gin.ReleaseMode)
	validation.ConfigureGin()

	s := &Server{
		cfg:    cfg,
		store:  store,
		jwt:    auth.NewJWTService(cfg),
		logger: zap.NewNop(),
		engine: gin.New(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.Named(s.logger, "devserver")
	s.hub = NewHub(store, s.logger, s.metrics)
	s.hub.AllowOrigins(cfg.AllowedOrigins)

	s.engine.Use(logger.GinMiddleware(s.logger), logger.Recovery(s.logger), cors(cfg.AllowedOrigins))
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.health)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.GET("/ws", s.hub.Serve(s.jwt))

	api := r.Group("/api")
	login := []gin.HandlerFunc{s.login}
	if s.cfg.LoginRate > 0 {
		login = append([]gin.HandlerFunc{rateLimit(newLimiter(s.cfg.LoginRate))}, login...)
	}
	api.POST("/auth/login", login...)
	api.POST("/auth/register", s.register)

	authed := api.Group("", requireAuth(s.jwt))
	authed.GET("/account/profile", s.profile)
	authed.PUT("/account/profile", s.updateProfile)
	authed.PUT("/account/password", s.changePassword)

	authed.POST("/tripBookings", requireRole(identity.RoleCustomer), s.createBooking)
	authed.GET("/tripBookings", s.listBookings)
	authed.GET("/tripBookings/:id", s.getBooking)
	authed.POST("/tripBookings/:id/cancel", requireRole(identity.RoleCustomer), s.cancelBooking)
	authed.POST("/tripBookings/accept", requireRole(identity.RoleDriver), s.acceptBooking)
	authed.POST("/tripBookings/decline", requireRole(identity.RoleDriver), s.declineBooking)

	authed.GET("/schedule", s.listSchedules)
	authed.POST("/schedule", requireRole(identity.RoleCustomer), s.createSchedule)
	authed.DELETE("/schedule/:id", s.cancelSchedule)

	authed.GET("/voucher", s.listVouchers)
	authed.POST("/voucher/apply", s.applyVoucher)

	authed.POST("/review", requireRole(identity.RoleCustomer), s.createReview)
	authed.GET("/review", s.listReviews)

	authed.GET("/balanceHistory/:accountId", s.balanceHistory)
	authed.GET("/chat-message/:bookingId", s.chatHistory)

	drivers := authed.Group("/registerDriver", requireRole(identity.RoleDriver))
	drivers.POST("/idCard", s.submitIDCard)
	drivers.POST("/vehicle", s.submitVehicle)
	drivers.POST("/license", s.submitLicense)
	drivers.GET("/status", s.driverStatus)

	authed.POST("/ocr/id-card", s.scanIDCard)

	api.POST("/dev/notify", s.notify)
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start listens on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Devserver listening", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the dispatcher, drains HTTP requests and disconnects
// WebSocket clients
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	d := s.dispatcher
	s.dispatcher = nil
	s.mu.Unlock()

	var errs []error
	if d != nil {
		errs = append(errs, d.stop(ctx))
	}
	s.hub.Close()
	if s.http != nil {
		errs = append(errs, s.http.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		fail(c, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	success(c, gin.H{"status": "ok", "clients": s.hub.Clients()})
}
