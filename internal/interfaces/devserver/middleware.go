package devserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/infrastructure/auth"
	"github.com/logiride/client/internal/infrastructure/logger"
)

const (
	claimsKey    = "jwt_claims"
	bearerPrefix = "Bearer "
)

// requireAuth rejects requests without a valid access token with 401
func requireAuth(jwt *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(jwt, c.Request)
		if err != nil {
			logger.GetGinLogger(c, nil).Debug("Authentication failed", zap.Error(err))
			message := "Authentication required"
			if errors.Is(err, auth.ErrExpiredToken) {
				message = "Token has expired"
			}
			fail(c, http.StatusUnauthorized, message)
			return
		}

		c.Set(claimsKey, claims)
		ctx := logger.WithAccountID(c.Request.Context(), claims.AccountID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// requireRole answers 403 unless the caller has role
func requireRole(role identity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claimsOf(c).IdentityRole() != role {
			fail(c, http.StatusForbidden, "Only "+strings.ToLower(string(role))+" accounts can do this")
			return
		}
		c.Next()
	}
}

func authenticate(jwt *auth.JWTService, r *http.Request) (*auth.Claims, error) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, auth.ErrInvalidToken
	}
	token := strings.TrimPrefix(header, bearerPrefix)
	if token == "" {
		return nil, auth.ErrInvalidToken
	}
	return jwt.ValidateAccessToken(token)
}

func claimsOf(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return &auth.Claims{}
}

func accountID(c *gin.Context) string {
	return claimsOf(c).AccountID
}

var (
	corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsHeaders = []string{"Content-Type", "Authorization", "X-Request-ID", "Accept", "Origin"}
)

// cors lets browser clients served from origins call the API. "*" allows
// any origin. Preflight requests are always answered with 204.
func cors(origins []string) gin.HandlerFunc {
	wildcard := false
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			wildcard = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allow := ""
		if _, ok := allowed[origin]; ok && origin != "" {
			allow = origin
		} else if wildcard {
			allow = "*"
		}

		if allow != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			if allow != "*" {
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}
			h.Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ", "))
			h.Set("Access-Control-Allow-Headers", strings.Join(corsHeaders, ", "))
			h.Set("Access-Control-Max-Age", strconv.Itoa(int((12 * time.Hour).Seconds())))
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// limiter keeps one token bucket per client key
type limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*limiterEntry
	now     func() time.Time
}

type limiterEntry struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// newLimiter allows perMinute requests a minute per key, in bursts of up to perMinute
func newLimiter(perMinute int) *limiter {
	return &limiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		clients: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

func (l *limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.clients[key]
	if !ok {
		e = &limiterEntry{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = e
	}
	e.lastSeen = now
	l.evict(now)
	return e.bucket.AllowN(now, 1)
}

// evict drops keys idle for more than two minutes
func (l *limiter) evict(now time.Time) {
	for k, e := range l.clients {
		if now.Sub(e.lastSeen) > 2*time.Minute {
			delete(l.clients, k)
		}
	}
}

// rateLimit answers 429 once the client IP runs out of tokens
func rateLimit(l *limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			fail(c, http.StatusTooManyRequests, "Too many attempts. Please try again later.")
			return
		}
		c.Next()
	}
}
