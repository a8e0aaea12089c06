package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/netx"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

const (
	identityKey    = "identity"
	accessTokenKey = "accessToken"
	attemptKeyKey  = "attemptKey"
	requestIDKey   = "requestID"
)

func requestLogger(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(common.RequestIDHeaderName)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(common.RequestIDHeaderName, id)

		c.Next()

		log.Info(c.Request.Context(), "request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}

// requireSession authenticates the bearer token and stores the identity on
// the context. Any failure yields the same 401 body.
func (h *Handler) requireSession(c *gin.Context) {
	token, ok := bearerToken(c.GetHeader(common.AuthorizationHeaderName))
	if !ok {
		abortUnauthorized(c)
		return
	}

	id, err := h.auth.Authenticate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, common.ErrStoreUnavailable) {
			h.log.Error(c.Request.Context(), "session lookup failed", "error", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
			return
		}
		abortUnauthorized(c)
		return
	}

	c.Set(identityKey, id)
	c.Set(accessTokenKey, token)
	c.Next()
}

func bearerToken(header string) (string, bool) {
	if len(header) <= len(common.BearerPrefix) || !strings.EqualFold(header[:len(common.BearerPrefix)], common.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(common.BearerPrefix):])
	return token, token != ""
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": common.ErrInvalidSession.Error()})
}

// IdentityFrom returns the identity set by requireSession.
func IdentityFrom(c *gin.Context) (*services.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*services.Identity)
	return id, ok
}

// rateLimit counts the attempt against "<email>:<client ip>" before the
// handler runs. A limiter store failure blocks the request.
func (h *Handler) rateLimit(c *gin.Context) {
	var peek struct {
		Email string `json:"email"`
	}
	_ = c.ShouldBindBodyWith(&peek, binding.JSON)

	key := netx.AttemptKey(peek.Email, c.ClientIP())
	res, err := h.limiter.Check(c.Request.Context(), key, h.maxAttempts, h.window)
	if err != nil {
		h.log.Error(c.Request.Context(), "rate limit check failed", "error", err)
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	if res.Blocked {
		h.log.Warn(c.Request.Context(), "rate limit exceeded", "path", c.FullPath(), "client_ip", c.ClientIP())
		c.Header("Retry-After", strconv.Itoa(res.RetryAfter(h.now())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":    common.ErrRateLimited.Error(),
			"reset_at": res.ResetAt.UTC().Format(time.RFC3339),
		})
		return
	}

	c.Set(attemptKeyKey, key)
	c.Next()
}
