// Package httpapi exposes the authentication surface over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/ratelimit"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/dmitrijs2005/authcore/internal/server/webhook"
	"github.com/gin-gonic/gin"
)

// MaxRequestBodyBytes caps every request body.
const MaxRequestBodyBytes = 1 << 20

const shutdownTimeout = 10 * time.Second

// Authenticator is the part of services.AuthService the handlers use.
type Authenticator interface {
	Register(ctx context.Context, email, password string, meta models.ClientMeta) (*models.Account, *services.TokenPair, error)
	Login(ctx context.Context, email, password string, meta models.ClientMeta) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (*services.Identity, error)
	Logout(ctx context.Context, accessToken string) error
	LogoutAll(ctx context.Context, accountID string) (int64, error)
	Sessions(ctx context.Context, accountID string) ([]models.Session, error)
	Account(ctx context.Context, accountID string) (*models.Account, error)
}

// PasswordResetter is the part of services.PasswordResetFlow the handlers use.
type PasswordResetter interface {
	RequestReset(ctx context.Context, email string) error
	ConsumeReset(ctx context.Context, token, newPassword string) error
}

// CredentialVault is the part of services.LinkedSecretService the handlers use.
type CredentialVault interface {
	Store(ctx context.Context, accountID, provider string, plaintext []byte) error
	Delete(ctx context.Context, accountID, provider string) error
}

// Deps collects what the router needs. Webhooks may be nil, in which case
// the webhook routes are not registered.
type Deps struct {
	Auth     Authenticator
	Reset    PasswordResetter
	Vault    CredentialVault
	Limiter  *ratelimit.Limiter
	Webhooks *webhook.Verifier
	Log      logging.Logger

	MaxAttempts int
	Window      time.Duration
}

type Handler struct {
	auth        Authenticator
	reset       PasswordResetter
	vault       CredentialVault
	limiter     *ratelimit.Limiter
	log         logging.Logger
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewRouter wires gin routes and middleware.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = logging.Nop{}
	}
	log = log.With("module", "http")

	h := &Handler{
		auth:        d.Auth,
		reset:       d.Reset,
		vault:       d.Vault,
		limiter:     d.Limiter,
		log:         log,
		maxAttempts: d.MaxAttempts,
		window:      d.Window,
		now:         time.Now,
	}

	r := gin.New()
	// ClientIP is the TCP peer; forwarded headers are client controlled.
	_ = r.SetTrustedProxies(nil)
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(limitBody(MaxRequestBodyBytes))

	r.GET("/healthz", h.Health)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", h.rateLimit, h.Register)
			authGroup.POST("/login", h.rateLimit, h.Login)
			authGroup.POST("/refresh", h.Refresh)
			authGroup.POST("/logout", h.requireSession, h.Logout)
			authGroup.POST("/logout-all", h.requireSession, h.LogoutAll)
			authGroup.GET("/me", h.requireSession, h.Me)
			authGroup.GET("/sessions", h.requireSession, h.Sessions)

			password := authGroup.Group("/password")
			{
				password.POST("/forgot", h.rateLimit, h.Forgot)
				password.POST("/reset", h.rateLimit, h.ResetPassword)
			}
		}

		institutions := api.Group("/institutions/:provider", h.requireSession)
		{
			institutions.PUT("/credential", h.PutCredential)
			institutions.DELETE("/credential", h.DeleteCredential)
		}

		if d.Webhooks != nil {
			api.POST("/webhooks/payments", d.Webhooks.Middleware(log), h.PaymentWebhook)
		} else {
			log.Warn(context.Background(), "webhook secret not configured, webhook routes disabled")
		}
	}

	return r
}

// Server runs an http.Server until its context is cancelled.
type Server struct {
	address string
	handler http.Handler
	logger  logging.Logger
}

func NewServer(address string, handler http.Handler, l logging.Logger) *Server {
	return &Server{address: address, handler: handler, logger: l.With("module", "http_server")}
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen and shuts down gracefully when ctx is done.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
