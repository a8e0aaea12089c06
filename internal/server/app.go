// Package server initializes and runs the authcore service.
// It opens the database, applies migrations, wires the session, reset and
// credential services, and runs the HTTP and gRPC servers together with the
// background sweeper until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/httpapi"
	"github.com/dmitrijs2005/authcore/internal/server/ratelimit"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/secrets"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/dmitrijs2005/authcore/internal/server/webhook"
	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	gs "github.com/dmitrijs2005/authcore/internal/server/grpc"
)

const memoryPruneInterval = time.Minute

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	redis  *redis.Client

	auth    *services.AuthService
	reset   *services.PasswordResetFlow
	secrets *services.LinkedSecretService
	sweeper *services.Sweeper

	limiter     *ratelimit.Limiter
	memoryStore *ratelimit.MemoryStore
	webhooks    *webhook.Verifier
}

// NewApp wires every component from c. c must already have passed Validate.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.New(os.Stdout, c.LogFormat, c.LogLevel)

	if c.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app := &App{config: c, logger: logger, db: db}
	if err := app.init(ctx); err != nil {
		app.close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context) error {
	c := app.config

	var opts []repomanager.Option
	if c.SecretBackend == config.SecretBackendS3 {
		client, err := secrets.NewS3Client(ctx, secrets.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			BaseEndpoint: c.S3BaseEndpoint,
		})
		if err != nil {
			return fmt.Errorf("s3 init error: %w", err)
		}
		opts = append(opts, repomanager.WithSecretsBackend(secrets.NewS3Repository(client, c.S3Bucket)))
	}
	rm := repomanager.NewPostgresRepositoryManager(opts...)

	if err := rm.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	tokens, err := auth.NewTokenService(auth.Options{
		AccessSecret:  []byte(c.AccessTokenSecret),
		RefreshSecret: []byte(c.RefreshTokenSecret),
		Issuer:        c.TokenIssuer,
		Audience:      c.TokenAudience,
	})
	if err != nil {
		return err
	}

	hasher, err := cryptox.NewPasswordHasher(cryptox.DefaultPasswordParams)
	if err != nil {
		return err
	}

	key, err := cryptox.ParseKey(c.EncryptionKey)
	if err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}
	cipher, err := cryptox.NewSecretCipher(key)
	if err != nil {
		return err
	}

	sessions := services.NewSessionStore(app.db, rm, c.StoreTimeout)
	app.auth = services.NewAuthService(app.db, rm, tokens, sessions, hasher, services.AuthOptions{
		AccessTTL:  c.AccessTokenValidityDuration,
		RefreshTTL: c.RefreshTokenValidityDuration,
		Timeout:    c.StoreTimeout,
	}, app.logger)
	app.reset = services.NewPasswordResetFlow(app.db, rm, tokens, hasher,
		services.LogNotifier{Log: app.logger}, c.ResetTokenValidityDuration, c.StoreTimeout, app.logger)
	app.secrets = services.NewLinkedSecretService(app.db, rm, cipher, c.StoreTimeout, app.logger)

	app.sweeper = services.NewSweeper(c.SweepInterval, app.logger,
		services.SweepJob{Name: "sessions", Fn: sessions.SweepExpired},
		services.SweepJob{Name: "reset_tokens", Fn: app.reset.SweepExpired},
	)

	switch c.RateLimitBackend {
	case config.RateLimitBackendRedis:
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		app.limiter = ratelimit.NewLimiter(ratelimit.NewRedisStore(app.redis, ratelimit.DefaultRedisPrefix))
	default:
		app.memoryStore = ratelimit.NewMemoryStore()
		app.limiter = ratelimit.NewLimiter(app.memoryStore)
	}

	if c.WebhooksEnabled() {
		app.webhooks, err = webhook.NewVerifier([]byte(c.WebhookSecret))
		if err != nil {
			return err
		}
	} else {
		app.logger.Warn(ctx, "webhook secret not set, webhook endpoints are disabled")
	}

	return nil
}

func (app *App) close() {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error(context.Background(), "redis close", "error", err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(context.Background(), "db close", "error", err)
		}
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.auth)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	router := httpapi.NewRouter(httpapi.Deps{
		Auth:        app.auth,
		Reset:       app.reset,
		Vault:       app.secrets,
		Limiter:     app.limiter,
		Webhooks:    app.webhooks,
		Log:         app.logger,
		MaxAttempts: app.config.RateLimitMaxAttempts,
		Window:      app.config.RateLimitWindow,
	})

	s := httpapi.NewServer(app.config.EndpointAddrHTTP, router, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	if app.memoryStore != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.memoryStore.Run(ctx, memoryPruneInterval)
		}()
	}

	wg.Wait()

	app.close()
	app.logger.Info(context.Background(), "App stopped")

}
