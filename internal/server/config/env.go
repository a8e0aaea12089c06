package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/authcore/internal/filex"
)

const envPrefix = "AUTHCORE_"

// parseEnv overlays AUTHCORE_* environment variables. Each secret may also be
// provided as a path through the matching *_FILE variable, which wins over
// the inline value.
func parseEnv(config *Config) error {
	envString("ENVIRONMENT", &config.Environment)
	envString("LOG_FORMAT", &config.LogFormat)
	envString("LOG_LEVEL", &config.LogLevel)
	envString("HTTP_ADDR", &config.EndpointAddrHTTP)
	envString("GRPC_ADDR", &config.EndpointAddrGRPC)
	envString("DATABASE_DSN", &config.DatabaseDSN)
	envString("TOKEN_ISSUER", &config.TokenIssuer)
	envString("TOKEN_AUDIENCE", &config.TokenAudience)
	envString("RATE_LIMIT_BACKEND", &config.RateLimitBackend)
	envString("REDIS_ADDR", &config.RedisAddr)
	envString("REDIS_PASSWORD", &config.RedisPassword)
	envString("SECRET_BACKEND", &config.SecretBackend)
	envString("S3_ROOT_USER", &config.S3RootUser)
	envString("S3_ROOT_PASSWORD", &config.S3RootPassword)
	envString("S3_BUCKET", &config.S3Bucket)
	envString("S3_REGION", &config.S3Region)
	envString("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)

	for name, dst := range map[string]*string{
		"ACCESS_TOKEN_SECRET":  &config.AccessTokenSecret,
		"REFRESH_TOKEN_SECRET": &config.RefreshTokenSecret,
		"ENCRYPTION_KEY":       &config.EncryptionKey,
		"WEBHOOK_SECRET":       &config.WebhookSecret,
	} {
		if err := envSecret(name, dst); err != nil {
			return err
		}
	}

	for name, dst := range map[string]*time.Duration{
		"ACCESS_TOKEN_TTL":  &config.AccessTokenValidityDuration,
		"REFRESH_TOKEN_TTL": &config.RefreshTokenValidityDuration,
		"RESET_TOKEN_TTL":   &config.ResetTokenValidityDuration,
		"STORE_TIMEOUT":     &config.StoreTimeout,
		"SWEEP_INTERVAL":    &config.SweepInterval,
		"RATE_LIMIT_WINDOW": &config.RateLimitWindow,
	} {
		if err := envDuration(name, dst); err != nil {
			return err
		}
	}

	for name, dst := range map[string]*int{
		"RATE_LIMIT_MAX_ATTEMPTS": &config.RateLimitMaxAttempts,
		"REDIS_DB":                &config.RedisDB,
	} {
		if err := envInt(name, dst); err != nil {
			return err
		}
	}

	return nil
}

func envString(name string, dst *string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok && v != "" {
		*dst = v
	}
}

func envSecret(name string, dst *string) error {
	envString(name, dst)
	if path, ok := os.LookupEnv(envPrefix + name + "_FILE"); ok && path != "" {
		v, err := filex.ReadSecretFile(path)
		if err != nil {
			return fmt.Errorf("%s%s_FILE: %w", envPrefix, name, err)
		}
		*dst = v
	}
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	*dst = d
	return nil
}

func envInt(name string, dst *int) error {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s%s: %w", envPrefix, name, err)
	}
	*dst = n
	return nil
}
