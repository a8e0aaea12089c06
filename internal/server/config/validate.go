package config

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authcore/internal/cryptox"
)

// MinSigningSecretLength is the minimum byte length of each HS256 secret.
const MinSigningSecretLength = 32

// Validate checks the startup preconditions. Any error means the process must
// not start serving.
func (c *Config) Validate() error {
	var errs []error

	if len(c.AccessTokenSecret) < MinSigningSecretLength {
		errs = append(errs, fmt.Errorf("access token secret must be at least %d bytes", MinSigningSecretLength))
	}
	if len(c.RefreshTokenSecret) < MinSigningSecretLength {
		errs = append(errs, fmt.Errorf("refresh token secret must be at least %d bytes", MinSigningSecretLength))
	}
	if c.AccessTokenSecret != "" && c.AccessTokenSecret == c.RefreshTokenSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}
	if _, err := cryptox.ParseKey(c.EncryptionKey); err != nil {
		errs = append(errs, fmt.Errorf("encryption key: %w", err))
	}

	if c.TokenIssuer == "" || c.TokenAudience == "" {
		errs = append(errs, errors.New("token issuer and audience are required"))
	}
	if c.AccessTokenValidityDuration <= 0 || c.RefreshTokenValidityDuration <= 0 || c.ResetTokenValidityDuration <= 0 {
		errs = append(errs, errors.New("token validity durations must be positive"))
	}
	if c.AccessTokenValidityDuration >= c.RefreshTokenValidityDuration {
		errs = append(errs, errors.New("access token validity must be shorter than refresh token validity"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("store timeout must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}

	if c.RateLimitMaxAttempts < 1 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limit attempts and window must be positive"))
	}
	switch c.RateLimitBackend {
	case RateLimitBackendMemory:
	case RateLimitBackendRedis:
		if c.RedisAddr == "" {
			errs = append(errs, errors.New("redis rate limit backend requires a redis address"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit backend %q", c.RateLimitBackend))
	}

	switch c.SecretBackend {
	case SecretBackendPostgres:
	case SecretBackendS3:
		if c.S3Bucket == "" || c.S3Region == "" {
			errs = append(errs, errors.New("s3 secret backend requires bucket and region"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown secret backend %q", c.SecretBackend))
	}

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}

	return errors.Join(errs...)
}
