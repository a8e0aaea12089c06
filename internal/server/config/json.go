package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dmitrijs2005/authcore/internal/flagx"
	"github.com/dmitrijs2005/authcore/internal/timex"
)

// JsonConfig mirrors Config for JSON files. Durations use timex.Duration so
// both "15m" and integer nanoseconds are accepted. Only fields present in the
// file override the defaults.
type JsonConfig struct {
	Environment string `json:"environment"`
	LogFormat   string `json:"log_format"`
	LogLevel    string `json:"log_level"`

	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	EndpointAddrGRPC string `json:"endpoint_addr_grpc"`
	DatabaseDSN      string `json:"database_dsn"`

	AccessTokenSecret  string `json:"access_token_secret"`
	RefreshTokenSecret string `json:"refresh_token_secret"`
	EncryptionKey      string `json:"encryption_key"`
	WebhookSecret      string `json:"webhook_secret"`

	TokenIssuer   string `json:"token_issuer"`
	TokenAudience string `json:"token_audience"`

	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	ResetTokenValidityDuration   *timex.Duration `json:"reset_token_validity_duration"`

	StoreTimeout  *timex.Duration `json:"store_timeout"`
	SweepInterval *timex.Duration `json:"sweep_interval"`

	RateLimitBackend     string          `json:"rate_limit_backend"`
	RateLimitMaxAttempts *int            `json:"rate_limit_max_attempts"`
	RateLimitWindow      *timex.Duration `json:"rate_limit_window"`
	RedisAddr            string          `json:"redis_addr"`
	RedisPassword        string          `json:"redis_password"`
	RedisDB              *int            `json:"redis_db"`

	SecretBackend  string `json:"secret_backend"`
	S3RootUser     string `json:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
}

// parseJson overlays values from the file named by -c/-config or
// $AUTHCORE_CONFIG. No file configured is not an error; an unreadable or
// invalid file is.
func parseJson(config *Config) error {
	path := flagx.ConfigFile()
	if path == "" {
		return nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	c.apply(config)
	return nil
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.Environment, c.Environment)
	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.AccessTokenSecret, c.AccessTokenSecret)
	setString(&config.RefreshTokenSecret, c.RefreshTokenSecret)
	setString(&config.EncryptionKey, c.EncryptionKey)
	setString(&config.WebhookSecret, c.WebhookSecret)
	setString(&config.TokenIssuer, c.TokenIssuer)
	setString(&config.TokenAudience, c.TokenAudience)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.ResetTokenValidityDuration, c.ResetTokenValidityDuration)
	setDuration(&config.StoreTimeout, c.StoreTimeout)
	setDuration(&config.SweepInterval, c.SweepInterval)
	setString(&config.RateLimitBackend, c.RateLimitBackend)
	if c.RateLimitMaxAttempts != nil {
		config.RateLimitMaxAttempts = *c.RateLimitMaxAttempts
	}
	setDuration(&config.RateLimitWindow, c.RateLimitWindow)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	setString(&config.SecretBackend, c.SecretBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
