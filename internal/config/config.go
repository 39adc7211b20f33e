package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// devSigningKey is the fallback HMAC key used when TOKEN_SIGNING_KEY is not
// set. Validate() refuses it in production.
const devSigningKey = "medreg-dev-signing-key-do-not-use-in-prod"

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	NATSURL     string `mapstructure:"NATS_URL"`
	EventStream string `mapstructure:"EVENT_STREAM"`

	TokenSigningKey string        `mapstructure:"TOKEN_SIGNING_KEY"`
	TokenTTL        time.Duration `mapstructure:"TOKEN_TTL"`
	TokenClockSkew  time.Duration `mapstructure:"TOKEN_CLOCK_SKEW"`

	ProvisionSubject      string        `mapstructure:"PROVISION_SUBJECT"`
	ProvisionTimeout      time.Duration `mapstructure:"PROVISION_TIMEOUT"`
	ProvisionMaxRetries   int           `mapstructure:"PROVISION_MAX_RETRIES"`
	ProvisionRetryBackoff time.Duration `mapstructure:"PROVISION_RETRY_BACKOFF"`

	PublishMaxRetries   int           `mapstructure:"PUBLISH_MAX_RETRIES"`
	PublishRetryBackoff time.Duration `mapstructure:"PUBLISH_RETRY_BACKOFF"`

	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("EVENT_STREAM", "PATIENTS")
	v.SetDefault("TOKEN_SIGNING_KEY", devSigningKey)
	v.SetDefault("TOKEN_TTL", "30m")
	v.SetDefault("TOKEN_CLOCK_SKEW", "30s")
	v.SetDefault("PROVISION_SUBJECT", "billing.provision")
	v.SetDefault("PROVISION_TIMEOUT", "3s")
	v.SetDefault("PROVISION_MAX_RETRIES", 3)
	v.SetDefault("PROVISION_RETRY_BACKOFF", "200ms")
	v.SetDefault("PUBLISH_MAX_RETRIES", 3)
	v.SetDefault("PUBLISH_RETRY_BACKOFF", "200ms")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"NATS_URL", "EVENT_STREAM",
		"TOKEN_SIGNING_KEY", "TOKEN_TTL", "TOKEN_CLOCK_SKEW",
		"PROVISION_SUBJECT", "PROVISION_TIMEOUT", "PROVISION_MAX_RETRIES", "PROVISION_RETRY_BACKOFF",
		"PUBLISH_MAX_RETRIES", "PUBLISH_RETRY_BACKOFF",
		"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.IsDev() && cfg.TokenSigningKey == devSigningKey {
		log.Println("WARNING: using the built-in development signing key.")
		log.Println("WARNING: set TOKEN_SIGNING_KEY before deploying anywhere real.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. DATABASE_URL is
// always required by the servers that persist state; the development signing
// key is rejected outside development.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() && c.TokenSigningKey == devSigningKey {
		return fmt.Errorf("TOKEN_SIGNING_KEY is required in production; refusing to start with the development key")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.ProvisionMaxRetries < 0 || c.PublishMaxRetries < 0 {
		return fmt.Errorf("retry counts must not be negative")
	}
	return nil
}
