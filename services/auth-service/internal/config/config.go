package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/vasapolrittideah/crm-identity-api/shared/utilities"
)

const EnvironmentProduction = "production"

// MinPasswordChars is the lowest password length the service accepts.
const MinPasswordChars = 10

// AuthServiceConfig holds the runtime settings of the auth service.
type AuthServiceConfig struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"auth-service"`
	Environment string `env:"APP_ENV"      envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR"    envDefault:":8080"`
	GRPCAddr    string `env:"GRPC_ADDR"    envDefault:":9090"`

	// TrustedProxies lists the CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the socket peer is the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// AppPasswordResetURL is the web client page that consumes ?token=.
	AppPasswordResetURL string `env:"APP_PASSWORD_RESET_URL" envDefault:"http://localhost:5173/reset-password"`

	Mongo         MongoConfig         `envPrefix:"MONGO_"`
	Token         TokenConfig         `envPrefix:"TOKEN_"`
	PasswordReset PasswordResetConfig `envPrefix:"PASSWORD_RESET_"`
	Consul        ConsulConfig        `envPrefix:"CONSUL_"`
	RateLimit     RateLimitConfig     `envPrefix:"HTTP_RATE_LIMIT_"`
}

type MongoConfig struct {
	URI          string        `env:"URI"           envDefault:"mongodb://localhost:27017"`
	Database     string        `env:"DATABASE"      envDefault:"crm"`
	QueryTimeout time.Duration `env:"QUERY_TIMEOUT" envDefault:"5s"`
}

type TokenConfig struct {
	Issuer                string        `env:"ISSUER"                   envDefault:"crm-auth"`
	AccessTokenSecret     string        `env:"ACCESS_TOKEN_SECRET"`
	AccessTokenExpiresIn  time.Duration `env:"ACCESS_TOKEN_EXPIRES_IN"  envDefault:"15m"`
	RefreshTokenSecret    string        `env:"REFRESH_TOKEN_SECRET"`
	RefreshTokenExpiresIn time.Duration `env:"REFRESH_TOKEN_EXPIRES_IN" envDefault:"168h"`
}

// PasswordResetConfig bounds the password recovery flow.
type PasswordResetConfig struct {
	TokenExpiresIn   time.Duration `env:"TOKEN_EXPIRES_IN"   envDefault:"30m"`
	RateWindow       time.Duration `env:"RATE_WINDOW"        envDefault:"60m"`
	MaxPerEmail      int64         `env:"MAX_PER_EMAIL"      envDefault:"3"`
	MaxPerIP         int64         `env:"MAX_PER_IP"         envDefault:"8"`
	UsedRetention    time.Duration `env:"USED_RETENTION"     envDefault:"168h"`
	IPHashSalt       string        `env:"IP_HASH_SALT"`
	MinPasswordChars int           `env:"MIN_PASSWORD_CHARS" envDefault:"10"`
}

type ConsulConfig struct {
	Enabled       bool   `env:"ENABLED"        envDefault:"false"`
	Address       string `env:"ADDRESS"        envDefault:"127.0.0.1:8500"`
	ServiceID     string `env:"SERVICE_ID"`
	AdvertiseHost string `env:"ADVERTISE_HOST" envDefault:"127.0.0.1"`
}

// RateLimitConfig is the in-process token bucket in front of the password endpoints.
type RateLimitConfig struct {
	PerSecond float64 `env:"PER_SECOND" envDefault:"1"`
	Burst     int     `env:"BURST"      envDefault:"5"`
}

// Load parses the configuration from the environment and validates it.
func Load() (*AuthServiceConfig, error) {
	cfg, err := env.ParseAs[AuthServiceConfig]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsProduction reports whether raw reset tokens must never leave the service.
func (c *AuthServiceConfig) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

func (c *AuthServiceConfig) validate() error {
	if c.Token.AccessTokenSecret == "" {
		return errors.New("missing TOKEN_ACCESS_TOKEN_SECRET environment variable")
	}
	if c.Token.RefreshTokenSecret == "" {
		return errors.New("missing TOKEN_REFRESH_TOKEN_SECRET environment variable")
	}
	if c.Token.AccessTokenSecret == c.Token.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.Mongo.QueryTimeout <= 0 {
		return errors.New("MONGO_QUERY_TIMEOUT must be positive")
	}
	if c.PasswordReset.TokenExpiresIn <= 0 || c.PasswordReset.RateWindow <= 0 {
		return errors.New("password reset durations must be positive")
	}
	if c.PasswordReset.MaxPerEmail <= 0 || c.PasswordReset.MaxPerIP <= 0 {
		return errors.New("password reset rate caps must be positive")
	}
	if c.PasswordReset.MinPasswordChars < MinPasswordChars {
		return fmt.Errorf("PASSWORD_RESET_MIN_PASSWORD_CHARS must be at least %d", MinPasswordChars)
	}
	if _, err := utilities.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %w", err)
	}
	if c.IsProduction() && c.PasswordReset.IPHashSalt == "" {
		return errors.New("missing PASSWORD_RESET_IP_HASH_SALT environment variable")
	}

	return nil
}
