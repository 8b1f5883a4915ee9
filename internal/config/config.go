// Package config loads the backend configuration from the environment. A
// local .env file is honoured when present so development setups do not need
// exported variables.
package config

import (
	"fmt"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the root configuration for the server process.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Auth     AuthConfig
	Unlock   UnlockConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string `env:"SERVER_HOST,default=0.0.0.0"`
	Port            int    `env:"SERVER_PORT,default=8080"`
	ReadTimeoutSec  int    `env:"SERVER_READ_TIMEOUT,default=15"`
	WriteTimeoutSec int    `env:"SERVER_WRITE_TIMEOUT,default=30"`
	RateLimitRPS    int    `env:"SERVER_RATE_LIMIT_RPS,default=20"`
	RateLimitBurst  int    `env:"SERVER_RATE_LIMIT_BURST,default=40"`
}

// DatabaseConfig selects the persistence backend. Store is "memory" or
// "postgres"; DSN is required for postgres.
type DatabaseConfig struct {
	Store           string `env:"DATABASE_STORE,default=memory"`
	DSN             string `env:"DATABASE_URL,default="`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME,default=300"`
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info"`
	Format     string `env:"LOG_FORMAT,default=text"`
	Output     string `env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"LOG_FILE_PREFIX,default=muselink"`
}

// AuthConfig governs JWT issuance.
type AuthConfig struct {
	JWTSecret   string `env:"JWT_SECRET,default=dev-secret-change-me"`
	TokenTTLMin int    `env:"JWT_TTL_MINUTES,default=1440"`
}

// UnlockConfig tunes the credit-gated unlock protocol.
type UnlockConfig struct {
	// CloseOnQuota flips a request to closed once its unlock quota is
	// reached. Disabling it leaves requests open for manual closing.
	CloseOnQuota bool `env:"UNLOCK_CLOSE_ON_QUOTA,default=true"`
	// SignupCredits are granted to newly registered artists.
	SignupCredits int64 `env:"ARTIST_SIGNUP_CREDITS,default=0"`
	// SweepIntervalSec controls how often expired requests are closed.
	SweepIntervalSec int `env:"REQUEST_SWEEP_INTERVAL,default=300"`
}

// Load reads configuration from the environment, honouring a .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Database.Store = strings.TrimSpace(strings.ToLower(c.Database.Store))
	switch c.Database.Store {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown DATABASE_STORE %q (expected memory or postgres)", c.Database.Store)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.Unlock.SignupCredits < 0 {
		return fmt.Errorf("ARTIST_SIGNUP_CREDITS cannot be negative")
	}
	return nil
}
