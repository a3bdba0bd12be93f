package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store kinds accepted by SESSION_STORE.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	Debug     bool   `env:"DEBUG" envDefault:"false"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"` // console, json

	Server struct {
		Port            int           `env:"PORT" envDefault:"8080"`
		Origin          string        `env:"ORIGIN" envDefault:"http://localhost:3000"`
		StaticDir       string        `env:"STATIC_DIR" envDefault:"./web"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	}

	// Gate настраивает проверку Pi Browser перед отдачей документов.
	Gate struct {
		Enabled        bool     `env:"GATE_ENABLED" envDefault:"true"`
		PlatformMarker string   `env:"GATE_PLATFORM_MARKER" envDefault:"PiBrowser"`
		ExemptPrefixes []string `env:"GATE_EXEMPT_PREFIXES" envSeparator:"," envDefault:"/pilogin,/account,/_next,/assets,/static,/favicon,/robots,/sitemap,/health,/live,/ready,/metrics"`
	}

	Session struct {
		// Interactive=false mirrors a non-interactive render: no SDK detection at all.
		Interactive   bool          `env:"SESSION_INTERACTIVE" envDefault:"true"`
		VerifyURL     string        `env:"VERIFY_URL" envDefault:"http://localhost:3000/verify"`
		TokenTimeout  time.Duration `env:"SESSION_TOKEN_TIMEOUT" envDefault:"60s"`
		VerifyTimeout time.Duration `env:"SESSION_VERIFY_TIMEOUT" envDefault:"15s"`
		PollInterval  time.Duration `env:"SESSION_SDK_POLL_INTERVAL" envDefault:"300ms"`
		Store         string        `env:"SESSION_STORE" envDefault:"file"` // file, redis, memory
		FilePath      string        `env:"SESSION_FILE"`
		BridgePath    string        `env:"PI_SDK_BRIDGE"`
		ListenAddr    string        `env:"SESSION_LISTEN_ADDR" envDefault:"127.0.0.1:7070"`
		// Only honoured by binaries built with -tags devlogin.
		DevAutoLogin bool `env:"SESSION_DEV_AUTOLOGIN" envDefault:"false"`
	}

	Redis struct {
		Addr      string `env:"REDIS_ADDR" envDefault:""`
		Password  string `env:"REDIS_PASSWORD" envDefault:""`
		DB        int    `env:"REDIS_DB" envDefault:"0"`
		KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"storefront:"`
	}
}

// Load reads .env (if present) and the process environment into Config.
func Load() (*Config, error) {
	// .env отсутствует в production, переменные задаются напрямую
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	prefixes := c.Gate.ExemptPrefixes[:0]
	for _, p := range c.Gate.ExemptPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	c.Gate.ExemptPrefixes = prefixes
	c.Session.Store = strings.ToLower(strings.TrimSpace(c.Session.Store))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
}

// Validate checks values env parsing cannot express.
func (c *Config) Validate() error {
	for _, p := range c.Gate.ExemptPrefixes {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("invalid GATE_EXEMPT_PREFIXES entry %q: must start with /", p)
		}
	}
	if c.Gate.Enabled && strings.TrimSpace(c.Gate.PlatformMarker) == "" {
		return fmt.Errorf("GATE_PLATFORM_MARKER must be set when gating is enabled")
	}
	switch c.Session.Store {
	case StoreFile, StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR must be set when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("invalid SESSION_STORE %q", c.Session.Store)
	}
	if c.Session.PollInterval <= 0 {
		return fmt.Errorf("SESSION_SDK_POLL_INTERVAL must be positive")
	}
	if c.Session.TokenTimeout <= 0 || c.Session.VerifyTimeout <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	return nil
}

// Addr returns the listen address of the document server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
