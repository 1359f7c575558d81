package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// WebSocket fan-out
	WebSocketPath           string        `env:"WS_PATH" default:"/ws"`
	HeartbeatInterval       time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	ClientTimeout           time.Duration `env:"CLIENT_TIMEOUT" default:"35s"` // informational; eviction is heartbeat driven
	WriteTimeout            time.Duration `env:"WRITE_TIMEOUT" default:"5s"`
	SendBufferSize          int           `env:"SEND_BUFFER_SIZE" default:"16"`
	MaxWebSocketConnections int           `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	InboundRateLimit        float64       `env:"INBOUND_RATE_LIMIT" default:"10"`
	InboundBurst            int           `env:"INBOUND_BURST" default:"20"`
	AllowedOrigins          []string      `env:"WS_ALLOWED_ORIGINS"` // space separated, in addition to APP_URL

	// Events API
	EventsAPIToken     string  `env:"EVENTS_API_TOKEN"`
	EventsAPIRateLimit float64 `env:"EVENTS_API_RATE_LIMIT" default:"50"`

	// Optional infrastructure
	RedisURL         string        `env:"REDIS_URL"`
	BackplaneChannel string        `env:"BACKPLANE_CHANNEL" default:"notifications:updates"`
	InstanceID       string        `env:"INSTANCE_ID"` // defaults to the hostname
	InstanceInterval time.Duration `env:"INSTANCE_HEARTBEAT" default:"15s"`
	DatabaseURL      string        `env:"DATABASE_URL"`
	NotifyChannel    string        `env:"NOTIFY_CHANNEL" default:"notification_changed"`
	RunMigrations    bool          `env:"DATABASE_MIGRATE" default:"true"`
}

// IsDevelopment reports whether the server runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if !strings.HasPrefix(cfg.WebSocketPath, "/") {
		return fmt.Errorf("WS_PATH must start with '/', got %q", cfg.WebSocketPath)
	}
	if cfg.HeartbeatInterval <= 0 {
		return errors.New("HEARTBEAT_INTERVAL must be positive")
	}
	if cfg.ClientTimeout < cfg.HeartbeatInterval {
		return fmt.Errorf("CLIENT_TIMEOUT (%v) must not be shorter than HEARTBEAT_INTERVAL (%v)", cfg.ClientTimeout, cfg.HeartbeatInterval)
	}
	if cfg.WriteTimeout <= 0 {
		return errors.New("WRITE_TIMEOUT must be positive")
	}
	if cfg.SendBufferSize < 1 {
		return errors.New("SEND_BUFFER_SIZE must be at least 1")
	}
	if cfg.MaxWebSocketConnections < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be at least 1")
	}
	if cfg.InboundRateLimit <= 0 || cfg.InboundBurst < 1 {
		return errors.New("INBOUND_RATE_LIMIT must be positive and INBOUND_BURST at least 1")
	}
	if cfg.EventsAPIRateLimit <= 0 {
		return errors.New("EVENTS_API_RATE_LIMIT must be positive")
	}
	if cfg.DatabaseURL != "" && cfg.NotifyChannel == "" {
		return errors.New("NOTIFY_CHANNEL is required when DATABASE_URL is set")
	}
	if cfg.RedisURL != "" && cfg.BackplaneChannel == "" {
		return errors.New("BACKPLANE_CHANNEL is required when REDIS_URL is set")
	}
	if cfg.InstanceInterval <= 0 {
		return errors.New("INSTANCE_HEARTBEAT must be positive")
	}
	if !cfg.IsDevelopment() && cfg.AppURL == "" {
		return errors.New("APP_URL is required outside development")
	}
	return nil
}
