// Package server provides configuration helpers that define runtime defaults,
// validation, and environment loading for the relay service.
package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"

	"github.com/Tyrowin/gochat-relay/internal/userstore"
)

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 4096
	defaultSendBufferSize  = 256
	defaultTokenQueryParam = "token"
	defaultShutdownTimeout = 10 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultPingInterval    = 54 * time.Second
	defaultWriteWait       = 10 * time.Second
)

// Config holds the server configuration settings including security controls.
type Config struct {
	Port             string   `validate:"required"`
	AllowedOrigins   []string `validate:"dive,required"`
	MaxMessageSize   int64    `validate:"gt=0"`
	SendBufferSize   int      `validate:"gt=0"`
	JWTSecret        string   `validate:"required,min=16"`
	TokenQueryParam  string   `validate:"required"`
	UserStore        string   `validate:"oneof=badger sqlite memory"`
	BadgerPath       string   `validate:"required_if=UserStore badger"`
	SQLitePath       string   `validate:"required_if=UserStore sqlite"`
	LogLevel         string
	MetricsNamespace string
	ShutdownTimeout  time.Duration `validate:"gt=0"`
	PongWait         time.Duration `validate:"gt=0"`
	PingInterval     time.Duration `validate:"gt=0,ltfield=PongWait"`
	WriteWait        time.Duration `validate:"gt=0"`
}

// envConfig mirrors Config as it appears in the environment.
type envConfig struct {
	Port             string        `env:"SERVER_PORT,default=:8080"`
	AllowedOrigins   string        `env:"ALLOWED_ORIGINS,default=http://localhost:8080"`
	MaxMessageSize   int           `env:"MAX_MESSAGE_SIZE,default=4096"`
	SendBufferSize   int           `env:"SEND_BUFFER_SIZE,default=256"`
	JWTSecret        string        `env:"JWT_SECRET"`
	TokenQueryParam  string        `env:"TOKEN_QUERY_PARAM,default=token"`
	UserStore        string        `env:"USER_STORE,default=badger"`
	BadgerPath       string        `env:"BADGER_PATH,default=./data/users"`
	SQLitePath       string        `env:"SQLITE_PATH,default=./gochat.db"`
	LogLevel         string        `env:"LOG_LEVEL,default=INFO"`
	MetricsNamespace string        `env:"METRICS_NAMESPACE,default=gochat"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

var validate = validator.New()

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:   defaultMaxMessageSize,
		SendBufferSize:   defaultSendBufferSize,
		TokenQueryParam:  defaultTokenQueryParam,
		UserStore:        userstore.BackendBadger,
		BadgerPath:       "./data/users",
		SQLitePath:       "./gochat.db",
		LogLevel:         "INFO",
		MetricsNamespace: "gochat",
		ShutdownTimeout:  defaultShutdownTimeout,
		PongWait:         defaultPongWait,
		PingInterval:     defaultPingInterval,
		WriteWait:        defaultWriteWait,
	}
}

// sanitizeConfig replaces zero or negative values with defaults.
func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.TokenQueryParam == "" {
		cfg.TokenQueryParam = defaultTokenQueryParam
	}
	if cfg.UserStore == "" {
		cfg.UserStore = userstore.BackendBadger
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}
	cfg.Port = normalizePort(cfg.Port)
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config from environment variables, falling back
// to defaults for unset values. The result is sanitized but not validated.
func NewConfigFromEnv() (*Config, error) {
	var raw envConfig
	if _, err := env.UnmarshalFromEnviron(&raw); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := defaultConfig()
	cfg.Port = raw.Port
	cfg.AllowedOrigins = parseOrigins(raw.AllowedOrigins)
	cfg.MaxMessageSize = int64(raw.MaxMessageSize)
	cfg.SendBufferSize = raw.SendBufferSize
	cfg.JWTSecret = raw.JWTSecret
	cfg.TokenQueryParam = raw.TokenQueryParam
	cfg.UserStore = raw.UserStore
	cfg.BadgerPath = raw.BadgerPath
	cfg.SQLitePath = raw.SQLitePath
	cfg.LogLevel = raw.LogLevel
	cfg.MetricsNamespace = raw.MetricsNamespace
	cfg.ShutdownTimeout = raw.ShutdownTimeout

	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// normalizePort accepts "8080" as shorthand for ":8080".
func normalizePort(port string) string {
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
