package app

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for Config.
const (
	DefaultDispatcher  = "http"
	DefaultHTTPTimeout = 30 * time.Second
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPaths []string // .hcl and .json files or directories

	LogFormat string
	LogLevel  string
	// Port serves the HTTP API; 0 picks a free port.
	Port int

	Trackers          []string
	TrackingURL       string
	TrackingNamespace string
	Dispatcher        string
	HTTPTimeout       time.Duration
	// BotToken is sent as is when set; otherwise TokenSource is consulted.
	BotToken      string
	TokenSource   string
	TokenVariable string

	// StateURL hydrates the form from a shared URL before connecting.
	StateURL string
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ConfigPaths) == 0 {
		return nil, errors.New("at least one configuration path is required")
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	if cfg.Port < 0 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Dispatcher == "" {
		cfg.Dispatcher = DefaultDispatcher
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}
	return &cfg, nil
}
