// Package config provides environment-based configuration for the travel-buddy client.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the travel-buddy client and its dev server.
type Config struct {
	// Remote API
	APIBaseURL  string        `yaml:"api_base_url"`
	WSBaseURL   string        `yaml:"ws_base_url"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// Session persistence directory (badger).
	SessionDir string `yaml:"session_dir"`

	// TripCacheTTL bounds how long the my-trips list is served without a re-fetch.
	TripCacheTTL time.Duration `yaml:"trip_cache_ttl"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Chat      ChatConfig      `yaml:"chat"`
	DevServer DevServerConfig `yaml:"devserver"`
}

// ChatConfig holds chat transport configuration.
type ChatConfig struct {
	MaxReconnects    int           `yaml:"max_reconnects"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
	// RefreshSkew is how close to expiry the access token may be when a
	// room is opened; the handshake itself cannot recover from a 401.
	RefreshSkew time.Duration `yaml:"refresh_skew"`
}

// DevServerConfig holds configuration for the in-memory development backend.
type DevServerConfig struct {
	Addr      string        `yaml:"addr"`
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// ConfigFileEnv names the environment variable pointing at an optional YAML file.
const ConfigFileEnv = "TRAVELBUDDY_CONFIG"

func defaults() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &Config{
		APIBaseURL:      "http://localhost:8000/api",
		WSBaseURL:       "ws://localhost:8000/ws",
		HTTPTimeout:     30 * time.Second,
		SessionDir:      filepath.Join(home, ".travelbuddy", "session"),
		TripCacheTTL:    time.Minute,
		LogLevel:        "info",
		LogJSON:         false,
		ShutdownTimeout: 10 * time.Second,
		Chat: ChatConfig{
			MaxReconnects:    5,
			ReconnectBackoff: 2 * time.Second,
			RefreshSkew:      time.Minute,
		},
		DevServer: DevServerConfig{
			Addr:      ":8000",
			JWTSecret: "development-secret-key-min-32-chars",
			TokenTTL:  15 * time.Minute,
		},
	}
}

// Load reads configuration from the optional YAML file and then environment variables.
// Environment variables take precedence over the file.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not read the YAML file or validate, useful for testing.
func LoadWithDefaults() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.APIBaseURL = getEnv("API_BASE_URL", c.APIBaseURL)
	c.WSBaseURL = getEnv("WS_BASE_URL", c.WSBaseURL)
	c.HTTPTimeout = getDurationEnv("HTTP_TIMEOUT", c.HTTPTimeout)
	c.SessionDir = getEnv("SESSION_DIR", c.SessionDir)
	c.TripCacheTTL = getDurationEnv("TRIP_CACHE_TTL", c.TripCacheTTL)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogJSON = getBoolEnv("LOG_JSON", c.LogJSON)
	c.ShutdownTimeout = getDurationEnv("SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.Chat.MaxReconnects = getIntEnv("CHAT_MAX_RECONNECTS", c.Chat.MaxReconnects)
	c.Chat.ReconnectBackoff = getDurationEnv("CHAT_RECONNECT_BACKOFF", c.Chat.ReconnectBackoff)
	c.Chat.RefreshSkew = getDurationEnv("CHAT_REFRESH_SKEW", c.Chat.RefreshSkew)
	c.DevServer.Addr = getEnv("DEVSERVER_ADDR", c.DevServer.Addr)
	c.DevServer.JWTSecret = getEnv("DEVSERVER_JWT_SECRET", c.DevServer.JWTSecret)
	c.DevServer.TokenTTL = getDurationEnv("DEVSERVER_TOKEN_TTL", c.DevServer.TokenTTL)
}

// Validate checks that required configuration values are set and well formed.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("API_BASE_URL must be an http(s) URL, got %q", c.APIBaseURL)
	}
	if c.WSBaseURL == "" {
		return fmt.Errorf("WS_BASE_URL is required")
	}
	if u, err := url.Parse(c.WSBaseURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return fmt.Errorf("WS_BASE_URL must be a ws(s) URL, got %q", c.WSBaseURL)
	}
	if c.Chat.MaxReconnects < 0 {
		return fmt.Errorf("CHAT_MAX_RECONNECTS must not be negative")
	}
	if c.Chat.ReconnectBackoff < 0 {
		return fmt.Errorf("CHAT_RECONNECT_BACKOFF must not be negative")
	}
	if c.Chat.RefreshSkew < 0 {
		return fmt.Errorf("CHAT_REFRESH_SKEW must not be negative")
	}
	if len(c.DevServer.JWTSecret) < 32 {
		return fmt.Errorf("DEVSERVER_JWT_SECRET must be at least 32 characters")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
