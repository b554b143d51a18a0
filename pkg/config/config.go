package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ighub/pkg/logger"
)

// Config holds all configuration options for the hub.
type Config struct {
	// HTTP API server settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Session and event persistence
	Store StoreConfig `yaml:"store" json:"store"`

	// Webhook delivery settings
	Webhook WebhookConfig `yaml:"webhook" json:"webhook"`

	// Per-account activity polling settings
	Monitor MonitorConfig `yaml:"monitor" json:"monitor"`

	// Rate limiting for the Instagram client
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry behavior for transient Instagram errors
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Logging configuration
	Logging logger.Config `yaml:"logging" json:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	AuthToken string `yaml:"auth_token" json:"auth_token"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	SessionsPath string `yaml:"sessions_path" json:"sessions_path"`
	EventsPath   string `yaml:"events_path" json:"events_path"`
	Encrypt      bool   `yaml:"encrypt" json:"encrypt"`
}

// WebhookConfig holds webhook delivery configuration.
type WebhookConfig struct {
	URL     string        `yaml:"url" json:"url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// MonitorConfig holds activity polling configuration. The limits bound
// remote-call volume per cycle; the delays keep the poller under
// Instagram's rate limits.
type MonitorConfig struct {
	ThreadLimit       int           `yaml:"thread_limit" json:"thread_limit"`
	MessagesPerThread int           `yaml:"messages_per_thread" json:"messages_per_thread"`
	MediaLimit        int           `yaml:"media_limit" json:"media_limit"`
	CommentsPerMedia  int           `yaml:"comments_per_media" json:"comments_per_media"`
	InterCheckDelay   time.Duration `yaml:"inter_check_delay" json:"inter_check_delay"`
	CycleDelay        time.Duration `yaml:"cycle_delay" json:"cycle_delay"`
	ErrorBackoff      time.Duration `yaml:"error_backoff" json:"error_backoff"`
	AutoStart         bool          `yaml:"auto_start" json:"auto_start"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// RetryConfig holds retry configuration for the Instagram client.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" json:"max_delay"`
	Multiplier   float64       `yaml:"multiplier" json:"multiplier"`
}

// DefaultConfig returns a Config instance with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Store: StoreConfig{
			SessionsPath: "./data/sessions.json",
			EventsPath:   "./data/events.json",
			Encrypt:      false,
		},
		Webhook: WebhookConfig{
			Timeout: 30 * time.Second,
		},
		Monitor: MonitorConfig{
			ThreadLimit:       3,
			MessagesPerThread: 3,
			MediaLimit:        1,
			CommentsPerMedia:  5,
			InterCheckDelay:   10 * time.Second,
			CycleDelay:        2 * time.Minute,
			ErrorBackoff:      5 * time.Minute,
			AutoStart:         true,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 2 * time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   2.0,
		},
		Logging: logger.Config{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if host := os.Getenv("IGHUB_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("IGHUB_PORT"); port != "" {
		if val, err := strconv.Atoi(port); err == nil && val > 0 {
			c.Server.Port = val
		}
	}
	if token := os.Getenv("IGHUB_AUTH_TOKEN"); token != "" {
		c.Server.AuthToken = token
	}
	if url := os.Getenv("IGHUB_WEBHOOK_URL"); url != "" {
		c.Webhook.URL = url
	}
	if path := os.Getenv("IGHUB_SESSIONS_PATH"); path != "" {
		c.Store.SessionsPath = path
	}
	if path := os.Getenv("IGHUB_EVENTS_PATH"); path != "" {
		c.Store.EventsPath = path
	}
	if encrypt := os.Getenv("IGHUB_ENCRYPT_SESSIONS"); encrypt != "" {
		c.Store.Encrypt = strings.ToLower(encrypt) == "true"
	}
	if rpm := os.Getenv("IGHUB_REQUESTS_PER_MINUTE"); rpm != "" {
		if val, err := strconv.Atoi(rpm); err == nil && val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if cycle := os.Getenv("IGHUB_CYCLE_DELAY"); cycle != "" {
		if d, err := time.ParseDuration(cycle); err == nil && d > 0 {
			c.Monitor.CycleDelay = d
		}
	}
	if autoStart := os.Getenv("IGHUB_MONITOR_AUTO_START"); autoStart != "" {
		c.Monitor.AutoStart = strings.ToLower(autoStart) == "true"
	}
	if logLevel := os.Getenv("IGHUB_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".ighub.yaml",
		".ighub.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "ighub", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".ighub.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server port must be between 1 and 65535"))
	}
	if c.Store.SessionsPath == "" {
		errs = append(errs, errors.New("sessions path is required"))
	}
	if c.Webhook.Timeout <= 0 {
		errs = append(errs, errors.New("webhook timeout must be positive"))
	}
	if c.Monitor.ThreadLimit <= 0 {
		errs = append(errs, errors.New("monitor thread limit must be positive"))
	}
	if c.Monitor.MessagesPerThread <= 0 {
		errs = append(errs, errors.New("monitor messages per thread must be positive"))
	}
	if c.Monitor.MediaLimit <= 0 {
		errs = append(errs, errors.New("monitor media limit must be positive"))
	}
	if c.Monitor.CommentsPerMedia <= 0 {
		errs = append(errs, errors.New("monitor comments per media must be positive"))
	}
	if c.Monitor.CycleDelay <= 0 {
		errs = append(errs, errors.New("monitor cycle delay must be positive"))
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.Retry.MaxAttempts < 0 {
		errs = append(errs, errors.New("retry max attempts cannot be negative"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Environment variables > .env file > Config file > Defaults
func Load(configPath string) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".ighub.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
