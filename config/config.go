// Package config loads service configuration from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultMaxFileSize is the default maximum upload size (50MB)
	DefaultMaxFileSize = 50 * 1024 * 1024

	// DefaultPort is the default server port
	DefaultPort = "8080"

	// DefaultProcessorURL is where the processing service listens in development
	DefaultProcessorURL = "http://localhost:8000"
)

// Config holds all configuration for the service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Upload    UploadConfig    `yaml:"upload"`
	Render    RenderConfig    `yaml:"render"`
	Processor ProcessorConfig `yaml:"processor"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port             string        `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

type UploadConfig struct {
	MaxFileSize int64 `yaml:"max_file_size"`
}

// RenderConfig controls page rasterisation.
type RenderConfig struct {
	// DefaultWidth is used when a render request names no container width
	DefaultWidth int `yaml:"default_width"`
	CacheEntries int `yaml:"cache_entries"`
}

// ProcessorConfig points at the remote cleaning service.
type ProcessorConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	IdleTTL     time.Duration `yaml:"idle_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             DefaultPort,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     3 * time.Minute,
			IdleTimeout:      60 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Upload: UploadConfig{
			MaxFileSize: DefaultMaxFileSize,
		},
		Render: RenderConfig{
			DefaultWidth: 1000,
			CacheEntries: 64,
		},
		Processor: ProcessorConfig{
			URL:     DefaultProcessorURL,
			Timeout: 2 * time.Minute,
		},
		Session: SessionConfig{
			MaxSessions: 256,
			IdleTTL:     30 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the optional .env and YAML files and applies environment
// overrides. Missing .env files are ignored; a named YAML file must exist.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid server port: %q", c.Server.Port)
	}
	if c.Upload.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.Upload.MaxFileSize)
	}
	if c.Render.DefaultWidth <= 0 {
		return fmt.Errorf("render default_width must be positive, got %d", c.Render.DefaultWidth)
	}
	u, err := url.Parse(c.Processor.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid processor url: %q", c.Processor.URL)
	}
	if c.Session.MaxSessions < 1 {
		return fmt.Errorf("max_sessions must be at least 1")
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Server.Port
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	cfg.Server.Port = getEnv("PORT", cfg.Server.Port)
	cfg.Upload.MaxFileSize = getEnvInt64("MAX_FILE_SIZE", cfg.Upload.MaxFileSize)
	cfg.Processor.URL = getEnv("PROCESSOR_URL", cfg.Processor.URL)
	cfg.Processor.Timeout = getEnvDuration("PROCESSOR_TIMEOUT", cfg.Processor.Timeout)
	cfg.Render.DefaultWidth = int(getEnvInt64("RENDER_DEFAULT_WIDTH", int64(cfg.Render.DefaultWidth)))
	cfg.Session.MaxSessions = int(getEnvInt64("MAX_SESSIONS", int64(cfg.Session.MaxSessions)))
	cfg.Session.IdleTTL = getEnvDuration("SESSION_TTL", cfg.Session.IdleTTL)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.Server.AllowedOrigins = origins
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
