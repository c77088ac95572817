// Package config loads watchlog configuration from environment variables,
// optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/gauthierbraillon/watchlog/internal/history"
)

const (
	DefaultCallbackPort = 8899
	DefaultRateLimit    = 300 * time.Millisecond
	DefaultTraktAPIURL  = "https://api.trakt.tv"
	DefaultSimklAPIURL  = "https://api.simkl.com"
)

// ClientCredentials is an OAuth application registration.
type ClientCredentials struct {
	ID     string
	Secret string
}

func (c ClientCredentials) Complete() bool {
	return c.ID != "" && c.Secret != ""
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ConfigDir    string
	LogFile      string
	LogLevel     slog.Level
	TraktAPIURL  string
	SimklAPIURL  string
	CallbackPort int
	// RateLimit is the minimum spacing between API requests; 0 disables it.
	RateLimit time.Duration
	Trakt     ClientCredentials
	Simkl     ClientCredentials
}

// RedirectURL is the loopback callback registered with both services.
func (c *Config) RedirectURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/callback", c.CallbackPort)
}

func (c *Config) APIURL(s history.Service) string {
	if s == history.ServiceSimkl {
		return c.SimklAPIURL
	}
	return c.TraktAPIURL
}

func (c *Config) Client(s history.Service) ClientCredentials {
	if s == history.ServiceSimkl {
		return c.Simkl
	}
	return c.Trakt
}

// EnvKey names a per-service variable, e.g. EnvKey(ServiceTrakt, "CLIENT_ID").
func EnvKey(s history.Service, suffix string) string {
	return "WATCHLOG_" + strings.ToUpper(string(s)) + "_" + suffix
}

// Load reads configuration from environment variables and returns a validated Config.
// Before reading, .env in the working directory and in the config directory
// are loaded when present; variables already set in the environment win.
// Optional variables with defaults: WATCHLOG_CONFIG_DIR (~/.config/watchlog),
// WATCHLOG_LOG_LEVEL (warn), WATCHLOG_CALLBACK_PORT (8899),
// WATCHLOG_RATE_LIMIT (300ms), WATCHLOG_TRAKT_API_URL, WATCHLOG_SIMKL_API_URL.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	configDir, err := configDir()
	if err != nil {
		return nil, err
	}
	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		ConfigDir:    configDir,
		LogFile:      os.Getenv("WATCHLOG_LOG_FILE"),
		LogLevel:     slog.LevelWarn,
		TraktAPIURL:  DefaultTraktAPIURL,
		SimklAPIURL:  DefaultSimklAPIURL,
		CallbackPort: DefaultCallbackPort,
		RateLimit:    DefaultRateLimit,
	}

	if v, ok := os.LookupEnv("WATCHLOG_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("WATCHLOG_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	if v, ok := os.LookupEnv("WATCHLOG_CALLBACK_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("WATCHLOG_CALLBACK_PORT has invalid port %q", v)
		}
		cfg.CallbackPort = port
	}

	if v, ok := os.LookupEnv("WATCHLOG_RATE_LIMIT"); ok && v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("WATCHLOG_RATE_LIMIT has invalid duration %q: %w", v, err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("WATCHLOG_RATE_LIMIT must not be negative, got %q", v)
		}
		cfg.RateLimit = parsed
	}

	for key, dst := range map[string]*string{
		"WATCHLOG_TRAKT_API_URL": &cfg.TraktAPIURL,
		"WATCHLOG_SIMKL_API_URL": &cfg.SimklAPIURL,
	} {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			continue
		}
		u, err := url.Parse(v)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("%s has invalid URL %q", key, v)
		}
		*dst = strings.TrimRight(v, "/")
	}

	cfg.Trakt = ClientCredentials{
		ID:     os.Getenv(EnvKey(history.ServiceTrakt, "CLIENT_ID")),
		Secret: os.Getenv(EnvKey(history.ServiceTrakt, "CLIENT_SECRET")),
	}
	cfg.Simkl = ClientCredentials{
		ID:     os.Getenv(EnvKey(history.ServiceSimkl, "CLIENT_ID")),
		Secret: os.Getenv(EnvKey(history.ServiceSimkl, "CLIENT_SECRET")),
	}

	return cfg, nil
}

func configDir() (string, error) {
	if dir := os.Getenv("WATCHLOG_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory (set WATCHLOG_CONFIG_DIR): %w", err)
	}
	return filepath.Join(home, ".config", "watchlog"), nil
}

// loadDotEnv loads path if it exists. godotenv.Load never overrides
// variables that are already set.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}
