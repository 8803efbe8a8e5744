package config

import (
	"fmt"
	"time"

	"github.com/xerolink/xerolink/internal/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration.
type Config struct {
	Version  string         `yaml:"version"`
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Xero     XeroConfig     `yaml:"xero"`
	Cache    CacheConfig    `yaml:"cache"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	HTTPPort        int           `yaml:"http_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	LogLevel        string        `yaml:"log_level"`
}

// APIConfig contains API surface configuration.
type APIConfig struct {
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AuthConfig contains API-key authentication configuration.
type AuthConfig struct {
	APIKeys    []string `yaml:"api_keys"`
	HeaderName string   `yaml:"header_name"`
}

// RateLimitConfig contains per-IP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// DatabaseConfig contains SQLite configuration.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// XeroConfig is the immutable external-API configuration injected into the
// token manager and data fetcher. Fallback client credentials apply when a
// company has none of its own saved; they are normally provided via
// ${XEROLINK_CLIENT_ID} / ${XEROLINK_CLIENT_SECRET} substitution.
type XeroConfig struct {
	AuthURL        string        `yaml:"auth_url"`
	TokenURL       string        `yaml:"token_url"`
	APIBaseURL     string        `yaml:"api_base_url"`
	ConnectionsURL string        `yaml:"connections_url"`
	Scopes         []string      `yaml:"scopes"`
	RedirectURI    string        `yaml:"redirect_uri"`
	ClientID       string        `yaml:"client_id"`
	ClientSecret   string        `yaml:"client_secret"`
	HTTPTimeout    time.Duration `yaml:"http_timeout"`
	ExpiryBuffer   time.Duration `yaml:"expiry_buffer"`
	EncryptionKey  string        `yaml:"encryption_key"`
}

// CacheConfig controls response-cache TTLs.
type CacheConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"`
	ReportTTL  time.Duration `yaml:"report_ttl"`
}

// AlertsConfig controls operator notifications.
type AlertsConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BotToken    string        `yaml:"bot_token"`
	ChatID      int64         `yaml:"chat_id"`
	MinInterval time.Duration `yaml:"min_interval"`
}

// Default returns a configuration with sane defaults applied.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			HTTPPort:        8090,
			ShutdownTimeout: 30 * time.Second,
			LogLevel:        "info",
		},
		API: APIConfig{
			Auth: AuthConfig{HeaderName: "X-API-Key"},
			RateLimit: RateLimitConfig{
				RequestsPerMinute: 600,
				Burst:             60,
			},
		},
		Database: DatabaseConfig{Path: "./data/xerolink.db"},
		Xero: XeroConfig{
			AuthURL:        "https://login.xero.com/identity/connect/authorize",
			TokenURL:       "https://identity.xero.com/connect/token",
			APIBaseURL:     "https://api.xero.com/api.xro/2.0",
			ConnectionsURL: "https://api.xero.com/connections",
			Scopes: []string{
				"openid",
				"profile",
				"email",
				"accounting.transactions.read",
				"accounting.contacts.read",
				"accounting.settings.read",
				"accounting.reports.read",
				"offline_access",
			},
			HTTPTimeout:  30 * time.Second,
			ExpiryBuffer: 60 * time.Second,
		},
		Cache: CacheConfig{
			DefaultTTL: time.Hour,
			ReportTTL:  4 * time.Hour,
		},
		Alerts: AlertsConfig{MinInterval: time.Hour},
	}
}

// Parse unmarshals YAML content over the defaults.
func Parse(content []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, &errors.ErrConfigParse{Err: err}
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return &errors.ErrConfigValidation{Err: fmt.Errorf("invalid http_port %d", c.Server.HTTPPort)}
	}
	if c.Database.Path == "" {
		return &errors.ErrConfigValidation{Err: fmt.Errorf("database.path is required")}
	}
	if c.Xero.AuthURL == "" || c.Xero.TokenURL == "" || c.Xero.APIBaseURL == "" {
		return &errors.ErrConfigValidation{Err: fmt.Errorf("xero endpoint URLs must not be empty")}
	}
	if len(c.Xero.Scopes) == 0 {
		return &errors.ErrConfigValidation{Err: fmt.Errorf("xero.scopes must not be empty")}
	}
	if key := c.Xero.EncryptionKey; key != "" && len(key) != 32 {
		return &errors.ErrConfigValidation{Err: fmt.Errorf("xero.encryption_key must be 32 bytes, got %d", len(key))}
	}
	if c.Cache.DefaultTTL <= 0 {
		return &errors.ErrConfigValidation{Err: fmt.Errorf("cache.default_ttl must be positive")}
	}
	if c.Alerts.Enabled && c.Alerts.BotToken == "" {
		return &errors.ErrConfigValidation{Err: fmt.Errorf("alerts.bot_token is required when alerts are enabled")}
	}
	return nil
}
