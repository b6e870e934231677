package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	PCO         PCOConfig         `yaml:"pco"`
	Sync        SyncConfig        `yaml:"sync"`
	Eligibility EligibilityConfig `yaml:"eligibility"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PublicURL is the externally reachable base URL of this server, used
	// when registering webhook subscriptions upstream.
	PublicURL string `yaml:"public_url"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	host := s.Host
	port := s.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds optional Redis settings. When Addr is empty the service
// falls back to Postgres advisory locks and skips the webhook replay cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PCOConfig holds Planning Center OAuth and API settings.
type PCOConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	BaseURL      string `yaml:"base_url"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	// RefreshGuardHours is the minimum interval between token refreshes.
	// Upstream refresh tokens are single-use; see service/token.
	RefreshGuardHours int `yaml:"refresh_guard_hours"`
}

// GuardWindow returns the refresh guard window as a duration.
func (p PCOConfig) GuardWindow() time.Duration {
	h := p.RefreshGuardHours
	if h <= 0 {
		h = 2
	}
	return time.Duration(h) * time.Hour
}

// SyncConfig holds full-sync settings.
type SyncConfig struct {
	// MaxPages bounds a single cursor walk. Safety bound against upstream
	// pagination that never terminates.
	MaxPages        int `yaml:"max_pages"`
	PerPage         int `yaml:"per_page"`
	IntervalMinutes int `yaml:"interval_minutes"`
}

// EligibilityConfig holds recipient-eligibility settings.
type EligibilityConfig struct {
	// BatchSize caps the number of ids per batched mirror query.
	BatchSize int `yaml:"batch_size"`
}

// Load reads configuration from the given YAML file. A missing file is not an
// error; env overrides and defaults still apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file in the working directory is honored if present.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PCO_CLIENT_ID"); v != "" {
		cfg.PCO.ClientID = v
	}
	if v := os.Getenv("PCO_CLIENT_SECRET"); v != "" {
		cfg.PCO.ClientSecret = v
	}
	if v := os.Getenv("PCO_REDIRECT_URL"); v != "" {
		cfg.PCO.RedirectURL = v
	}
	if v := os.Getenv("PCO_BASE_URL"); v != "" {
		cfg.PCO.BaseURL = v
	}
	if v := os.Getenv("SYNC_MAX_PAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.MaxPages = n
		}
	}

	return cfg, nil
}

// Validate checks that the fields required to run the server are present.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database.url (or DATABASE_URL) is required")
	}
	if c.PCO.ClientID == "" || c.PCO.ClientSecret == "" {
		return fmt.Errorf("pco.client_id and pco.client_secret are required")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.PCO.BaseURL == "" {
		c.PCO.BaseURL = "https://api.planningcenteronline.com"
	}
	if c.PCO.AuthURL == "" {
		c.PCO.AuthURL = "https://api.planningcenteronline.com/oauth/authorize"
	}
	if c.PCO.TokenURL == "" {
		c.PCO.TokenURL = "https://api.planningcenteronline.com/oauth/token"
	}
	if c.PCO.RefreshGuardHours == 0 {
		c.PCO.RefreshGuardHours = 2
	}
	if c.Sync.MaxPages == 0 {
		c.Sync.MaxPages = 1000
	}
	if c.Sync.PerPage == 0 {
		c.Sync.PerPage = 100
	}
	if c.Sync.IntervalMinutes == 0 {
		c.Sync.IntervalMinutes = 360
	}
	if c.Eligibility.BatchSize == 0 {
		c.Eligibility.BatchSize = 500
	}
}
