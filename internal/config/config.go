package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the service configuration. The tracking settings record is
// not part of it: that lives in the store and is read per request.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ecommerce EcommerceConfig `yaml:"ecommerce"`
	Nonce     NonceConfig     `yaml:"nonce"`
	Guard     GuardConfig     `yaml:"guard"`
	Ajax      AjaxConfig      `yaml:"ajax"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	PublicURL  string `yaml:"public_url"`
	TokenFile  string `yaml:"token_file"`
	TrustProxy bool   `yaml:"trust_proxy"` // honor X-Forwarded-For from a fronting proxy
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EcommerceConfig describes the storefront the tracker is attached to.
type EcommerceConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Currency   string   `yaml:"currency"`
	Currencies []string `yaml:"currencies"` // allowed client currency overrides
	TaxRate    float64  `yaml:"tax_rate"`   // fraction of the subtotal, e.g. 0.2
	Shipping   float64  `yaml:"shipping"`   // flat shipping per order
}

type NonceConfig struct {
	Secret     string `yaml:"secret"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// GuardConfig selects the backend for the purchase idempotency flag.
type GuardConfig struct {
	Backend   string `yaml:"backend"` // "sqlite", "redis" or "memory"
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type AjaxConfig struct {
	RatePerSecond   int      `yaml:"rate_per_second"`
	Burst           int      `yaml:"burst"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ValidatePayload bool     `yaml:"validate_payload"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

func (c NonceConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BaseURL returns the public URL when set, otherwise a localhost URL on the configured port.
func (c ServerConfig) BaseURL() string {
	if c.PublicURL != "" {
		return strings.TrimRight(c.PublicURL, "/")
	}
	return fmt.Sprintf("http://localhost:%d", c.Port)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Ecommerce: EcommerceConfig{Enabled: true}}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Config{Ecommerce: EcommerceConfig{Enabled: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./ga4t.db"
	}
	if cfg.Ecommerce.Currency == "" {
		cfg.Ecommerce.Currency = "USD"
	}
	if cfg.Nonce.TTLMinutes == 0 {
		cfg.Nonce.TTLMinutes = 24 * 60
	}
	if cfg.Guard.Backend == "" {
		cfg.Guard.Backend = "sqlite"
	}
	if cfg.Guard.RedisAddr == "" {
		cfg.Guard.RedisAddr = "localhost:6379"
	}
	if cfg.Guard.KeyPrefix == "" {
		cfg.Guard.KeyPrefix = "ga4:tracked:"
	}
	if cfg.Ajax.RatePerSecond == 0 {
		cfg.Ajax.RatePerSecond = 10
	}
	if cfg.Ajax.Burst == 0 {
		cfg.Ajax.Burst = 20
	}
	if len(cfg.Ajax.AllowedOrigins) == 0 {
		cfg.Ajax.AllowedOrigins = []string{"*"}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// LoadFromEnv loads the config file, then applies .env and GA4T_* overrides.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("GA4T_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GA4T_PUBLIC_URL"); v != "" {
		cfg.Server.PublicURL = v
	}
	if v := os.Getenv("GA4T_TRUST_PROXY"); v != "" {
		if trust, err := strconv.ParseBool(v); err == nil {
			cfg.Server.TrustProxy = trust
		}
	}
	if v := os.Getenv("GA4T_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GA4T_NONCE_SECRET"); v != "" {
		cfg.Nonce.Secret = v
	}
	if v := os.Getenv("GA4T_ECOMMERCE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Ecommerce.Enabled = enabled
		}
	}
	if v := os.Getenv("GA4T_CURRENCY"); v != "" {
		cfg.Ecommerce.Currency = strings.ToUpper(v)
	}
	if v := os.Getenv("GA4T_GUARD_BACKEND"); v != "" {
		cfg.Guard.Backend = v
	}
	if v := os.Getenv("GA4T_REDIS_ADDR"); v != "" {
		cfg.Guard.RedisAddr = v
	}
	if v := os.Getenv("GA4T_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}
