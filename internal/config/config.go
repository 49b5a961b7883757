// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port          int           `yaml:"port"`
	VerifyTimeout time.Duration `yaml:"verify_timeout"` // upper bound for one callback verification
	LockTTL       time.Duration `yaml:"lock_ttl"`
	APISecret     string        `yaml:"api_secret"` // HMAC secret for operator API tokens; empty disables the API
	TokenTTL      time.Duration `yaml:"token_ttl"`
	Workers       int           `yaml:"workers"` // bound on in-flight async gateway calls
	CORSOrigins   []string      `yaml:"cors_origins"`

	// callbacks per client IP and gateway within RateWindow; 0 disables
	CallbackRateLimit int           `yaml:"callback_rate_limit"`
	RateWindow        time.Duration `yaml:"rate_window"`
	ResultCacheTTL    time.Duration `yaml:"result_cache_ttl"`
}

type RedisConfig struct {
	URL      string `yaml:"url"` // empty disables callback locking
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig points at the Kafka cluster receiving payment events. No brokers disables publishing.
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type SweeperConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Interval   time.Duration `yaml:"interval"`
	AutoVerify bool          `yaml:"auto_verify"` // verify listed sessions instead of only reporting them
}

// HTTPConfig tunes the outbound client each gateway owns.
type HTTPConfig struct {
	Timeout       time.Duration     `yaml:"timeout"`
	Retries       int               `yaml:"retries"`
	RetryDelay    time.Duration     `yaml:"retry_delay"`
	Backoff       bool              `yaml:"backoff"` // exponential instead of fixed delay
	SlowThreshold time.Duration     `yaml:"slow_threshold"`
	LogBodies     bool              `yaml:"log_bodies"`
	MaxBodyLog    int               `yaml:"max_body_log"`
	RateLimit     float64           `yaml:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst     int               `yaml:"rate_burst"`
	Headers       map[string]string `yaml:"headers"`
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (h HTTPConfig) WithDefaults() HTTPConfig {
	if h.Timeout <= 0 {
		h.Timeout = 10 * time.Second
	}
	if h.Retries < 0 {
		h.Retries = 0
	}
	if h.RetryDelay <= 0 {
		h.RetryDelay = time.Second
	}
	if h.SlowThreshold <= 0 {
		h.SlowThreshold = 3 * time.Second
	}
	if h.MaxBodyLog <= 0 {
		h.MaxBodyLog = 500
	}
	if h.RateLimit > 0 && h.RateBurst <= 0 {
		h.RateBurst = 1
	}
	return h
}

// GatewayConfig is handed by value to a gateway constructor and never mutated afterwards.
type GatewayConfig struct {
	MerchantID string     `yaml:"merchant_id"`
	Version    int        `yaml:"version"`
	Sandbox    bool       `yaml:"sandbox"`
	BaseURL    string     `yaml:"base_url"` // overrides the vendor API base
	HTTP       HTTPConfig `yaml:"http"`
}

type PaymentConfig struct {
	Default  string                   `yaml:"default"`
	Gateways map[string]GatewayConfig `yaml:"gateways"`
}

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	Redis   RedisConfig   `yaml:"redis"`
	Payment PaymentConfig `yaml:"payment"`
	Sweeper SweeperConfig `yaml:"sweeper"`
	Events  EventsConfig  `yaml:"events"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Load reads the YAML file at path, applies .env and PAYMAN_* overrides, then defaults.
func Load(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// .env is optional; a missing file is not an error
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}
	applyEnv(&cfg)

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.VerifyTimeout <= 0 {
		cfg.Server.VerifyTimeout = 30 * time.Second
	}
	if cfg.Server.LockTTL <= 0 {
		cfg.Server.LockTTL = time.Minute
	}
	if cfg.Server.TokenTTL <= 0 {
		cfg.Server.TokenTTL = time.Hour
	}
	if cfg.Server.RateWindow <= 0 {
		cfg.Server.RateWindow = time.Minute
	}
	if cfg.Server.ResultCacheTTL <= 0 {
		cfg.Server.ResultCacheTTL = 24 * time.Hour
	}
	if len(cfg.Events.Brokers) > 0 && cfg.Events.Topic == "" {
		cfg.Events.Topic = "payman.payments"
	}
	if cfg.Sweeper.Interval <= 0 {
		cfg.Sweeper.Interval = 10 * time.Minute
	}
	normalized := make(map[string]GatewayConfig, len(cfg.Payment.Gateways))
	for name, g := range cfg.Payment.Gateways {
		g.HTTP = g.HTTP.WithDefaults()
		normalized[strings.ToLower(name)] = g
	}
	cfg.Payment.Gateways = normalized
	cfg.Payment.Default = strings.ToLower(cfg.Payment.Default)

	// Minimal validation
	if len(cfg.Payment.Gateways) == 0 {
		return nil, errors.New("payment.gateways must configure at least one gateway")
	}
	if cfg.Payment.Default == "" && len(cfg.Payment.Gateways) == 1 {
		for name := range cfg.Payment.Gateways {
			cfg.Payment.Default = name
		}
	}
	if _, ok := cfg.Payment.Gateways[cfg.Payment.Default]; !ok {
		return nil, fmt.Errorf("payment.default %q is not configured", cfg.Payment.Default)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// Gateway returns the configuration for name, or the default gateway when name is empty.
func (c *Config) Gateway(name string) (string, GatewayConfig, bool) {
	if name == "" {
		name = c.Payment.Default
	}
	name = strings.ToLower(name)
	g, ok := c.Payment.Gateways[name]
	return name, g, ok
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PAYMAN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PAYMAN_REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("PAYMAN_API_SECRET"); v != "" {
		cfg.Server.APISecret = v
	}
	if v := os.Getenv("PAYMAN_KAFKA_BROKERS"); v != "" {
		cfg.Events.Brokers = strings.Split(v, ",")
	}
	for name, g := range cfg.Payment.Gateways {
		prefix := "PAYMAN_" + strings.ToUpper(name) + "_"
		if v := os.Getenv(prefix + "MERCHANT_ID"); v != "" {
			g.MerchantID = v
		}
		if v := os.Getenv(prefix + "SANDBOX"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				g.Sandbox = b
			}
		}
		cfg.Payment.Gateways[name] = g
	}
}
