package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	env "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration structure for Furnace
type Config struct {
	App            AppConfig            `yaml:"app"`
	Server         ServerConfig         `yaml:"server"`
	Burn           BurnConfig           `yaml:"burn"`
	Demo           DemoConfig           `yaml:"demo"`
	Logging        LoggingConfig        `yaml:"logging"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Plugins        PluginsConfig        `yaml:"plugins"`
	Admin          AdminConfig          `yaml:"admin"`
	Quotes         QuotesConfig         `yaml:"quotes"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// AppConfig describes the deployment the process reports on /info
type AppConfig struct {
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	Version     string `yaml:"version" env:"APPLICATION_VERSION"`
}

// ServerConfig holds the public listener configuration.
// Timeouts are in seconds.
type ServerConfig struct {
	Port                int `yaml:"port" env:"PORT"`
	ShutdownGracePeriod int `yaml:"shutdown_grace_period" env:"FURNACE_SHUTDOWN_GRACE_PERIOD"`
	ReadHeaderTimeout   int `yaml:"read_header_timeout" env:"FURNACE_READ_HEADER_TIMEOUT"`
}

// BurnConfig holds the CPU burn settings
type BurnConfig struct {
	DefaultDuration int    `yaml:"default_duration" env:"FURNACE_BURN_DEFAULT_DURATION"`
	Clock           string `yaml:"clock" env:"FURNACE_BURN_CLOCK"`
}

// DemoConfig tunes the auxiliary demo endpoints
type DemoConfig struct {
	SlowMin         float64 `yaml:"slow_min" env:"FURNACE_SLOW_MIN"`
	SlowMax         float64 `yaml:"slow_max" env:"FURNACE_SLOW_MAX"`
	ErrorRate       float64 `yaml:"error_rate" env:"FURNACE_ERROR_RATE"`
	MemoryItems     int     `yaml:"memory_items" env:"FURNACE_MEMORY_ITEMS"`
	StatsIntervalMs int     `yaml:"stats_interval_ms" env:"FURNACE_STATS_INTERVAL_MS"`
}

// LoggingConfig controls the process logger and request correlation
type LoggingConfig struct {
	Level         string          `yaml:"level" env:"FURNACE_LOG_LEVEL"`
	Format        string          `yaml:"format" env:"FURNACE_LOG_FORMAT"`
	IncludeCaller bool            `yaml:"include_caller" env:"FURNACE_LOG_CALLER"`
	RequestID     RequestIDConfig `yaml:"request_id"`
	Trace         TraceConfig     `yaml:"trace"`
}

// RequestIDConfig controls request id propagation
type RequestIDConfig struct {
	Enabled bool   `yaml:"enabled"`
	Header  string `yaml:"header"`
}

// TraceConfig controls trace id propagation
type TraceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Header  string `yaml:"header"`
}

// RateLimitConfig holds the per-client token bucket settings
type RateLimitConfig struct {
	Enabled          bool `yaml:"enabled" env:"FURNACE_RATE_LIMIT_ENABLED"`
	MaxTokens        int  `yaml:"max_tokens" env:"FURNACE_RATE_LIMIT_MAX_TOKENS"`
	RefillIntervalMs int  `yaml:"refill_interval_ms" env:"FURNACE_RATE_LIMIT_REFILL_MS"`
}

// PluginsConfig lists the middleware chain applied to the public routes
type PluginsConfig struct {
	Enabled bool           `yaml:"enabled"`
	Chain   []PluginConfig `yaml:"chain"`
}

// PluginConfig names a single plugin and its settings
type PluginConfig struct {
	Name   string                 `yaml:"name"`
	Config map[string]interface{} `yaml:"config"`
}

// AdminConfig holds the side listener for health, metrics and burns.
// AllowList and DenyList take CIDRs or single addresses.
type AdminConfig struct {
	Enabled   bool     `yaml:"enabled" env:"FURNACE_ADMIN_ENABLED"`
	Port      int      `yaml:"port" env:"FURNACE_ADMIN_PORT"`
	AuthToken string   `yaml:"auth_token" env:"FURNACE_ADMIN_TOKEN"`
	AllowList []string `yaml:"allow_list" env:"FURNACE_ADMIN_ALLOW" envSeparator:","`
	DenyList  []string `yaml:"deny_list" env:"FURNACE_ADMIN_DENY" envSeparator:","`
}

// QuotesConfig selects the quote store backend
type QuotesConfig struct {
	Backend string      `yaml:"backend" env:"FURNACE_QUOTES_BACKEND"`
	Mongo   MongoConfig `yaml:"mongo"`
	Redis   RedisConfig `yaml:"redis"`
}

// MongoConfig holds the MongoDB quote store settings
type MongoConfig struct {
	URI        string `yaml:"uri" env:"FURNACE_MONGO_URI"`
	Database   string `yaml:"database" env:"FURNACE_MONGO_DATABASE"`
	Collection string `yaml:"collection" env:"FURNACE_MONGO_COLLECTION"`
}

// RedisConfig holds the Redis quote store settings
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"FURNACE_REDIS_ADDR"`
	Password string `yaml:"password" env:"FURNACE_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"FURNACE_REDIS_DB"`
	Key      string `yaml:"key" env:"FURNACE_REDIS_KEY"`
}

// CircuitBreakerConfig guards quote store reads. Timeout is in seconds.
type CircuitBreakerConfig struct {
	FailureThreshold uint32 `yaml:"failure_threshold"`
	SuccessThreshold uint32 `yaml:"success_threshold"`
	Timeout          int    `yaml:"timeout"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{
		Logging: LoggingConfig{RequestID: RequestIDConfig{Enabled: true}},
		Plugins: PluginsConfig{Enabled: true, Chain: []PluginConfig{{Name: "logging"}}},
		Admin:   AdminConfig{Enabled: true},
		Demo:    DemoConfig{ErrorRate: 0.3},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from the specified YAML file and applies
// environment overrides. A missing file yields the defaults.
func LoadConfig(filePath string) (*Config, error) {
	cfg := Default()

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "LOCAL"
	}
	if c.App.Version == "" {
		c.App.Version = "v0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 10
	}
	if c.Burn.DefaultDuration == 0 {
		c.Burn.DefaultDuration = 30
	}
	if c.Burn.Clock == "" {
		c.Burn.Clock = "monotonic"
	}
	if c.Server.ShutdownGracePeriod == 0 {
		// Long enough to drain a burn of the default length.
		c.Server.ShutdownGracePeriod = max(c.Burn.DefaultDuration, 0) + 5
	}
	if c.Demo.SlowMin == 0 && c.Demo.SlowMax == 0 {
		c.Demo.SlowMin, c.Demo.SlowMax = 0.5, 3.0
	}
	if c.Demo.MemoryItems == 0 {
		c.Demo.MemoryItems = 10_000_000
	}
	if c.Demo.StatsIntervalMs == 0 {
		c.Demo.StatsIntervalMs = 1000
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.RateLimit.MaxTokens == 0 {
		c.RateLimit.MaxTokens = 100
	}
	if c.RateLimit.RefillIntervalMs == 0 {
		c.RateLimit.RefillIntervalMs = 100
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 9090
	}
	if c.Quotes.Backend == "" {
		c.Quotes.Backend = "memory"
	}
	if c.Quotes.Mongo.URI == "" {
		c.Quotes.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Quotes.Mongo.Database == "" {
		c.Quotes.Mongo.Database = "furnace"
	}
	if c.Quotes.Mongo.Collection == "" {
		c.Quotes.Mongo.Collection = "dune_quotes"
	}
	if c.Quotes.Redis.Addr == "" {
		c.Quotes.Redis.Addr = "localhost:6379"
	}
	if c.Quotes.Redis.Key == "" {
		c.Quotes.Redis.Key = "furnace:dune_quotes"
	}
	if c.CircuitBreaker.FailureThreshold == 0 {
		c.CircuitBreaker.FailureThreshold = 5
	}
	if c.CircuitBreaker.SuccessThreshold == 0 {
		c.CircuitBreaker.SuccessThreshold = 1
	}
	if c.CircuitBreaker.Timeout == 0 {
		c.CircuitBreaker.Timeout = 30
	}
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch strings.ToLower(c.Burn.Clock) {
	case "monotonic", "wall":
	default:
		return fmt.Errorf("invalid burn clock %q: want monotonic or wall", c.Burn.Clock)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: want text or json", c.Logging.Format)
	}
	switch strings.ToLower(c.Quotes.Backend) {
	case "memory", "mongo", "redis":
	default:
		return fmt.Errorf("invalid quotes backend %q: want memory, mongo or redis", c.Quotes.Backend)
	}
	if c.Burn.DefaultDuration > math.MaxInt32 || c.Burn.DefaultDuration < math.MinInt32 {
		return fmt.Errorf("invalid burn default_duration %d: must fit in 32 bits", c.Burn.DefaultDuration)
	}
	if c.Demo.SlowMin < 0 || c.Demo.SlowMax < c.Demo.SlowMin {
		return fmt.Errorf("invalid slow delay range [%g, %g]", c.Demo.SlowMin, c.Demo.SlowMax)
	}
	if c.Demo.ErrorRate < 0 || c.Demo.ErrorRate > 1 {
		return fmt.Errorf("invalid error rate %g: want a value in [0, 1]", c.Demo.ErrorRate)
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"demo.memory_items", c.Demo.MemoryItems},
		{"demo.stats_interval_ms", c.Demo.StatsIntervalMs},
		{"rate_limit.max_tokens", c.RateLimit.MaxTokens},
		{"rate_limit.refill_interval_ms", c.RateLimit.RefillIntervalMs},
		{"server.shutdown_grace_period", c.Server.ShutdownGracePeriod},
		{"server.read_header_timeout", c.Server.ReadHeaderTimeout},
	} {
		if f.value < 0 {
			return fmt.Errorf("invalid %s %d: must not be negative", f.name, f.value)
		}
	}
	return nil
}
