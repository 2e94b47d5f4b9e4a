package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete gateway configuration, loaded from a YAML document
// with environment overrides for deployment-specific fields. Secrets never
// appear literally; provider blocks carry the name of the environment
// variable holding the key.
type Config struct {
	Environment   string                    `yaml:"environment"`
	Server        ServerConfig              `yaml:"server"`
	Database      DatabaseConfig            `yaml:"database"`
	Providers     map[string]ProviderConfig `yaml:"providers"`
	Models        []ModelConfig             `yaml:"models"`
	Routing       RoutingConfig             `yaml:"routing"`
	Budget        BudgetConfig              `yaml:"budget"`
	Cache         CacheConfig               `yaml:"cache"`
	Breaker       BreakerConfig             `yaml:"breaker"`
	Retry         RetryConfig               `yaml:"retry"`
	Usage         UsageConfig               `yaml:"usage"`
	Observability ObservabilityConfig       `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL configuration. An empty URL disables
// durable storage; usage and budget state stay in memory.
type DatabaseConfig struct {
	URL             string   `yaml:"url"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"`
}

// ProviderConfig holds one vendor's settings. APIKeyRef names the
// environment variable holding the credential.
type ProviderConfig struct {
	Enabled   bool     `yaml:"enabled"`
	APIKeyRef string   `yaml:"api_key_ref"`
	BaseURL   string   `yaml:"base_url"`
	Timeout   Duration `yaml:"timeout"`
}

// ModelConfig declares one routable model. Costs are decimal strings so no
// precision is lost between the file and the ledger.
type ModelConfig struct {
	Provider         string   `yaml:"provider"`
	ModelID          string   `yaml:"model_id"`
	InputCostPer1K   string   `yaml:"input_cost_per_1k"`
	OutputCostPer1K  string   `yaml:"output_cost_per_1k"`
	MaxContextTokens int      `yaml:"max_context_tokens"`
	Capabilities     []string `yaml:"capabilities"`
	PerformanceRank  int      `yaml:"performance_rank"`
	Active           *bool    `yaml:"active"`
}

// IsActive treats a missing active field as true.
func (m ModelConfig) IsActive() bool {
	return m.Active == nil || *m.Active
}

// RoutingConfig holds strategy selection and A/B test definitions.
type RoutingConfig struct {
	DefaultStrategy  string         `yaml:"default_strategy"`
	ProviderPriority []string       `yaml:"provider_priority"`
	ABTests          []ABTestConfig `yaml:"ab_tests"`
}

// ABTestConfig declares one traffic split.
type ABTestConfig struct {
	Name     string            `yaml:"name"`
	TaskType string            `yaml:"task_type"`
	Variants []ABVariantConfig `yaml:"variants"`
}

// ABVariantConfig is one arm of a split.
type ABVariantConfig struct {
	Name    string `yaml:"name"`
	Model   string `yaml:"model"`
	Percent int    `yaml:"percent"`
}

// BudgetConfig holds spend limits per scope level.
type BudgetConfig struct {
	Global        LimitsConfig            `yaml:"global"`
	TenantDefault LimitsConfig            `yaml:"tenant_default"`
	Tenants       map[string]LimitsConfig `yaml:"tenants"`
	Users         map[string]LimitsConfig `yaml:"users"`
}

// LimitsConfig holds one scope's limits as decimal strings. Empty means
// unlimited for that window.
type LimitsConfig struct {
	DailyLimit      string    `yaml:"daily_limit"`
	MonthlyLimit    string    `yaml:"monthly_limit"`
	AlertThresholds []float64 `yaml:"alert_thresholds"`
	AutoDisableAt   float64   `yaml:"auto_disable_at"`
}

// CacheConfig selects and tunes the response cache backend.
type CacheConfig struct {
	Backend         string   `yaml:"backend"` // memory or redis
	Capacity        int      `yaml:"capacity"`
	TTL             Duration `yaml:"ttl"`
	RedisURL        string   `yaml:"redis_url"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout"`
	HalfOpenMaxCalls int      `yaml:"half_open_max_calls"`
}

// RetryConfig holds the per-candidate retry policy.
type RetryConfig struct {
	MaxAttempts    int      `yaml:"max_attempts"`
	BaseDelay      Duration `yaml:"base_delay"`
	Multiplier     float64  `yaml:"multiplier"`
	MaxDelay       Duration `yaml:"max_delay"`
	AttemptTimeout Duration `yaml:"attempt_timeout"`
}

// UsageConfig tunes the async usage recorder.
type UsageConfig struct {
	BufferSize  int `yaml:"buffer_size"`
	WorkerCount int `yaml:"worker_count"`
}

// ObservabilityConfig holds logging configuration.
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // json or console
}

// Load reads the YAML document at path, applies environment overrides, fills
// defaults, and validates. A .env file in the working directory is honored
// for local development.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets deployments override host-specific fields without
// editing the document.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Cache.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Observability.LogLevel = v
	}
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = Duration(30 * time.Second)
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = Duration(120 * time.Second)
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = Duration(5 * time.Minute)
	}
	if c.Routing.DefaultStrategy == "" {
		c.Routing.DefaultStrategy = "cost_optimized"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Capacity == 0 {
		c.Cache.Capacity = 1024
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = Duration(5 * time.Minute)
	}
	if c.Cache.CleanupInterval == 0 {
		c.Cache.CleanupInterval = Duration(time.Minute)
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
	if c.Observability.LogFormat == "" {
		c.Observability.LogFormat = "json"
	}
}

// Validate checks the configuration for contradictions before startup. It
// fails loudly: a gateway routing real spend must not limp along on a half
// understood document.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	enabled := make(map[string]bool)
	for name, p := range c.Providers {
		if !p.Enabled {
			continue
		}
		if p.APIKeyRef == "" {
			return fmt.Errorf("provider %q: api_key_ref is required", name)
		}
		enabled[name] = true
	}
	if len(enabled) == 0 {
		return fmt.Errorf("at least one provider must be enabled")
	}

	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}
	seen := make(map[string]bool)
	for i, m := range c.Models {
		if m.Provider == "" || m.ModelID == "" {
			return fmt.Errorf("models[%d]: provider and model_id are required", i)
		}
		if !enabled[m.Provider] {
			return fmt.Errorf("models[%d]: provider %q is not enabled", i, m.Provider)
		}
		key := m.Provider + "/" + m.ModelID
		if seen[key] {
			return fmt.Errorf("models[%d]: duplicate model %s", i, key)
		}
		seen[key] = true
		if _, err := parseDecimal(m.InputCostPer1K, "0"); err != nil {
			return fmt.Errorf("models[%d]: invalid input_cost_per_1k: %w", i, err)
		}
		if _, err := parseDecimal(m.OutputCostPer1K, "0"); err != nil {
			return fmt.Errorf("models[%d]: invalid output_cost_per_1k: %w", i, err)
		}
	}

	switch c.Routing.DefaultStrategy {
	case "cost_optimized", "performance_optimized", "ab_test":
	default:
		return fmt.Errorf("routing: unknown default_strategy %q", c.Routing.DefaultStrategy)
	}
	for _, test := range c.Routing.ABTests {
		if test.Name == "" {
			return fmt.Errorf("routing: ab_test name is required")
		}
		total := 0
		for _, v := range test.Variants {
			if v.Percent < 0 || v.Percent > 100 {
				return fmt.Errorf("routing: ab_test %q: variant %q percent out of range", test.Name, v.Name)
			}
			total += v.Percent
		}
		if total > 100 {
			return fmt.Errorf("routing: ab_test %q: variant percents exceed 100", test.Name)
		}
	}

	if err := validateLimits("budget.global", c.Budget.Global); err != nil {
		return err
	}
	if err := validateLimits("budget.tenant_default", c.Budget.TenantDefault); err != nil {
		return err
	}
	for id, l := range c.Budget.Tenants {
		if err := validateLimits("budget.tenants."+id, l); err != nil {
			return err
		}
	}
	for id, l := range c.Budget.Users {
		if err := validateLimits("budget.users."+id, l); err != nil {
			return err
		}
	}

	switch c.Cache.Backend {
	case "memory":
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache: redis backend requires redis_url")
		}
	default:
		return fmt.Errorf("cache: unknown backend %q", c.Cache.Backend)
	}

	return nil
}

func validateLimits(path string, l LimitsConfig) error {
	if _, err := parseDecimal(l.DailyLimit, "0"); err != nil {
		return fmt.Errorf("%s: invalid daily_limit: %w", path, err)
	}
	if _, err := parseDecimal(l.MonthlyLimit, "0"); err != nil {
		return fmt.Errorf("%s: invalid monthly_limit: %w", path, err)
	}
	for _, t := range l.AlertThresholds {
		if t <= 0 || t > 1 {
			return fmt.Errorf("%s: alert threshold %v out of (0, 1]", path, t)
		}
	}
	if l.AutoDisableAt < 0 {
		return fmt.Errorf("%s: auto_disable_at must not be negative", path)
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}
