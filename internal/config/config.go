package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/vfields/internal/catalog"
	"github.com/kailas-cloud/vfields/internal/domain"
)

// Config holds the vfields service configuration.
type Config struct {
	HTTP    HTTPConfig              `yaml:"http"`
	Auth    AuthConfig              `yaml:"auth"`
	Cache   CacheConfig             `yaml:"cache"`
	Engine  EngineConfig            `yaml:"engine"`
	Monitor MonitorConfig           `yaml:"monitor"`
	Logging LoggingConfig           `yaml:"logging"`
	Fields  map[string]catalog.Spec `yaml:"fields"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// Cache drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
)

// CacheConfig holds virtual field cache settings.
type CacheConfig struct {
	Driver           string   `yaml:"driver"` // memory, redis, valkey (default: memory)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	DefaultTTLSec    int      `yaml:"default_ttl_sec"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Sort modes.
const (
	SortStrict  = "strict"
	SortLenient = "lenient"
)

// EngineConfig holds batching, resource limit and sort settings.
type EngineConfig struct {
	BatchSize      int    `yaml:"batch_size"`
	BatchThreshold int    `yaml:"batch_threshold"`
	MemoryLimitMB  int    `yaml:"memory_limit_mb"` // 0 = unlimited
	TimeLimitMs    int    `yaml:"time_limit_ms"`
	StrictLimits   *bool  `yaml:"strict_limits"`
	GCEveryBatches int    `yaml:"gc_every_batches"`
	LazyEvaluation bool   `yaml:"lazy_evaluation"`
	MaxSortRecords int    `yaml:"max_sort_records"`
	SortMode       string `yaml:"sort_mode"` // strict, lenient (default: strict)
}

// MonitorConfig holds operation monitoring settings.
type MonitorConfig struct {
	SlowThresholdMs int  `yaml:"slow_threshold_ms"`
	HistorySize     int  `yaml:"history_size"`
	FieldWindow     int  `yaml:"field_window"`
	TrackMemory     bool `yaml:"track_memory"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, substituting ${VAR} and ${VAR:-default}
// from the environment, then applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	def := domain.DefaultEngineConfig()

	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = DriverMemory
	}
	if c.Cache.KeyPrefix == "" {
		c.Cache.KeyPrefix = domain.KeyPrefix
	}
	if c.Cache.DefaultTTLSec <= 0 {
		c.Cache.DefaultTTLSec = int(def.DefaultCacheTTL / time.Second)
	}
	if c.Cache.ReadinessTimeout <= 0 {
		c.Cache.ReadinessTimeout = 10
	}
	if c.Engine.BatchSize <= 0 {
		c.Engine.BatchSize = def.BatchSize
	}
	if c.Engine.BatchThreshold <= 0 {
		c.Engine.BatchThreshold = def.BatchThreshold
	}
	if c.Engine.TimeLimitMs <= 0 {
		c.Engine.TimeLimitMs = int(def.TimeLimit / time.Millisecond)
	}
	if c.Engine.StrictLimits == nil {
		strict := def.StrictLimits
		c.Engine.StrictLimits = &strict
	}
	if c.Engine.GCEveryBatches <= 0 {
		c.Engine.GCEveryBatches = def.GCEveryBatches
	}
	if c.Engine.MaxSortRecords <= 0 {
		c.Engine.MaxSortRecords = def.MaxSortRecords
	}
	if c.Engine.SortMode == "" {
		c.Engine.SortMode = SortStrict
	}
	if c.Monitor.SlowThresholdMs <= 0 {
		c.Monitor.SlowThresholdMs = int(def.SlowThreshold / time.Millisecond)
	}
	if c.Monitor.HistorySize <= 0 {
		c.Monitor.HistorySize = def.HistorySize
	}
	if c.Monitor.FieldWindow <= 0 {
		c.Monitor.FieldWindow = def.FieldWindow
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Cache.Driver {
	case DriverMemory:
	case DriverRedis, DriverValkey:
		if len(c.Cache.Addrs) == 0 {
			return fmt.Errorf("cache.addrs is required for driver %q", c.Cache.Driver)
		}
	default:
		return fmt.Errorf("cache.driver must be memory, redis or valkey, got %q", c.Cache.Driver)
	}
	switch c.Engine.SortMode {
	case SortStrict, SortLenient:
	default:
		return fmt.Errorf("engine.sort_mode must be \"strict\" or \"lenient\", got %q", c.Engine.SortMode)
	}
	if c.Engine.MemoryLimitMB < 0 {
		return fmt.Errorf("engine.memory_limit_mb must not be negative, got %d", c.Engine.MemoryLimitMB)
	}
	return nil
}

// EngineSettings converts the engine, cache and monitor sections into the
// tunables shared by the processor, guard and monitor.
func (c *Config) EngineSettings() domain.EngineConfig {
	strict := true
	if c.Engine.StrictLimits != nil {
		strict = *c.Engine.StrictLimits
	}
	return domain.EngineConfig{
		BatchSize:       c.Engine.BatchSize,
		BatchThreshold:  c.Engine.BatchThreshold,
		MemoryLimit:     int64(c.Engine.MemoryLimitMB) << 20,
		TimeLimit:       time.Duration(c.Engine.TimeLimitMs) * time.Millisecond,
		StrictLimits:    strict,
		GCEveryBatches:  c.Engine.GCEveryBatches,
		LazyEvaluation:  c.Engine.LazyEvaluation,
		MaxSortRecords:  c.Engine.MaxSortRecords,
		LenientSort:     c.Engine.SortMode == SortLenient,
		DefaultCacheTTL: time.Duration(c.Cache.DefaultTTLSec) * time.Second,
		SlowThreshold:   time.Duration(c.Monitor.SlowThresholdMs) * time.Millisecond,
		HistorySize:     c.Monitor.HistorySize,
		FieldWindow:     c.Monitor.FieldWindow,
		TrackMemory:     c.Monitor.TrackMemory,
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
