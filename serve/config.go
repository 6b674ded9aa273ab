package serve

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full serving configuration, loadable from YAML. Fields
// absent from the file keep their DefaultConfig values.
type Config struct {
	Cache   CacheConfig   `yaml:"cache"`
	Batch   BatchConfig   `yaml:"batch"`
	Scaler  ScalerYAML    `yaml:"scaler"`
	Backend BackendConfig `yaml:"backend"`
	Trace   TraceConfig   `yaml:"trace"`
	Server  ServerConfig  `yaml:"server"`
}

// CacheConfig groups BoundedCache parameters.
type CacheConfig struct {
	Capacity int            `yaml:"capacity"` // must be > 0
	Eviction EvictionPolicy `yaml:"eviction"` // "fifo" (default) or "lru"
}

// BatchConfig groups Batcher parameters.
type BatchConfig struct {
	Size          int           `yaml:"size"`           // must be > 0
	MaxWait       time.Duration `yaml:"max_wait"`       // must be >= 0
	FlushInterval time.Duration `yaml:"flush_interval"` // stale-batch check period; 0 uses MaxWait
}

// ScalerYAML is the YAML form of ScalerConfig plus scheduling parameters.
type ScalerYAML struct {
	MinInstances       int           `yaml:"min_instances"`
	MaxInstances       int           `yaml:"max_instances"`
	InitialInstances   *int          `yaml:"initial_instances"`
	TargetCPU          float64       `yaml:"target_cpu"`
	ScaleUpThreshold   float64       `yaml:"scale_up_threshold"`
	ScaleDownThreshold float64       `yaml:"scale_down_threshold"`
	LatencyCeilingMs   float64       `yaml:"latency_ceiling_ms"`
	LatencyFloorMs     float64       `yaml:"latency_floor_ms"`
	RateCeiling        float64       `yaml:"rate_ceiling"`
	RateFloor          float64       `yaml:"rate_floor"`
	Interval           time.Duration `yaml:"interval"` // decision period
	Window             time.Duration `yaml:"window"`   // metrics window span
}

// ScalerConfig converts the YAML form into a ScalerConfig.
func (s ScalerYAML) ScalerConfig() ScalerConfig {
	cfg := ScalerConfig{
		MinInstances:       s.MinInstances,
		MaxInstances:       s.MaxInstances,
		TargetCPU:          s.TargetCPU,
		ScaleUpThreshold:   s.ScaleUpThreshold,
		ScaleDownThreshold: s.ScaleDownThreshold,
		LatencyCeilingMs:   s.LatencyCeilingMs,
		LatencyFloorMs:     s.LatencyFloorMs,
		RateCeiling:        s.RateCeiling,
		RateFloor:          s.RateFloor,
	}
	if s.InitialInstances != nil {
		cfg.InitialInstances = *s.InitialInstances
	}
	return cfg
}

// BackendConfig selects and parameterizes the compute backend.
type BackendConfig struct {
	Name    string        `yaml:"name"`    // see ValidBackends
	Latency time.Duration `yaml:"latency"` // fixed-latency only
	URL     string        `yaml:"url"`     // remote only
	Timeout time.Duration `yaml:"timeout"` // per-batch deadline; 0 = none
}

// TraceConfig controls decision trace recording.
type TraceConfig struct {
	Level string `yaml:"level"` // "none" (default) or "decisions"
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"` // per /predict deadline; 0 = none
}

// ValidBackends is the set of recognized backend names. Empty defaults to placeholder.
var ValidBackends = map[string]bool{"": true, "placeholder": true, "fixed-latency": true, "remote": true}

// ValidTraceLevels is the set of recognized trace levels.
var ValidTraceLevels = map[string]bool{"": true, "none": true, "decisions": true}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{Capacity: 1000, Eviction: EvictFIFO},
		Batch: BatchConfig{Size: 32, MaxWait: 100 * time.Millisecond},
		Scaler: ScalerYAML{
			MinInstances:       1,
			MaxInstances:       10,
			TargetCPU:          DefaultTargetCPU,
			ScaleUpThreshold:   DefaultScaleUpThreshold,
			ScaleDownThreshold: DefaultScaleDownThreshold,
			LatencyCeilingMs:   DefaultLatencyCeilingMs,
			LatencyFloorMs:     DefaultLatencyFloorMs,
			RateCeiling:        DefaultRateCeiling,
			RateFloor:          DefaultRateFloor,
			Interval:           15 * time.Second,
			Window:             DefaultWindowLength,
		},
		Backend: BackendConfig{Name: "placeholder"},
		Trace:   TraceConfig{Level: "none"},
		Server:  ServerConfig{Addr: ":8000", RequestTimeout: 30 * time.Second},
	}
}

// LoadConfig reads a YAML file over DefaultConfig. Unknown fields are
// errors so that typos do not silently fall back to defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading serve config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes over DefaultConfig and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing serve config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks names against their closed sets and parameter ranges.
// Every failure wraps ErrInvalidConfiguration.
func (c *Config) Validate() error {
	if c.Cache.Capacity <= 0 {
		return InvalidConfig("cache.capacity must be > 0, got %d", c.Cache.Capacity)
	}
	if !ValidEvictionPolicies[c.Cache.Eviction] {
		return InvalidConfig("unknown eviction policy %q", c.Cache.Eviction)
	}
	if c.Batch.Size <= 0 {
		return InvalidConfig("batch.size must be > 0, got %d", c.Batch.Size)
	}
	if c.Batch.MaxWait < 0 {
		return InvalidConfig("batch.max_wait must be >= 0, got %v", c.Batch.MaxWait)
	}
	if c.Batch.FlushInterval < 0 {
		return InvalidConfig("batch.flush_interval must be >= 0, got %v", c.Batch.FlushInterval)
	}
	if c.Scaler.MinInstances > c.Scaler.MaxInstances {
		return InvalidConfig("scaler.min_instances (%d) must be <= scaler.max_instances (%d)",
			c.Scaler.MinInstances, c.Scaler.MaxInstances)
	}
	if c.Scaler.Interval < time.Second {
		return InvalidConfig("scaler.interval must be >= 1s, got %v", c.Scaler.Interval)
	}
	if c.Scaler.Window <= 0 {
		return InvalidConfig("scaler.window must be > 0, got %v", c.Scaler.Window)
	}
	if !ValidBackends[c.Backend.Name] {
		return InvalidConfig("unknown backend %q", c.Backend.Name)
	}
	if c.Backend.Name == "remote" && c.Backend.URL == "" {
		return InvalidConfig("backend.url is required for the remote backend")
	}
	if c.Backend.Latency < 0 || c.Backend.Timeout < 0 {
		return InvalidConfig("backend latency and timeout must be >= 0")
	}
	if c.Server.RequestTimeout < 0 {
		return InvalidConfig("server.request_timeout must be >= 0, got %v", c.Server.RequestTimeout)
	}
	if !ValidTraceLevels[c.Trace.Level] {
		return InvalidConfig("unknown trace level %q", c.Trace.Level)
	}
	// Remaining scaler checks (thresholds, initial count) live in NewScaleController.
	if _, err := NewScaleController(c.Scaler.ScalerConfig()); err != nil {
		return err
	}
	return nil
}

// StaleCheckInterval returns how often the dispatcher should call
// FlushIfStale.
func (b BatchConfig) StaleCheckInterval() time.Duration {
	switch {
	case b.FlushInterval > 0:
		return b.FlushInterval
	case b.MaxWait > 0:
		return b.MaxWait
	default:
		return 10 * time.Millisecond
	}
}
