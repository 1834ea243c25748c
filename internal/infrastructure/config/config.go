package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g.
// REQTRACE_TRACE_SAMPLER or REQTRACE_SERVER_PORT.
const EnvPrefix = "REQTRACE"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Logging   LogConfig       `yaml:"logging" toml:"logging" json:"logging" envconfig:"LOG"`
	Trace     TraceConfig     `yaml:"trace" toml:"trace" json:"trace"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics" json:"metrics"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit" split_words:"true"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `yaml:"host" toml:"host" json:"host"`
	Port            string   `yaml:"port" toml:"port" json:"port"`
	// GRPCPort enables a gRPC health endpoint behind the tracing
	// interceptors when set.
	GRPCPort        string   `yaml:"grpc_port" toml:"grpc_port" json:"grpc_port" split_words:"true"`
	ServiceName     string   `yaml:"service_name" toml:"service_name" json:"service_name" split_words:"true"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" json:"shutdown_timeout" split_words:"true"`
	CORSOrigins     []string `yaml:"cors_origins" toml:"cors_origins" json:"cors_origins" split_words:"true"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// GRPCAddr returns host:grpc_port, or "" when gRPC is disabled.
func (s ServerConfig) GRPCAddr() string {
	if s.GRPCPort == "" {
		return ""
	}
	return s.Host + ":" + s.GRPCPort
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `yaml:"level" toml:"level" json:"level"`
	Development bool   `yaml:"development" toml:"development" json:"development"`
}

// TraceConfig selects the sampler, exporter and propagator by name and
// holds the deny-lists. Names are resolved by the interceptor registry.
type TraceConfig struct {
	Sampler            string       `yaml:"sampler" toml:"sampler" json:"sampler"`
	Probability        float64      `yaml:"probability" toml:"probability" json:"probability"`
	Exporter           string       `yaml:"exporter" toml:"exporter" json:"exporter"`
	Propagator         string       `yaml:"propagator" toml:"propagator" json:"propagator"`
	BlacklistPaths     []string     `yaml:"blacklist_paths" toml:"blacklist_paths" json:"blacklist_paths" split_words:"true"`
	BlacklistHostnames []string     `yaml:"blacklist_hostnames" toml:"blacklist_hostnames" json:"blacklist_hostnames" split_words:"true"`
	FilePath           string       `yaml:"file_path" toml:"file_path" json:"file_path" split_words:"true"`
	Zipkin             ZipkinConfig `yaml:"zipkin" toml:"zipkin" json:"zipkin"`
	Batch              BatchConfig  `yaml:"batch" toml:"batch" json:"batch"`
}

// ZipkinConfig configures the zipkin exporter.
type ZipkinConfig struct {
	Endpoint    string   `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	ServiceName string   `yaml:"service_name" toml:"service_name" json:"service_name" split_words:"true"`
	Gzip        bool     `yaml:"gzip" toml:"gzip" json:"gzip"`
	Timeout     Duration `yaml:"timeout" toml:"timeout" json:"timeout"`
	RateLimit   float64  `yaml:"rate_limit" toml:"rate_limit" json:"rate_limit" split_words:"true"`
	Burst       int      `yaml:"burst" toml:"burst" json:"burst"`
	MaxRetries  int      `yaml:"max_retries" toml:"max_retries" json:"max_retries" split_words:"true"`
}

// BatchConfig wraps the exporter in a bounded queue when Enabled.
type BatchConfig struct {
	Enabled        bool     `yaml:"enabled" toml:"enabled" json:"enabled"`
	QueueSize      int      `yaml:"queue_size" toml:"queue_size" json:"queue_size" split_words:"true"`
	MaxBatchSize   int      `yaml:"max_batch_size" toml:"max_batch_size" json:"max_batch_size" split_words:"true"`
	FlushInterval  Duration `yaml:"flush_interval" toml:"flush_interval" json:"flush_interval" split_words:"true"`
	Policy         string   `yaml:"policy" toml:"policy" json:"policy"`
	EnqueueTimeout Duration `yaml:"enqueue_timeout" toml:"enqueue_timeout" json:"enqueue_timeout" split_words:"true"`
}

// MetricsConfig holds Prometheus endpoint configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Path    string `yaml:"path" toml:"path" json:"path"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `yaml:"requests_per_second" toml:"requests_per_second" json:"requests_per_second" split_words:"true"`
	Burst             int  `yaml:"burst" toml:"burst" json:"burst"`
	Enabled           bool `yaml:"enabled" toml:"enabled" json:"enabled"`
}

// Duration is a time.Duration written as a string ("5s") in config files
// and environment variables.
type Duration struct {
	time.Duration
}

// D wraps a time.Duration.
func D(d time.Duration) Duration { return Duration{d} }

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load loads defaults overridden by environment variables.
func Load() (*Config, error) {
	cfg := Default()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func applyEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8000",
			ServiceName:     "reqtrace",
			ShutdownTimeout: D(10 * time.Second),
			CORSOrigins:     []string{"*"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Trace: TraceConfig{
			Sampler:        "probability",
			Probability:    1.0,
			Exporter:       "print",
			Propagator:     "tracecontext",
			BlacklistPaths: []string{"/health", "/metrics"},
			FilePath:       "spans.jsonl",
			Zipkin: ZipkinConfig{
				Endpoint:   "http://localhost:9411/api/v2/spans",
				Timeout:    D(10 * time.Second),
				MaxRetries: 3,
			},
			Batch: BatchConfig{
				Enabled:        false,
				QueueSize:      2048,
				MaxBatchSize:   512,
				FlushInterval:  D(5 * time.Second),
				Policy:         "drop_oldest",
				EnqueueTimeout: D(100 * time.Millisecond),
			},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
