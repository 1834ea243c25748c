package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap/zapcore"
)

// FieldError describes one invalid setting.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ConfigError collects every invalid setting found by Validate.
type ConfigError struct {
	Errors []FieldError
}

func (e *ConfigError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

func (e *ConfigError) add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks ranges and required settings. Component names (sampler,
// exporter, propagator) are checked when the registry resolves them.
func (c *Config) Validate() error {
	errs := &ConfigError{}

	if c.Server.Port == "" {
		errs.add("server.port", "must not be empty")
	}
	if c.Server.ShutdownTimeout.Duration < 0 {
		errs.add("server.shutdown_timeout", "must not be negative")
	}

	var lvl zapcore.Level
	if c.Logging.Level != "" {
		if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
			errs.add("logging.level", "unknown level %q", c.Logging.Level)
		}
	}

	t := c.Trace
	if t.Probability < 0 || t.Probability > 1 {
		errs.add("trace.probability", "must be within [0, 1], got %v", t.Probability)
	}
	for _, p := range t.BlacklistPaths {
		if !doublestar.ValidatePattern(p) {
			errs.add("trace.blacklist_paths", "invalid pattern %q", p)
		}
	}
	switch t.Exporter {
	case "file":
		if t.FilePath == "" {
			errs.add("trace.file_path", "required by the file exporter")
		}
	case "zipkin":
		if u, err := url.Parse(t.Zipkin.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			errs.add("trace.zipkin.endpoint", "must be an absolute URL, got %q", t.Zipkin.Endpoint)
		}
		if t.Zipkin.RateLimit < 0 {
			errs.add("trace.zipkin.rate_limit", "must not be negative")
		}
		if t.Zipkin.MaxRetries < 0 {
			errs.add("trace.zipkin.max_retries", "must not be negative")
		}
	}

	if b := t.Batch; b.Enabled {
		if b.QueueSize <= 0 {
			errs.add("trace.batch.queue_size", "must be positive")
		}
		if b.MaxBatchSize <= 0 {
			errs.add("trace.batch.max_batch_size", "must be positive")
		}
		if b.FlushInterval.Duration <= 0 {
			errs.add("trace.batch.flush_interval", "must be positive")
		}
		switch b.Policy {
		case "", "drop_oldest", "block":
		default:
			errs.add("trace.batch.policy", "must be drop_oldest or block, got %q", b.Policy)
		}
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerSecond <= 0 {
		errs.add("rate_limit.requests_per_second", "must be positive when enabled")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs.add("metrics.path", "must start with /")
	}

	if len(errs.Errors) > 0 {
		return errs
	}
	return nil
}
