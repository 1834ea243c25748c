package interceptor

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/config"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing/exporter"
)

// ConfigError reports a component name the registry does not know.
type ConfigError struct {
	Kind  string // "sampler", "exporter" or "propagator"
	Name  string
	Known []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unknown %s %q (known: %s)", e.Kind, e.Name, strings.Join(e.Known, ", "))
}

// Deps are the shared services handed to component constructors.
type Deps struct {
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
}

// SamplerFactory builds a sampler from the trace config.
type SamplerFactory func(cfg config.TraceConfig) (tracing.Sampler, error)

// ExporterFactory builds an exporter from the full config.
type ExporterFactory func(cfg *config.Config, deps Deps) (tracing.Exporter, error)

// PropagatorFactory builds a propagator.
type PropagatorFactory func() tracing.Propagator

// Registry maps configuration names to component constructors.
type Registry struct {
	mu          sync.RWMutex
	samplers    map[string]SamplerFactory
	exporters   map[string]ExporterFactory
	propagators map[string]PropagatorFactory
}

// NewRegistry returns a registry with the built-in components.
func NewRegistry() *Registry {
	r := &Registry{
		samplers:    make(map[string]SamplerFactory),
		exporters:   make(map[string]ExporterFactory),
		propagators: make(map[string]PropagatorFactory),
	}

	r.RegisterSampler("probability", func(cfg config.TraceConfig) (tracing.Sampler, error) {
		if cfg.Probability < 0 || cfg.Probability > 1 {
			return nil, fmt.Errorf("probability must be within [0, 1], got %v", cfg.Probability)
		}
		return tracing.NewProbabilitySampler(cfg.Probability), nil
	})
	r.RegisterSampler("always_on", func(config.TraceConfig) (tracing.Sampler, error) {
		return tracing.AlwaysOnSampler{}, nil
	})
	r.RegisterSampler("always_off", func(config.TraceConfig) (tracing.Sampler, error) {
		return tracing.AlwaysOffSampler{}, nil
	})

	r.RegisterPropagator("tracecontext", func() tracing.Propagator { return tracing.TraceContextPropagator{} })
	r.RegisterPropagator("cloudtrace", func() tracing.Propagator { return tracing.CloudTraceContextPropagator{} })

	r.RegisterExporter("print", func(*config.Config, Deps) (tracing.Exporter, error) {
		return tracing.NewPrintExporter(os.Stdout), nil
	})
	r.RegisterExporter("log", func(_ *config.Config, deps Deps) (tracing.Exporter, error) {
		return exporter.NewLogExporter(deps.Logger), nil
	})
	r.RegisterExporter("file", func(cfg *config.Config, deps Deps) (tracing.Exporter, error) {
		return exporter.NewFileExporter(cfg.Trace.FilePath, deps.Logger, deps.Metrics)
	})
	r.RegisterExporter("zipkin", func(cfg *config.Config, deps Deps) (tracing.Exporter, error) {
		z := cfg.Trace.Zipkin
		service := z.ServiceName
		if service == "" {
			service = cfg.Server.ServiceName
		}
		return exporter.NewZipkinExporter(exporter.ZipkinConfig{
			Endpoint:    z.Endpoint,
			ServiceName: service,
			Timeout:     z.Timeout.Duration,
			Gzip:        z.Gzip,
			RateLimit:   z.RateLimit,
			Burst:       z.Burst,
			MaxRetries:  z.MaxRetries,
		}, deps.Logger, deps.Metrics)
	})

	return r
}

// RegisterSampler adds or replaces a sampler constructor.
func (r *Registry) RegisterSampler(name string, f SamplerFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samplers[name] = f
}

// RegisterExporter adds or replaces an exporter constructor.
func (r *Registry) RegisterExporter(name string, f ExporterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exporters[name] = f
}

// RegisterPropagator adds or replaces a propagator constructor.
func (r *Registry) RegisterPropagator(name string, f PropagatorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.propagators[name] = f
}

// Sampler builds the named sampler.
func (r *Registry) Sampler(cfg config.TraceConfig) (tracing.Sampler, error) {
	r.mu.RLock()
	f, ok := r.samplers[cfg.Sampler]
	known := keys(r.samplers)
	r.mu.RUnlock()

	if !ok {
		return nil, &ConfigError{Kind: "sampler", Name: cfg.Sampler, Known: known}
	}
	return f(cfg)
}

// Propagator builds the named propagator.
func (r *Registry) Propagator(name string) (tracing.Propagator, error) {
	r.mu.RLock()
	f, ok := r.propagators[name]
	known := keys(r.propagators)
	r.mu.RUnlock()

	if !ok {
		return nil, &ConfigError{Kind: "propagator", Name: name, Known: known}
	}
	return f(), nil
}

// Exporter builds the configured exporter, wrapped in a BatchExporter when
// batching is enabled.
func (r *Registry) Exporter(cfg *config.Config, deps Deps) (tracing.Exporter, error) {
	name := cfg.Trace.Exporter

	r.mu.RLock()
	f, ok := r.exporters[name]
	known := keys(r.exporters)
	r.mu.RUnlock()

	if !ok {
		return nil, &ConfigError{Kind: "exporter", Name: name, Known: known}
	}

	// Checked before f runs: exporters may open files or connections.
	b := cfg.Trace.Batch
	var policy exporter.Policy
	if b.Enabled {
		var err error
		if policy, err = exporter.ParsePolicy(b.Policy); err != nil {
			return nil, err
		}
	}

	exp, err := f(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", name, err)
	}
	if !b.Enabled {
		return exp, nil
	}
	return exporter.NewBatchExporter(exp, exporter.BatchConfig{
		Name:           name,
		QueueSize:      b.QueueSize,
		MaxBatchSize:   b.MaxBatchSize,
		FlushInterval:  b.FlushInterval.Duration,
		Policy:         policy,
		EnqueueTimeout: b.EnqueueTimeout.Duration,
	}, deps.Logger, deps.Metrics), nil
}

// Settings resolves every component named in cfg. Nothing is constructed
// unless all names resolve, so a bad config never leaks an open exporter.
func (r *Registry) Settings(cfg *config.Config, deps Deps) (*Settings, error) {
	sampler, err := r.Sampler(cfg.Trace)
	if err != nil {
		return nil, err
	}
	propagator, err := r.Propagator(cfg.Trace.Propagator)
	if err != nil {
		return nil, err
	}
	exp, err := r.Exporter(cfg, deps)
	if err != nil {
		return nil, err
	}

	s := &Settings{
		Sampler:            sampler,
		Exporter:           exp,
		Propagator:         propagator,
		BlacklistPaths:     cfg.Trace.BlacklistPaths,
		BlacklistHostnames: cfg.Trace.BlacklistHostnames,
	}
	return s.Normalize(), nil
}

var defaultRegistry = NewRegistry()

// SettingsFromConfig resolves cfg with the built-in registry.
func SettingsFromConfig(cfg *config.Config, deps Deps) (*Settings, error) {
	return defaultRegistry.Settings(cfg, deps)
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
