package interceptor

import (
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// Settings is the tracing configuration an Interceptor applies to every
// request. A Settings value is never mutated once handed to an Interceptor;
// reconfiguration swaps in a new one.
type Settings struct {
	Sampler    tracing.Sampler
	Exporter   tracing.Exporter
	Propagator tracing.Propagator

	// BlacklistPaths are path prefixes or doublestar patterns, matched
	// without the leading slash ("health" and "/health" are the same).
	BlacklistPaths []string
	// BlacklistHostnames are exact hostnames or "*.example.com" suffixes.
	BlacklistHostnames []string
}

// DefaultSettings samples everything, prints spans to stdout and speaks W3C
// trace context.
func DefaultSettings() *Settings {
	return (&Settings{}).Normalize()
}

// Normalize returns a copy with missing components replaced by defaults.
func (s *Settings) Normalize() *Settings {
	out := &Settings{}
	if s != nil {
		*out = *s
	}
	if out.Sampler == nil {
		out.Sampler = tracing.NewProbabilitySampler(1)
	}
	if out.Exporter == nil {
		out.Exporter = tracing.NewPrintExporter(os.Stdout)
	}
	if out.Propagator == nil {
		out.Propagator = tracing.TraceContextPropagator{}
	}
	out.BlacklistPaths = append([]string(nil), out.BlacklistPaths...)
	out.BlacklistHostnames = append([]string(nil), out.BlacklistHostnames...)
	return out
}

// Denied reports whether a request to u must bypass tracing.
func (s *Settings) Denied(u *url.URL, host string) bool {
	if u != nil && s.pathDenied(u.Path) {
		return true
	}
	return s.hostDenied(host)
}

func (s *Settings) pathDenied(path string) bool {
	path = strings.TrimPrefix(path, "/")
	for _, pattern := range s.BlacklistPaths {
		pattern = strings.TrimPrefix(pattern, "/")
		if pattern == "" {
			continue
		}
		if hasMeta(pattern) {
			if ok, err := doublestar.Match(pattern, path); err == nil && ok {
				return true
			}
			continue
		}
		if strings.HasPrefix(path, pattern) {
			return true
		}
	}
	return false
}

func (s *Settings) hostDenied(host string) bool {
	if len(s.BlacklistHostnames) == 0 || host == "" {
		return false
	}
	host = strings.ToLower(stripPort(host))
	for _, h := range s.BlacklistHostnames {
		h = strings.ToLower(h)
		if suffix, ok := strings.CutPrefix(h, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == h {
			return true
		}
	}
	return false
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
