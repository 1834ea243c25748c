package tracing

import (
	"encoding/binary"
	"fmt"
	"math"
)

// SamplingParameters is everything a Sampler may consider.
type SamplingParameters struct {
	TraceID TraceID
	// ParentSampled is the sampled bit of a remote parent. False when there
	// is no parent.
	ParentSampled bool
}

// Sampler decides whether a trace is recorded. Implementations are
// immutable and safe for concurrent use.
type Sampler interface {
	ShouldSample(p SamplingParameters) bool
	Description() string
}

// ProbabilitySampler samples a fixed fraction of traces, keyed on the trace
// id so every service that sees the same trace makes the same call.
type ProbabilitySampler struct {
	probability float64
	bound       uint64
}

// NewProbabilitySampler clamps probability into [0, 1].
func NewProbabilitySampler(probability float64) ProbabilitySampler {
	if math.IsNaN(probability) || probability < 0 {
		probability = 0
	}
	if probability > 1 {
		probability = 1
	}
	s := ProbabilitySampler{probability: probability}
	if probability > 0 && probability < 1 {
		bound := probability * math.Exp2(64)
		if bound >= math.Exp2(64) {
			s.bound = math.MaxUint64
		} else {
			s.bound = uint64(bound)
		}
	}
	return s
}

// Probability returns the configured fraction
func (s ProbabilitySampler) Probability() float64 {
	return s.probability
}

// ShouldSample returns true when the parent was sampled. Otherwise the low 8
// bytes of the trace id, read big-endian, are compared against
// probability * 2^64.
func (s ProbabilitySampler) ShouldSample(p SamplingParameters) bool {
	if p.ParentSampled {
		return true
	}
	switch {
	case s.probability <= 0:
		return false
	case s.probability >= 1:
		return true
	}
	return binary.BigEndian.Uint64(p.TraceID[8:]) < s.bound
}

func (s ProbabilitySampler) Description() string {
	return fmt.Sprintf("ProbabilitySampler{%g}", s.probability)
}

// AlwaysOnSampler samples every trace.
type AlwaysOnSampler struct{}

func (AlwaysOnSampler) ShouldSample(SamplingParameters) bool { return true }

func (AlwaysOnSampler) Description() string { return "AlwaysOnSampler" }

// AlwaysOffSampler samples nothing, regardless of the parent.
type AlwaysOffSampler struct{}

func (AlwaysOffSampler) ShouldSample(SamplingParameters) bool { return false }

func (AlwaysOffSampler) Description() string { return "AlwaysOffSampler" }
