package tracing

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func traceIDWithLow(low uint64) TraceID {
	var tid TraceID
	tid[0] = 1
	binary.BigEndian.PutUint64(tid[8:], low)
	return tid
}

func TestProbabilitySamplerDeterministic(t *testing.T) {
	s := NewProbabilitySampler(0.5)

	for i := 0; i < 100; i++ {
		tid := NewRootSpanContext().TraceID
		first := s.ShouldSample(SamplingParameters{TraceID: tid})
		for j := 0; j < 5; j++ {
			assert.Equal(t, first, s.ShouldSample(SamplingParameters{TraceID: tid}))
		}
	}
}

func TestProbabilitySamplerBound(t *testing.T) {
	s := NewProbabilitySampler(0.5)
	half := uint64(1) << 63

	assert.True(t, s.ShouldSample(SamplingParameters{TraceID: traceIDWithLow(half - 1)}))
	assert.False(t, s.ShouldSample(SamplingParameters{TraceID: traceIDWithLow(half)}))
	assert.True(t, s.ShouldSample(SamplingParameters{TraceID: traceIDWithLow(0)}))
	assert.False(t, s.ShouldSample(SamplingParameters{TraceID: traceIDWithLow(math.MaxUint64)}))
}

func TestProbabilitySamplerParentWins(t *testing.T) {
	for _, p := range []float64{0, 0.001, 0.5, 1} {
		s := NewProbabilitySampler(p)
		params := SamplingParameters{
			TraceID:       traceIDWithLow(math.MaxUint64),
			ParentSampled: true,
		}
		assert.True(t, s.ShouldSample(params), "probability %v", p)
	}
}

func TestProbabilitySamplerEdges(t *testing.T) {
	tests := []struct {
		name        string
		probability float64
		want        bool
	}{
		{"zero never samples", 0, false},
		{"negative never samples", -3, false},
		{"NaN never samples", math.NaN(), false},
		{"one always samples", 1, true},
		{"above one always samples", 7, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProbabilitySampler(tt.probability)
			for _, low := range []uint64{0, 1, 1 << 63, math.MaxUint64} {
				assert.Equal(t, tt.want, s.ShouldSample(SamplingParameters{TraceID: traceIDWithLow(low)}))
			}
		})
	}
}

func TestProbabilitySamplerRate(t *testing.T) {
	s := NewProbabilitySampler(0.25)

	const n = 20000
	hits := 0
	for i := 0; i < n; i++ {
		if s.ShouldSample(SamplingParameters{TraceID: NewRootSpanContext().TraceID}) {
			hits++
		}
	}

	rate := float64(hits) / n
	assert.InDelta(t, 0.25, rate, 0.03)
}

func TestProbabilitySamplerNearOne(t *testing.T) {
	s := NewProbabilitySampler(math.Nextafter(1, 0))
	assert.True(t, s.ShouldSample(SamplingParameters{TraceID: traceIDWithLow(0)}))
}

func TestFixedSamplers(t *testing.T) {
	params := SamplingParameters{TraceID: traceIDWithLow(0), ParentSampled: true}

	assert.True(t, AlwaysOnSampler{}.ShouldSample(SamplingParameters{}))
	assert.False(t, AlwaysOffSampler{}.ShouldSample(params))
	assert.Equal(t, "ProbabilitySampler{0.5}", NewProbabilitySampler(0.5).Description())
}
