// Package id generates the identifiers used by the tracing pipeline.
//
// Trace ids are ULIDs: 16 bytes, the first 6 a millisecond timestamp and the
// remaining 10 random. The random tail is what probability sampling reads, so
// trace ids from one generator stay uniformly sampled while remaining
// k-sortable in logs.
//
// Span ids are 8 random bytes drawn from the same entropy source.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator produces trace and span ids from an entropy source.
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator backed by crypto/rand.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with cryptographically secure entropy.
func NewGenerator() *Generator {
	return &Generator{entropy: rand.Reader}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source.
// Tests use it with a seeded reader for reproducible ids.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate returns a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// TraceID returns 16 bytes suitable for a trace id. Never all zero.
func (g *Generator) TraceID() [16]byte {
	return [16]byte(g.Generate())
}

// SpanID returns 8 random bytes suitable for a span id. Never all zero.
func (g *Generator) SpanID() [8]byte {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	var b [8]byte
	for {
		if _, err := io.ReadFull(g.entropy, b[:]); err != nil {
			// Exhausted or broken entropy; fall back to the clock so callers
			// still get a usable id.
			binary.BigEndian.PutUint64(b[:], uint64(time.Now().UnixNano()))
		}
		if binary.BigEndian.Uint64(b[:]) != 0 {
			return b
		}
	}
}

// NewTraceID generates a trace id with the default generator.
func NewTraceID() [16]byte {
	return Default().TraceID()
}

// NewSpanID generates a span id with the default generator.
func NewSpanID() [8]byte {
	return Default().SpanID()
}

// IsValid reports whether s is a valid ULID string.
func IsValid(s string) bool {
	_, err := ulid.Parse(s)
	return err == nil
}

// Timestamp extracts the creation time embedded in a trace id.
func Timestamp(traceID [16]byte) time.Time {
	return ulid.Time(ulid.ULID(traceID).Time())
}
