package main

import (
	"bytes"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	decodeFlags.json = false
	decodeFlags.propagator = "tracecontext"
	decodeFlags.traceState = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestDecode(t *testing.T) {
	out, err := execute(t, "decode", "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
	require.NoError(t, err)

	assert.Contains(t, out, "trace_id:    0af7651916cd43dd8448eb211c80319c")
	assert.Contains(t, out, "span_id:     b7ad6b7169203331")
	assert.Contains(t, out, "sampled:     true")
	assert.Contains(t, out, "remote:      true")
	assert.Contains(t, out, "traceparent: 00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01")
}

func TestDecodeJSON(t *testing.T) {
	out, err := execute(t, "decode", "--json", "--tracestate", "congo=t61rcWkgMzE",
		"00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-00")
	require.NoError(t, err)

	var d decodedContext
	require.NoError(t, sonic.UnmarshalString(out, &d))
	assert.Equal(t, "0af7651916cd43dd8448eb211c80319c", d.TraceID)
	assert.False(t, d.Sampled)
	assert.True(t, d.Remote)
	assert.Equal(t, "congo=t61rcWkgMzE", d.TraceState)
	assert.Equal(t, "congo=t61rcWkgMzE", d.Headers["tracestate"])
}

func TestDecodeMalformedFallsBack(t *testing.T) {
	out, err := execute(t, "decode", "--json", "not-a-traceparent")
	require.NoError(t, err)

	var d decodedContext
	require.NoError(t, sonic.UnmarshalString(out, &d))
	assert.False(t, d.Remote)
	assert.False(t, d.Sampled)
	assert.Len(t, d.TraceID, 32)
	assert.NotEqual(t, "00000000000000000000000000000000", d.TraceID)
}

func TestDecodeCloudTrace(t *testing.T) {
	out, err := execute(t, "decode", "--json", "--propagator", "cloudtrace",
		"105445aa7843bc8bf206b12000100000/1;o=1")
	require.NoError(t, err)

	var d decodedContext
	require.NoError(t, sonic.UnmarshalString(out, &d))
	assert.Equal(t, "105445aa7843bc8bf206b12000100000", d.TraceID)
	assert.Equal(t, "0000000000000001", d.SpanID)
	assert.True(t, d.Sampled)
	assert.Equal(t, "105445aa7843bc8bf206b12000100000/1;o=1", d.Headers["X-Cloud-Trace-Context"])
}

func TestDecodeUnknownPropagator(t *testing.T) {
	_, err := execute(t, "decode", "--propagator", "b3", "x")
	assert.ErrorContains(t, err, "unknown propagator")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "reqtrace "+Version)
	assert.Contains(t, out, "Go Version:")
}

func TestApplyServeFlags(t *testing.T) {
	defer func() { serveFlags.addr, serveFlags.logLevel = "", "" }()

	tests := []struct {
		name     string
		addr     string
		wantHost string
		wantPort string
		wantErr  bool
	}{
		{name: "port only", addr: ":9000", wantHost: "0.0.0.0", wantPort: "9000"},
		{name: "host and port", addr: "127.0.0.1:8081", wantHost: "127.0.0.1", wantPort: "8081"},
		{name: "missing port", addr: "localhost", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			serveFlags.addr = tt.addr
			serveFlags.logLevel = "debug"

			err := applyServeFlags(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, cfg.Server.Host)
			assert.Equal(t, tt.wantPort, cfg.Server.Port)
			assert.Equal(t, "debug", cfg.Logging.Level)
		})
	}
}
