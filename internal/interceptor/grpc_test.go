package interceptor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

const testMethod = "/reqtrace.demo.v1.Items/Get"

func incoming() context.Context {
	md := metadata.Pairs(
		"traceparent", inboundTraceparent,
		":authority", "items.internal:9000",
		"user-agent", "grpc-go/test",
	)
	return metadata.NewIncomingContext(context.Background(), md)
}

func TestMetadataCarrier(t *testing.T) {
	c := MetadataCarrier(metadata.MD{})
	c.Set("Traceparent", "v")

	assert.Equal(t, "v", c.Get("traceparent"))
	assert.Empty(t, c.Get("missing"))
}

func TestUnaryServerInterceptor(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		code    codes.Code
		message string
	}{
		{name: "ok", code: codes.OK},
		{name: "not found", err: status.Error(codes.NotFound, "no such item"), code: codes.NotFound, message: "no such item"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			i, rec := newTestInterceptor(nil)
			unary := UnaryServerInterceptor(i)

			out, err := unary(incoming(), "req", &grpc.UnaryServerInfo{FullMethod: testMethod},
				func(ctx context.Context, req any) (any, error) {
					require.NotNil(t, tracing.FromContext(ctx))
					if tt.err != nil {
						return nil, tt.err
					}
					return "resp", nil
				})

			if tt.err != nil {
				assert.Same(t, tt.err, err)
				assert.Nil(t, out)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "resp", out)
			}

			require.Equal(t, 1, rec.Calls())
			s := rec.Spans()[0]
			assert.Equal(t, testMethod, s.Name)
			assert.Equal(t, tracing.SpanKindServer, s.Kind)
			assert.Equal(t, "b7ad6b7169203331", s.ParentSpanID.String())
			assert.Equal(t, "grpc", s.Attributes[tracing.AttrRPCSystem])
			assert.Equal(t, testMethod, s.Attributes[tracing.AttrRPCMethod])
			assert.Equal(t, "items.internal", s.Attributes[tracing.AttrHTTPHost])
			assert.Equal(t, int64(tt.code), s.Attributes[tracing.AttrRPCCode])
			assert.Equal(t, tt.code, s.StatusCode())
			if tt.message != "" {
				assert.Equal(t, tt.message, s.Status.Message)
			}
		})
	}
}

func TestUnaryServerInterceptorDenyList(t *testing.T) {
	i, rec := newTestInterceptor(&Settings{BlacklistPaths: []string{"/grpc.health.v1.Health/**"}})
	unary := UnaryServerInterceptor(i)

	_, err := unary(incoming(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, req any) (any, error) { return nil, nil })

	require.NoError(t, err)
	assert.Zero(t, rec.Calls())
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func TestStreamServerInterceptor(t *testing.T) {
	i, rec := newTestInterceptor(nil)
	stream := StreamServerInterceptor(i)

	err := stream(nil, &fakeStream{ctx: incoming()}, &grpc.StreamServerInfo{FullMethod: testMethod, IsServerStream: true},
		func(srv any, ss grpc.ServerStream) error {
			assert.NotNil(t, tracing.FromContext(ss.Context()), "stream context carries the tracer")
			return status.Error(codes.Unavailable, "backend down")
		})

	assert.Equal(t, codes.Unavailable, status.Code(err))
	require.Equal(t, 1, rec.Calls())
	s := rec.Spans()[0]
	assert.Equal(t, true, s.Attributes[tracing.AttrStreaming])
	assert.Equal(t, codes.Unavailable, s.StatusCode())
}
