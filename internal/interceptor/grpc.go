package interceptor

import (
	"context"
	"net/url"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/GriffinCanCode/reqtrace/internal/infrastructure/tracing"
)

// MetadataCarrier adapts gRPC metadata to tracing.TextCarrier.
type MetadataCarrier metadata.MD

// Get returns the first value for key.
func (m MetadataCarrier) Get(key string) string {
	if v := metadata.MD(m).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

// Set replaces the values for key.
func (m MetadataCarrier) Set(key, value string) {
	metadata.MD(m).Set(key, value)
}

// RequestFromGRPC describes a gRPC call for Handle. The span is named after
// the full method and the host comes from the :authority pseudo-header.
func RequestFromGRPC(ctx context.Context, fullMethod string, streaming bool) RequestInfo {
	md, _ := metadata.FromIncomingContext(ctx)
	carrier := MetadataCarrier(md.Copy())

	host := carrier.Get(":authority")
	attrs := map[string]any{
		tracing.AttrRPCSystem: "grpc",
		tracing.AttrRPCMethod: fullMethod,
	}
	if streaming {
		attrs[tracing.AttrStreaming] = true
	}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		attrs[tracing.AttrPeerAddr] = p.Addr.String()
	}

	return RequestInfo{
		Method:     "POST",
		URL:        &url.URL{Scheme: "grpc", Host: host, Path: fullMethod},
		Host:       host,
		Route:      fullMethod,
		UserAgent:  carrier.Get("user-agent"),
		Header:     carrier,
		Name:       fullMethod,
		Attributes: attrs,
	}
}

// UnaryServerInterceptor traces unary gRPC calls through i.
func UnaryServerInterceptor(i *Interceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		var out any
		_, err := i.Handle(ctx, RequestFromGRPC(ctx, info.FullMethod, false), func(ctx context.Context) (Response, error) {
			var err error
			out, err = handler(ctx, req)
			return grpcResponse(ctx, err), err
		})
		return out, err
	}
}

// StreamServerInterceptor traces streaming gRPC calls through i. The span
// covers the whole stream.
func StreamServerInterceptor(i *Interceptor) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := ss.Context()
		_, err := i.Handle(ctx, RequestFromGRPC(ctx, info.FullMethod, true), func(ctx context.Context) (Response, error) {
			err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
			return grpcResponse(ctx, err), err
		})
		return err
	}
}

func grpcResponse(ctx context.Context, err error) Response {
	st := status.Convert(err)
	tracing.AddAttribute(ctx, tracing.AttrRPCCode, int(st.Code()))
	ts := tracing.Status{Code: st.Code(), Message: st.Message()}
	return Response{Status: &ts}
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context {
	return s.ctx
}
