package tracing

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryServerInterceptor returns a [grpc.UnaryServerInterceptor] that starts
// a server span per call, continuing the caller's trace when its metadata
// carries one. A nil cfg disables tracing.
func UnaryServerInterceptor(cfg *TracingConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if cfg == nil {
			return handler(ctx, req)
		}
		ctx, span := startServerSpan(ctx, cfg, info.FullMethod)
		defer span.End()

		resp, err := handler(ctx, req)
		recordServerStatus(span, err)
		return resp, err
	}
}

// StreamServerInterceptor is the stream counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(cfg *TracingConfig) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if cfg == nil {
			return handler(srv, ss)
		}
		ctx, span := startServerSpan(ss.Context(), cfg, info.FullMethod)
		defer span.End()

		err := handler(srv, &tracedStream{ServerStream: ss, ctx: ctx})
		recordServerStatus(span, err)
		return err
	}
}

// startServerSpan names the span after the full method and tags it with the
// rpc.* attributes.
func startServerSpan(ctx context.Context, cfg *TracingConfig, fullMethod string) (context.Context, trace.Span) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		ctx = cfg.propagators().Extract(ctx, mdCarrier(md))
	}

	service, method := splitFullMethod(fullMethod)
	return cfg.tracer().Start(ctx, fullMethod,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
		),
	)
}

// mdCarrier exposes incoming metadata to OTel propagators.
type mdCarrier metadata.MD

func (c mdCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c mdCarrier) Set(key, value string) { metadata.MD(c).Set(key, value) }

func (c mdCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// splitFullMethod splits "/ipcache.Lookup/LookupIP" into
// ("ipcache.Lookup", "LookupIP").
func splitFullMethod(fullMethod string) (service, method string) {
	service, method, _ = strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	return service, method
}

type tracedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedStream) Context() context.Context { return s.ctx }
