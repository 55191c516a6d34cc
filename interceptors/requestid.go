package interceptors

import (
	"context"

	"github.com/Keksclan/ipcache/contextx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader is the metadata key carrying the request ID in both
// directions.
const RequestIDHeader = "x-request-id"

// maxRequestIDLen bounds caller-supplied IDs.
const maxRequestIDLen = 128

// incomingRequestID returns the caller's x-request-id, if usable.
func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(RequestIDHeader)
	if len(vals) == 0 || vals[0] == "" || len(vals[0]) > maxRequestIDLen {
		return ""
	}
	return vals[0]
}

// ensureRequestID returns ctx carrying a request ID, preferring one already
// on the context, then the caller's, then a fresh random one.
func ensureRequestID(ctx context.Context) (context.Context, string) {
	if id := contextx.RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := incomingRequestID(ctx)
	if id == "" {
		id = contextx.NewRequestID()
	}
	return contextx.WithRequestID(ctx, id), id
}

// RequestIDUnary returns a unary server interceptor that attaches a request
// ID to the context and echoes it in the response header.
func RequestIDUnary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, id := ensureRequestID(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))
		return handler(ctx, req)
	}
}

// RequestIDStream is the stream counterpart of [RequestIDUnary].
func RequestIDStream() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, id := ensureRequestID(ss.Context())
		_ = ss.SetHeader(metadata.Pairs(RequestIDHeader, id))
		return handler(srv, &contextStream{ServerStream: ss, ctx: ctx})
	}
}

// contextStream overrides the context of a ServerStream.
type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context { return s.ctx }
