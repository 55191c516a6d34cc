package interceptors

import (
	"context"
	"slices"

	"github.com/Keksclan/ipcache/security"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errForbidden = status.Error(codes.PermissionDenied, "caller not allowed")

// AllowlistUnary returns a unary server interceptor that refuses calls to
// any of methods with codes.PermissionDenied unless a admits the caller.
// Other methods pass through untouched.
func AllowlistUnary(a *security.Allowlist, methods ...string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if slices.Contains(methods, info.FullMethod) && !a.Allowed(ctx) {
			return nil, errForbidden
		}
		return handler(ctx, req)
	}
}

// AllowlistStream is the stream counterpart of [AllowlistUnary].
func AllowlistStream(a *security.Allowlist, methods ...string) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if slices.Contains(methods, info.FullMethod) && !a.Allowed(ss.Context()) {
			return errForbidden
		}
		return handler(srv, ss)
	}
}
