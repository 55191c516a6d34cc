package interceptors

import (
	"context"
	"sync"

	"github.com/Keksclan/ipcache/policy"
	"github.com/Keksclan/ipcache/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errRateLimited = status.Error(codes.ResourceExhausted, "rate limit exceeded")

// admission picks the limiter for a method: the limiter of the method's
// policy group when one matches, the global limiter otherwise.
type admission struct {
	global   *ratelimit.Limiter
	resolver *policy.Resolver

	mu     sync.Mutex
	groups map[string]*ratelimit.Limiter
}

func newAdmission(global *ratelimit.Limiter, r *policy.Resolver) *admission {
	return &admission{global: global, resolver: r, groups: make(map[string]*ratelimit.Limiter)}
}

func (a *admission) allow(fullMethod string) bool {
	name, lim, ok := a.resolver.Resolve(fullMethod)
	if !ok {
		return a.global.Allow()
	}

	a.mu.Lock()
	l, seen := a.groups[name]
	if !seen {
		l = ratelimit.NewLimiter(lim.RPS, lim.Burst)
		a.groups[name] = l
	}
	a.mu.Unlock()

	return l.Allow()
}

// RateLimitUnary returns a unary server interceptor that rejects requests
// with codes.ResourceExhausted once the applicable limiter is exhausted.
//
// Methods matched by a group in r are admitted by that group's limiter,
// shared by all methods of the group; a group without a positive rate is
// unlimited. Everything else goes through global. Both may be nil.
func RateLimitUnary(global *ratelimit.Limiter, r *policy.Resolver) grpc.UnaryServerInterceptor {
	a := newAdmission(global, r)
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !a.allow(info.FullMethod) {
			return nil, errRateLimited
		}
		return handler(ctx, req)
	}
}

// RateLimitStream is the stream counterpart of [RateLimitUnary].
func RateLimitStream(global *ratelimit.Limiter, r *policy.Resolver) grpc.StreamServerInterceptor {
	a := newAdmission(global, r)
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if !a.allow(info.FullMethod) {
			return errRateLimited
		}
		return handler(srv, ss)
	}
}
