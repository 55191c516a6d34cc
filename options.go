package ipcache

import (
	"github.com/Keksclan/ipcache/policy"
	"github.com/Keksclan/ipcache/ratelimit"
	"github.com/Keksclan/ipcache/security"
	"github.com/Keksclan/ipcache/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// Option configures a Server.
type Option func(*config)

// WithLogger sets the logger used for recovered panics and, with
// [WithLogging], for access logs. Defaults to the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRecovery turns handler panics into codes.Internal errors. Panics are
// logged with their stack.
func WithRecovery() Option {
	return func(c *config) { c.recovery = true }
}

// WithRequestID attaches a request ID to every call, taken from incoming
// x-request-id metadata when present, and echoes it in the response header.
func WithRequestID() Option {
	return func(c *config) { c.requestID = true }
}

// WithLogging logs every call with its method, status code, duration and
// request ID. A nil logger keeps the one set by [WithLogger].
func WithLogging(l logrus.FieldLogger) Option {
	return func(c *config) {
		c.logging = true
		if l != nil {
			c.log = l
		}
	}
}

// WithRateLimitGlobal admits rps calls per second on average, with bursts of
// up to burst, across all methods not covered by [WithRateLimitMethods].
// Rejected calls fail with codes.ResourceExhausted.
func WithRateLimitGlobal(rps float64, burst int) Option {
	return func(c *config) { c.globalLimiter = ratelimit.NewLimiter(rps, burst) }
}

// WithRateLimitMethods gives groups of methods their own admission limits,
// e.g. a tight limit on ClearCache:
//
//	ipcache.WithRateLimitMethods(
//		policy.Group("admin").Exact("/ipcache.Lookup/ClearCache").Limit(0.1, 1),
//	)
func WithRateLimitMethods(groups ...*policy.MethodGroup) Option {
	return func(c *config) { c.methodLimits = append(c.methodLimits, groups...) }
}

// WithAdminAllowlist restricts ClearCache to callers admitted by a; others
// get codes.PermissionDenied. Lookups are not affected.
func WithAdminAllowlist(a *security.Allowlist) Option {
	return func(c *config) { c.adminAllowlist = a }
}

// WithOpenTelemetry creates a server span for every call and extracts the
// caller's trace context from metadata.
func WithOpenTelemetry(cfg tracing.TracingConfig) Option {
	return func(c *config) { c.tracing = &cfg }
}

// WithUnaryInterceptor appends a unary server interceptor. Custom
// interceptors run after the built-in middleware, in the order given.
func WithUnaryInterceptor(i grpc.UnaryServerInterceptor) Option {
	return func(c *config) { c.unaryInterceptors = append(c.unaryInterceptors, i) }
}

// WithStreamInterceptor appends a stream server interceptor.
func WithStreamInterceptor(i grpc.StreamServerInterceptor) Option {
	return func(c *config) { c.streamInterceptors = append(c.streamInterceptors, i) }
}

// WithMetricsRegistry serves metrics from reg instead of the global
// Prometheus registry.
func WithMetricsRegistry(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}
