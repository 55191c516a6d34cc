package ipcache

import (
	"github.com/Keksclan/ipcache/interceptors"
	"github.com/Keksclan/ipcache/internal/core"
	"github.com/Keksclan/ipcache/lookupsvc"
	"github.com/Keksclan/ipcache/policy"
	"github.com/Keksclan/ipcache/ratelimit"
	"github.com/Keksclan/ipcache/security"
	"github.com/Keksclan/ipcache/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// Fixed middleware positions. Lower values run first, so tracing wraps
// everything and rate limiting sits closest to the handler.
const (
	orderTracing   = 50
	orderRecovery  = 100
	orderRequestID = 200
	orderLogging   = 300
	orderAllowlist = 350
	orderRateLimit = 400
	orderCustom    = 1000
)

// adminMethods are the RPCs guarded by WithAdminAllowlist.
var adminMethods = []string{"/" + lookupsvc.ServiceName + "/ClearCache"}

// config holds the internal configuration assembled via functional options.
type config struct {
	log logrus.FieldLogger

	recovery  bool
	requestID bool
	logging   bool

	globalLimiter *ratelimit.Limiter
	methodLimits  []*policy.MethodGroup

	adminAllowlist *security.Allowlist

	tracing *tracing.TracingConfig

	unaryInterceptors  []grpc.UnaryServerInterceptor
	streamInterceptors []grpc.StreamServerInterceptor

	registry *prometheus.Registry
}

func defaultConfig() config {
	return config{log: logrus.StandardLogger()}
}

// middlewares registers the enabled middleware at their fixed positions.
// The order in which options were passed does not matter.
func (c *config) middlewares() *core.MiddlewareBuilder {
	var b core.MiddlewareBuilder

	if c.tracing != nil {
		b.Add(orderTracing, "tracing", tracing.UnaryServerInterceptor(c.tracing), tracing.StreamServerInterceptor(c.tracing))
	}
	if c.recovery {
		b.Add(orderRecovery, "recovery", interceptors.RecoveryUnary(c.log), interceptors.RecoveryStream(c.log))
	}
	if c.requestID {
		b.Add(orderRequestID, "request_id", interceptors.RequestIDUnary(), interceptors.RequestIDStream())
	}
	if c.logging {
		b.Add(orderLogging, "logging", interceptors.LoggingUnary(c.log), interceptors.LoggingStream(c.log))
	}
	if c.adminAllowlist != nil {
		b.Add(orderAllowlist, "allowlist",
			interceptors.AllowlistUnary(c.adminAllowlist, adminMethods...),
			interceptors.AllowlistStream(c.adminAllowlist, adminMethods...))
	}
	if c.globalLimiter != nil || len(c.methodLimits) > 0 {
		r := policy.NewResolver(c.methodLimits...)
		b.Add(orderRateLimit, "rate_limit", interceptors.RateLimitUnary(c.globalLimiter, r), interceptors.RateLimitStream(c.globalLimiter, r))
	}
	for _, u := range c.unaryInterceptors {
		b.Add(orderCustom, "custom", u, nil)
	}
	for _, s := range c.streamInterceptors {
		b.Add(orderCustom, "custom", nil, s)
	}
	return &b
}
