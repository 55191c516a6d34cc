// Package tracing provides OpenTelemetry spans for ipcache: server
// interceptors for the lookup service and client spans around cached
// lookups. Tracing is only active where a [TracingConfig] or
// TracerProvider is wired in.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	grpcCodes "google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"
)

const instrumentationName = "github.com/Keksclan/ipcache/tracing"

// Attribute keys set on lookup spans.
const (
	AttrLookupKind = attribute.Key("ipcache.lookup.kind")
	AttrLookupKey  = attribute.Key("ipcache.lookup.key")
	AttrCacheHit   = attribute.Key("ipcache.cache_hit")
)

// TracingConfig holds the OpenTelemetry configuration used by the gRPC
// tracing interceptors.
type TracingConfig struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators extracts trace context from incoming metadata. When nil
	// the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator
}

func (c *TracingConfig) tracer() trace.Tracer {
	return Tracer(c.TracerProvider)
}

func (c *TracingConfig) propagators() propagation.TextMapPropagator {
	if c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// Tracer returns the ipcache tracer from tp, or from the global provider
// when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// StartLookup starts a client span for one lookup. End it with [EndLookup].
func StartLookup(ctx context.Context, tracer trace.Tracer, kind, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ipcache.Lookup"+kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(AttrLookupKind.String(kind), AttrLookupKey.String(key)),
	)
}

// EndLookup records whether the lookup was served from cache and its
// outcome, then ends span.
func EndLookup(span trace.Span, cacheHit bool, err error) {
	span.SetAttributes(AttrCacheHit.Bool(cacheHit))
	recordStatus(span, err)
	span.End()
}

// recordStatus sets the span status and records the gRPC status code. Any
// error fails a client span.
func recordStatus(span trace.Span, err error) {
	st, _ := grpcStatus.FromError(err)
	span.SetAttributes(attribute.String("rpc.grpc.status_code", st.Code().String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, st.Message())
		return
	}
	span.SetStatus(codes.Ok, "")
}

// recordServerStatus is recordStatus for server spans: answers such as
// NotFound or InvalidArgument are the caller's problem and leave the span
// status unset; only server faults mark it as failed.
func recordServerStatus(span trace.Span, err error) {
	st, _ := grpcStatus.FromError(err)
	span.SetAttributes(attribute.String("rpc.grpc.status_code", st.Code().String()))
	if err == nil {
		return
	}
	if serverFault(st.Code()) {
		span.RecordError(err)
		span.SetStatus(codes.Error, st.Message())
	}
}

func serverFault(c grpcCodes.Code) bool {
	switch c {
	case grpcCodes.Unknown, grpcCodes.DeadlineExceeded, grpcCodes.Unimplemented,
		grpcCodes.Internal, grpcCodes.Unavailable, grpcCodes.DataLoss:
		return true
	default:
		return false
	}
}
