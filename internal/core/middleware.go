// Package core assembles server middleware into gRPC server options.
package core

import (
	"cmp"
	"slices"

	"google.golang.org/grpc"
)

// middleware is one named interceptor pair. Lower Order values run first
// (outermost).
type middleware struct {
	Name   string
	Order  int
	Unary  grpc.UnaryServerInterceptor
	Stream grpc.StreamServerInterceptor
}

// MiddlewareBuilder collects middleware entries and produces sorted
// interceptor slices ready for chaining. The zero value is ready to use.
type MiddlewareBuilder struct {
	entries []middleware
}

// Add registers a middleware entry with the given order. Either interceptor
// may be nil if only one direction is needed.
func (b *MiddlewareBuilder) Add(order int, name string, unary grpc.UnaryServerInterceptor, stream grpc.StreamServerInterceptor) {
	b.entries = append(b.entries, middleware{
		Name:   name,
		Order:  order,
		Unary:  unary,
		Stream: stream,
	})
}

func (b *MiddlewareBuilder) sort() {
	slices.SortStableFunc(b.entries, func(a, c middleware) int {
		return cmp.Compare(a.Order, c.Order)
	})
}

// Names returns the registered middleware names in execution order.
func (b *MiddlewareBuilder) Names() []string {
	b.sort()
	names := make([]string, 0, len(b.entries))
	for _, m := range b.entries {
		names = append(names, m.Name)
	}
	return names
}

// Build sorts the collected middleware by Order (stable) and returns the
// separated unary and stream interceptor slices.
func (b *MiddlewareBuilder) Build() ([]grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	b.sort()

	var unary []grpc.UnaryServerInterceptor
	var stream []grpc.StreamServerInterceptor
	for _, m := range b.entries {
		if m.Unary != nil {
			unary = append(unary, m.Unary)
		}
		if m.Stream != nil {
			stream = append(stream, m.Stream)
		}
	}
	return unary, stream
}

// ServerOptions chains the built interceptors with chainUnary and
// chainStream and wraps the results as grpc.ServerOption values.
func (b *MiddlewareBuilder) ServerOptions(
	chainUnary func([]grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor,
	chainStream func([]grpc.StreamServerInterceptor) grpc.StreamServerInterceptor,
) []grpc.ServerOption {
	unary, stream := b.Build()

	var opts []grpc.ServerOption
	if u := chainUnary(unary); u != nil {
		opts = append(opts, grpc.UnaryInterceptor(u))
	}
	if s := chainStream(stream); s != nil {
		opts = append(opts, grpc.StreamInterceptor(s))
	}
	return opts
}
