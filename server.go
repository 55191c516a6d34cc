// Package ipcache serves cached IP and ASN lookups over gRPC.
//
// A [Server] wraps a [grpc.Server] with ordered middleware (tracing,
// recovery, request IDs, access logging and rate limiting) configured
// through functional [Option] values. The lookup service itself lives in
// package lookupsvc and is usually backed by a client.Client:
//
//	c, _ := client.New(client.WithToken(token))
//	srv := ipcache.NewServer(ipcache.DefaultOptions()...)
//	srv.RegisterLookup(lookupsvc.NewHandler(c))
//	_ = srv.GRPC().Serve(lis)
package ipcache

import (
	"net/http"

	"github.com/Keksclan/ipcache/interceptors"
	"github.com/Keksclan/ipcache/lookupsvc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// Server is a gRPC server with the ipcache middleware stack.
type Server struct {
	grpcServer  *grpc.Server
	registry    *prometheus.Registry
	log         logrus.FieldLogger
	middlewares []string
}

// NewServer creates a Server. Middleware execution order is fixed
// (tracing, recovery, request ID, logging, rate limiting, then custom
// interceptors) regardless of the order options are passed in.
func NewServer(opts ...Option) *Server {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	mw := cfg.middlewares()
	serverOpts := mw.ServerOptions(interceptors.ChainUnary, interceptors.ChainStream)

	return &Server{
		grpcServer:  grpc.NewServer(serverOpts...),
		registry:    cfg.registry,
		log:         cfg.log,
		middlewares: mw.Names(),
	}
}

// GRPC returns the underlying *grpc.Server so callers can register services.
func (s *Server) GRPC() *grpc.Server {
	return s.grpcServer
}

// RegisterLookup registers the ipcache.Lookup service.
func (s *Server) RegisterLookup(h lookupsvc.Handler) {
	lookupsvc.Register(s.grpcServer, h)
	s.log.WithField("service", lookupsvc.ServiceName).Debug("registered grpc service")
}

// Middlewares returns the names of the active middleware in execution order.
func (s *Server) Middlewares() []string {
	return append([]string(nil), s.middlewares...)
}

// MetricsHandler returns an http.Handler that serves Prometheus metrics from
// the registry given to [WithMetricsRegistry], or the global registry.
func (s *Server) MetricsHandler() http.Handler {
	if s.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}
