// Command ipcached serves cached IP and ASN lookups over gRPC.
//
// Results are fetched from the upstream lookup API on a miss and kept in
// memory for the configured TTL. Prometheus metrics are served over HTTP.
//
// Run:
//
//	IPCACHE_TOKEN=... go run ./cmd/ipcached -grpc-addr :9090 -metrics-addr :9100
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Keksclan/ipcache"
	"github.com/Keksclan/ipcache/cache"
	"github.com/Keksclan/ipcache/client"
	"github.com/Keksclan/ipcache/lookupsvc"
	"github.com/Keksclan/ipcache/metrics"
	"github.com/Keksclan/ipcache/policy"
	"github.com/Keksclan/ipcache/security"
	"github.com/Keksclan/ipcache/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ipcached: %v\n", err)
		os.Exit(2)
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Error("ipcached exited")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config, log *logrus.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	tp, err := newTracerProvider(cfg)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = tp.Shutdown(sctx)
	}()

	store, err := cache.New(cfg.CacheTTL,
		cache.WithLogger(log.WithField("component", "cache")),
		cache.WithRecorder(metrics.NewCache(reg)),
	)
	if err != nil {
		return err
	}

	c, err := client.New(
		client.WithBaseURL(cfg.BaseURL),
		client.WithToken(cfg.Token),
		client.WithCache(store),
		client.WithRateLimit(cfg.UpstreamRPS, cfg.UpstreamBurst),
		client.WithLogger(log.WithField("component", "client")),
		client.WithTracerProvider(tp),
		client.WithMetrics(metrics.NewUpstream(reg)),
	)
	if err != nil {
		return err
	}

	opts := append(ipcache.DefaultOptions(),
		ipcache.WithLogging(log.WithField("component", "grpc")),
		ipcache.WithOpenTelemetry(tracing.TracingConfig{TracerProvider: tp}),
		ipcache.WithMetricsRegistry(reg),
	)
	if cfg.RateLimitRPS > 0 {
		opts = append(opts, ipcache.WithRateLimitGlobal(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	if cfg.ClearRPS > 0 {
		opts = append(opts, ipcache.WithRateLimitMethods(
			policy.Group("admin").Exact("/"+lookupsvc.ServiceName+"/ClearCache").Limit(cfg.ClearRPS, 1),
		))
	}
	if len(cfg.AdminCIDRs) > 0 {
		allow, err := security.NewAllowlist(security.Config{
			Allow:          cfg.AdminCIDRs,
			TrustedProxies: cfg.TrustedProxies,
		})
		if err != nil {
			return err
		}
		opts = append(opts, ipcache.WithAdminAllowlist(allow))
	}
	srv := ipcache.NewServer(opts...)
	srv.RegisterLookup(lookupsvc.NewHandler(c))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":        lis.Addr().String(),
			"cache_ttl":   cfg.CacheTTL,
			"middlewares": srv.Middlewares(),
		}).Info("serving grpc")
		return srv.GRPC().Serve(lis)
	})

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", srv.MetricsHandler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.WithField("addr", cfg.MetricsAddr).Info("serving metrics")
			if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(sctx)
		}

		done := make(chan struct{})
		go func() {
			srv.GRPC().GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-sctx.Done():
			srv.GRPC().Stop()
		}
		return nil
	})

	return g.Wait()
}

// newTracerProvider returns an SDK provider that exports to stdout when
// enabled, and one without exporters otherwise. It is also installed as the
// global provider along with W3C trace-context propagation.
func newTracerProvider(cfg config) (*sdktrace.TracerProvider, error) {
	var opts []sdktrace.TracerProviderOption
	if cfg.TraceStdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return tp, nil
}
