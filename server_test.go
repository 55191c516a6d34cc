package ipcache

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/ipcache/cache"
	"github.com/Keksclan/ipcache/client"
	"github.com/Keksclan/ipcache/interceptors"
	"github.com/Keksclan/ipcache/lookupsvc"
	"github.com/Keksclan/ipcache/metrics"
	"github.com/Keksclan/ipcache/model"
	"github.com/Keksclan/ipcache/policy"
	"github.com/Keksclan/ipcache/security"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

// upstream is a fake lookup API that counts the requests it serves.
func upstream(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/8.8.8.8/json":
			_ = json.NewEncoder(w).Encode(model.IPResult{IP: "8.8.8.8", City: "Mountain View"})
		case "/AS15169/json":
			_ = json.NewEncoder(w).Encode(model.ASNResult{ASN: "AS15169", Name: "Google LLC"})
		case "/8.8.8.8/org":
			_, _ = io.WriteString(w, "AS15169 Google LLC\n")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func serve(t *testing.T, s *Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(bufSize)
	t.Cleanup(func() { s.GRPC().Stop() })
	go func() { _ = s.GRPC().Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNewServerReturnsNonNil(t *testing.T) {
	s := NewServer()
	if s == nil || s.GRPC() == nil {
		t.Fatal("NewServer() returned an unusable server")
	}
}

func TestRegisterLookup(t *testing.T) {
	c, err := client.New()
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	s := NewServer()
	s.RegisterLookup(lookupsvc.NewHandler(c))
	if _, ok := s.GRPC().GetServiceInfo()[lookupsvc.ServiceName]; !ok {
		t.Fatal("lookup service not registered")
	}
}

func TestEndToEndLookupsAreCached(t *testing.T) {
	up, calls := upstream(t)
	c, err := client.New(client.WithBaseURL(up.URL))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}

	logger, hook := test.NewNullLogger()
	s := NewServer(append(DefaultOptions(), WithLogging(logger))...)
	s.RegisterLookup(lookupsvc.NewHandler(c))
	conn := serve(t, s)

	for range 3 {
		resp := new(model.IPResult)
		if err := conn.Invoke(t.Context(), "/ipcache.Lookup/LookupIP", &lookupsvc.LookupIPRequest{IP: "8.8.8.8"}, resp); err != nil {
			t.Fatalf("LookupIP: %v", err)
		}
		if resp.City != "Mountain View" {
			t.Fatalf("unexpected response %+v", resp)
		}
	}
	asn := new(model.ASNResult)
	if err := conn.Invoke(t.Context(), "/ipcache.Lookup/LookupASN", &lookupsvc.LookupASNRequest{ASN: "15169"}, asn); err != nil {
		t.Fatalf("LookupASN: %v", err)
	}
	field := new(lookupsvc.LookupFieldResponse)
	if err := conn.Invoke(t.Context(), "/ipcache.Lookup/LookupField", &lookupsvc.LookupFieldRequest{IP: "8.8.8.8", Field: "org"}, field); err != nil {
		t.Fatalf("LookupField: %v", err)
	}
	if field.Value != "AS15169 Google LLC" {
		t.Fatalf("field value = %q", field.Value)
	}

	if n := calls.Load(); n != 3 {
		t.Fatalf("upstream served %d requests, want 3", n)
	}

	cleared := new(lookupsvc.ClearCacheResponse)
	if err := conn.Invoke(t.Context(), "/ipcache.Lookup/ClearCache", &lookupsvc.ClearCacheRequest{}, cleared); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	if !cleared.Cleared {
		t.Fatal("expected cleared=true")
	}
	if err := conn.Invoke(t.Context(), "/ipcache.Lookup/LookupIP", &lookupsvc.LookupIPRequest{IP: "8.8.8.8"}, new(model.IPResult)); err != nil {
		t.Fatalf("LookupIP after clear: %v", err)
	}
	if n := calls.Load(); n != 4 {
		t.Fatalf("upstream served %d requests after clear, want 4", n)
	}

	if n := len(hook.AllEntries()); n < 6 {
		t.Fatalf("expected an access log entry per call, got %d entries", n)
	}
}

func TestEndToEndErrorsKeepTheirCode(t *testing.T) {
	up, _ := upstream(t)
	c, err := client.New(client.WithBaseURL(up.URL))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	s := NewServer(DefaultOptions()...)
	s.RegisterLookup(lookupsvc.NewHandler(c))
	conn := serve(t, s)

	err = conn.Invoke(t.Context(), "/ipcache.Lookup/LookupIP", &lookupsvc.LookupIPRequest{IP: "1.1.1.1"}, new(model.IPResult))
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	err = conn.Invoke(t.Context(), "/ipcache.Lookup/LookupIP", &lookupsvc.LookupIPRequest{IP: "nope"}, new(model.IPResult))
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestRequestIDEchoedToCaller(t *testing.T) {
	up, _ := upstream(t)
	c, err := client.New(client.WithBaseURL(up.URL))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	s := NewServer(WithRequestID())
	s.RegisterLookup(lookupsvc.NewHandler(c))
	conn := serve(t, s)

	ctx := metadata.AppendToOutgoingContext(t.Context(), interceptors.RequestIDHeader, "trace-me")
	var header metadata.MD
	err = conn.Invoke(ctx, "/ipcache.Lookup/LookupIP", &lookupsvc.LookupIPRequest{IP: "10.1.2.3"}, new(model.IPResult), grpc.Header(&header))
	if err != nil {
		t.Fatalf("LookupIP: %v", err)
	}
	if v := header.Get(interceptors.RequestIDHeader); len(v) != 1 || v[0] != "trace-me" {
		t.Fatalf("response header %s = %v", interceptors.RequestIDHeader, v)
	}
}

func TestClearCacheRateLimitedSeparately(t *testing.T) {
	up, _ := upstream(t)
	c, err := client.New(client.WithBaseURL(up.URL))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	s := NewServer(
		WithRateLimitGlobal(1000, 100),
		WithRateLimitMethods(policy.Group("admin").Exact("/ipcache.Lookup/ClearCache").Limit(0.001, 1)),
	)
	s.RegisterLookup(lookupsvc.NewHandler(c))
	conn := serve(t, s)

	clearCache := func() error {
		return conn.Invoke(t.Context(), "/ipcache.Lookup/ClearCache", &lookupsvc.ClearCacheRequest{}, new(lookupsvc.ClearCacheResponse))
	}
	if err := clearCache(); err != nil {
		t.Fatalf("first ClearCache: %v", err)
	}
	if err := clearCache(); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
	if err := conn.Invoke(t.Context(), "/ipcache.Lookup/LookupIP", &lookupsvc.LookupIPRequest{IP: "10.0.0.1"}, new(model.IPResult)); err != nil {
		t.Fatalf("lookup should not share the admin budget: %v", err)
	}
}

func TestClearCacheRefusedOutsideAllowlist(t *testing.T) {
	up, _ := upstream(t)
	c, err := client.New(client.WithBaseURL(up.URL))
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	allow, err := security.NewAllowlist(security.Config{Allow: []string{"127.0.0.1"}})
	if err != nil {
		t.Fatalf("NewAllowlist: %v", err)
	}
	s := NewServer(WithAdminAllowlist(allow))
	s.RegisterLookup(lookupsvc.NewHandler(c))
	conn := serve(t, s)

	// bufconn peers have no IP address, so they can never be admitted.
	err = conn.Invoke(t.Context(), "/ipcache.Lookup/ClearCache", &lookupsvc.ClearCacheRequest{}, new(lookupsvc.ClearCacheResponse))
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
	if err := conn.Invoke(t.Context(), "/ipcache.Lookup/LookupIP", &lookupsvc.LookupIPRequest{IP: "10.0.0.1"}, new(model.IPResult)); err != nil {
		t.Fatalf("lookups must not be restricted: %v", err)
	}
}

func TestRecoveryThroughServer(t *testing.T) {
	logger, hook := test.NewNullLogger()
	s := NewServer(WithRecovery(), WithLogger(logger))
	s.RegisterLookup(lookupsvc.NewHandler(panicResolver{}))
	conn := serve(t, s)

	err := conn.Invoke(t.Context(), "/ipcache.Lookup/LookupIP", &lookupsvc.LookupIPRequest{IP: "8.8.8.8"}, new(model.IPResult))
	st, _ := status.FromError(err)
	if st.Code() != codes.Internal || st.Message() != "internal server error" {
		t.Fatalf("expected Internal, got %v", err)
	}
	if e := hook.LastEntry(); e == nil || e.Message != "recovered from handler panic" {
		t.Fatalf("expected panic log entry, got %v", e)
	}
}

type panicResolver struct{}

func (panicResolver) LookupIP(context.Context, string) (*model.IPResult, error) {
	panic("boom")
}

func (panicResolver) LookupASN(context.Context, string) (*model.ASNResult, error) {
	panic("boom")
}

func (panicResolver) LookupField(context.Context, string, string) (string, error) {
	panic("boom")
}

func (panicResolver) ClearCache() bool {
	panic("boom")
}

func TestMetricsHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewCache(reg)
	store, err := cache.New(time.Hour, cache.WithRecorder(rec))
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	store.GetIP("8.8.8.8")

	s := NewServer(WithMetricsRegistry(reg))
	rr := httptest.NewRecorder()
	s.MetricsHandler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := rr.Body.String(); !strings.Contains(body, `ipcache_cache_requests_total{result="miss",space="ip"} 1`) {
		t.Fatalf("metrics output missing cache miss counter:\n%s", body)
	}
}

func TestMetricsHandlerDefaultsToGlobalRegistry(t *testing.T) {
	if NewServer().MetricsHandler() == nil {
		t.Fatal("MetricsHandler() returned nil")
	}
}
