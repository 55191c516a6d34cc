package interceptors

import (
	"context"
	"strings"
	"testing"

	"github.com/Keksclan/ipcache/contextx"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// fakeStream is a ServerStream with just enough behaviour for interceptors.
type fakeStream struct {
	grpc.ServerStream
	ctx    context.Context
	header metadata.MD
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func (s *fakeStream) SetHeader(md metadata.MD) error {
	s.header = metadata.Join(s.header, md)
	return nil
}

func captureID(t *testing.T, ctx context.Context) string {
	t.Helper()
	var got string
	_, err := RequestIDUnary()(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, _ any) (any, error) {
		got = contextx.RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return got
}

func TestRequestIDUnary_GeneratesID(t *testing.T) {
	id := captureID(t, t.Context())
	if len(id) != 32 {
		t.Fatalf("expected 32 hex chars, got %q", id)
	}
	if other := captureID(t, t.Context()); other == id {
		t.Fatal("expected distinct IDs per request")
	}
}

func TestRequestIDUnary_HonoursIncomingMetadata(t *testing.T) {
	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs(RequestIDHeader, "caller-id-1"))
	if id := captureID(t, ctx); id != "caller-id-1" {
		t.Fatalf("got %q, want caller-id-1", id)
	}
}

func TestRequestIDUnary_IgnoresOversizedIncomingID(t *testing.T) {
	long := strings.Repeat("x", maxRequestIDLen+1)
	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs(RequestIDHeader, long))
	if id := captureID(t, ctx); id == long || id == "" {
		t.Fatalf("expected a generated ID, got %q", id)
	}
}

func TestRequestIDUnary_KeepsExistingContextID(t *testing.T) {
	ctx := contextx.WithRequestID(t.Context(), "already-set")
	if id := captureID(t, ctx); id != "already-set" {
		t.Fatalf("got %q, want already-set", id)
	}
}

func TestRequestIDStream_SetsContextAndHeader(t *testing.T) {
	ss := &fakeStream{ctx: metadata.NewIncomingContext(t.Context(), metadata.Pairs(RequestIDHeader, "stream-id"))}

	var got string
	err := RequestIDStream()(nil, ss, &grpc.StreamServerInfo{}, func(_ any, s grpc.ServerStream) error {
		got = contextx.RequestIDFromContext(s.Context())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "stream-id" {
		t.Fatalf("got %q, want stream-id", got)
	}
	if v := ss.header.Get(RequestIDHeader); len(v) != 1 || v[0] != "stream-id" {
		t.Fatalf("response header = %v", ss.header)
	}
}
