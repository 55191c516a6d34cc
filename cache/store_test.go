package cache

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/Keksclan/ipcache/model"
)

// newTestStore returns a Store driven by a manual clock starting at a fixed
// instant. Advance the returned pointer to move time forward.
func newTestStore(t *testing.T, ttl time.Duration, opts ...Option) (*Store, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	s, err := New(ttl, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, &now
}

func TestNew_RejectsNonPositiveTTL(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Second} {
		if _, err := New(ttl); !errors.Is(err, ErrInvalidTTL) {
			t.Fatalf("New(%s): expected ErrInvalidTTL, got %v", ttl, err)
		}
	}
}

func TestNew_RejectsOverflowingTTL(t *testing.T) {
	// The last representable instant; adding anything saturates.
	end := time.Unix(math.MaxInt64-62135596800, 999_999_999)
	_, err := New(time.Duration(math.MaxInt64), WithClock(func() time.Time { return end }))
	if !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestGet_NeverWrittenMisses(t *testing.T) {
	s, _ := newTestStore(t, time.Minute)

	if _, ok := s.GetIP("8.8.8.8"); ok {
		t.Fatal("expected IP miss")
	}
	if _, ok := s.GetASN("AS15169"); ok {
		t.Fatal("expected ASN miss")
	}
	if _, ok := s.Get("anything"); ok {
		t.Fatal("expected generic miss")
	}
}

func TestSetThenGet(t *testing.T) {
	s, _ := newTestStore(t, time.Minute)

	ip := &model.IPResult{IP: "8.8.8.8", City: "Mountain View"}
	asn := &model.ASNResult{ASN: "AS15169", Name: "Google LLC"}

	if !s.SetIP("8.8.8.8", ip) {
		t.Fatal("SetIP reported failure")
	}
	if !s.SetASN("AS15169", asn) {
		t.Fatal("SetASN reported failure")
	}
	if !s.Set("8.8.8.8/city", "Mountain View") {
		t.Fatal("Set reported failure")
	}

	if got, ok := s.GetIP("8.8.8.8"); !ok || got != ip {
		t.Fatalf("GetIP = %v, %v; want %v, true", got, ok, ip)
	}
	if got, ok := s.GetASN("AS15169"); !ok || got != asn {
		t.Fatalf("GetASN = %v, %v; want %v, true", got, ok, asn)
	}
	if got, ok := s.Get("8.8.8.8/city"); !ok || got != "Mountain View" {
		t.Fatalf("Get = %v, %v; want %q, true", got, ok, "Mountain View")
	}
}

func TestExpiry_Boundary(t *testing.T) {
	s, now := newTestStore(t, 10*time.Second)
	s.Set("k", 1)

	*now = now.Add(10*time.Second - time.Nanosecond)
	if _, ok := s.Get("k"); !ok {
		t.Fatal("expected hit one nanosecond before expiry")
	}

	*now = now.Add(time.Nanosecond)
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected miss exactly at createdAt+ttl")
	}
}

func TestExpiry_Scenario(t *testing.T) {
	s, now := newTestStore(t, 100*time.Millisecond)
	start := *now

	r := &model.IPResult{IP: "8.8.8.8", Org: "AS15169 Google LLC"}
	s.SetIP("8.8.8.8", r)

	*now = start.Add(50 * time.Millisecond)
	if got, ok := s.GetIP("8.8.8.8"); !ok || got != r {
		t.Fatalf("t=50ms: got %v, %v; want R", got, ok)
	}

	*now = start.Add(150 * time.Millisecond)
	if _, ok := s.GetIP("8.8.8.8"); ok {
		t.Fatal("t=150ms: expected miss")
	}

	r2 := &model.IPResult{IP: "8.8.8.8", Org: "AS15169 Google LLC", City: "Mountain View"}
	s.SetIP("8.8.8.8", r2)

	*now = start.Add(160 * time.Millisecond)
	if got, ok := s.GetIP("8.8.8.8"); !ok || got != r2 {
		t.Fatalf("t=160ms: got %v, %v; want R2", got, ok)
	}
}

func TestStaleEntryIsRetained(t *testing.T) {
	s, now := newTestStore(t, time.Second)
	s.SetASN("AS1", &model.ASNResult{ASN: "AS1"})

	*now = now.Add(time.Hour)
	if _, ok := s.GetASN("AS1"); ok {
		t.Fatal("expected stale miss")
	}
	if n := s.Len(); n != 1 {
		t.Fatalf("Len = %d after stale read, want 1", n)
	}
}

func TestOverwriteReplaces(t *testing.T) {
	s, now := newTestStore(t, time.Second)

	s.Set("k", "v1")
	*now = now.Add(900 * time.Millisecond)
	s.Set("k", "v2")

	if got, ok := s.Get("k"); !ok || got != "v2" {
		t.Fatalf("got %v, %v; want v2, true", got, ok)
	}

	// The overwrite carries a fresh timestamp.
	*now = now.Add(900 * time.Millisecond)
	if got, ok := s.Get("k"); !ok || got != "v2" {
		t.Fatalf("after 1.8s: got %v, %v; want v2, true", got, ok)
	}
	if n := s.Len(); n != 1 {
		t.Fatalf("Len = %d, want 1", n)
	}
}

func TestClearEmptiesAllSpaces(t *testing.T) {
	s, _ := newTestStore(t, time.Minute)

	s.SetIP("1.1.1.1", &model.IPResult{IP: "1.1.1.1"})
	s.SetASN("AS13335", &model.ASNResult{ASN: "AS13335"})
	s.Set("k", "v")

	if !s.Clear() {
		t.Fatal("Clear reported failure")
	}

	if _, ok := s.GetIP("1.1.1.1"); ok {
		t.Fatal("expected IP miss after Clear")
	}
	if _, ok := s.GetASN("AS13335"); ok {
		t.Fatal("expected ASN miss after Clear")
	}
	if _, ok := s.Get("k"); ok {
		t.Fatal("expected generic miss after Clear")
	}
	if n := s.Len(); n != 0 {
		t.Fatalf("Len = %d after Clear, want 0", n)
	}
}

func TestKeySpacesAreIsolated(t *testing.T) {
	s, _ := newTestStore(t, time.Minute)

	s.SetIP("shared", &model.IPResult{IP: "shared"})

	if _, ok := s.GetASN("shared"); ok {
		t.Fatal("IP write leaked into ASN space")
	}
	if _, ok := s.Get("shared"); ok {
		t.Fatal("IP write leaked into generic space")
	}

	s.Set("shared", 42)
	if got, ok := s.GetIP("shared"); !ok || got.IP != "shared" {
		t.Fatalf("generic write disturbed IP space: %v, %v", got, ok)
	}
}

func TestTTLAccessor(t *testing.T) {
	s, _ := newTestStore(t, 5*time.Minute)
	if s.TTL() != 5*time.Minute {
		t.Fatalf("TTL = %s, want 5m", s.TTL())
	}
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) inc(event string, sp Space) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[event+":"+string(sp)]++
}

func (r *countingRecorder) Hit(sp Space)   { r.inc("hit", sp) }
func (r *countingRecorder) Miss(sp Space)  { r.inc("miss", sp) }
func (r *countingRecorder) Stale(sp Space) { r.inc("stale", sp) }
func (r *countingRecorder) Set(sp Space)   { r.inc("set", sp) }
func (r *countingRecorder) Clear()         { r.inc("clear", "") }

func TestRecorderObservesOutcomes(t *testing.T) {
	rec := &countingRecorder{}
	s, now := newTestStore(t, time.Second, WithRecorder(rec))

	s.GetIP("8.8.8.8")
	s.SetIP("8.8.8.8", &model.IPResult{IP: "8.8.8.8"})
	s.GetIP("8.8.8.8")
	*now = now.Add(2 * time.Second)
	s.GetIP("8.8.8.8")
	s.Get("x")
	s.Clear()

	want := map[string]int{
		"miss:ip":      1,
		"set:ip":       1,
		"hit:ip":       1,
		"stale:ip":     1,
		"miss:generic": 1,
		"clear:":       1,
	}
	for k, v := range want {
		if rec.counts[k] != v {
			t.Errorf("%s = %d, want %d (all: %v)", k, rec.counts[k], v, rec.counts)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	s, err := New(time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				key := fmt.Sprintf("10.0.%d.%d", w, i%16)
				s.SetIP(key, &model.IPResult{IP: key})
				s.GetIP(key)
				s.Set(key, i)
				s.Get(key)
				s.GetASN(key)
				if i%50 == 0 {
					s.Clear()
				}
			}
		}()
	}
	wg.Wait()

	s.Set("after", true)
	if v, ok := s.Get("after"); !ok || v != true {
		t.Fatalf("store unusable after concurrent access: %v, %v", v, ok)
	}
}

func TestNopNeverHits(t *testing.T) {
	var c Cache = Nop{}
	if !c.SetIP("8.8.8.8", &model.IPResult{}) || !c.SetASN("AS1", &model.ASNResult{}) || !c.Set("k", 1) {
		t.Fatal("Nop setters must report success")
	}
	if _, ok := c.GetIP("8.8.8.8"); ok {
		t.Fatal("Nop GetIP hit")
	}
	if _, ok := c.GetASN("AS1"); ok {
		t.Fatal("Nop GetASN hit")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("Nop Get hit")
	}
	if !c.Clear() {
		t.Fatal("Nop Clear must report success")
	}
}
