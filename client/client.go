// Package client resolves IP addresses and AS numbers through an HTTP lookup
// API, consulting an expiring cache before every outbound request.
//
// A lookup first canonicalizes its key, then tries the cache. On a miss,
// concurrent callers for the same key share one upstream fetch, which is
// paced by a rate limiter, guarded by a circuit breaker and retried on
// transient failures. Successful results are written back to the cache.
//
// Errors are gRPC status errors so that they can be returned unchanged by
// the lookup service.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Keksclan/ipcache/breaker"
	"github.com/Keksclan/ipcache/cache"
	"github.com/Keksclan/ipcache/contextx"
	"github.com/Keksclan/ipcache/metrics"
	"github.com/Keksclan/ipcache/model"
	"github.com/Keksclan/ipcache/ratelimit"
	"github.com/Keksclan/ipcache/retry"
	"github.com/Keksclan/ipcache/tracing"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// DefaultBaseURL is the upstream lookup API.
	DefaultBaseURL = "https://ipinfo.io"

	// DefaultCacheTTL is how long results stay fresh in the default cache.
	DefaultCacheTTL = 24 * time.Hour

	userAgent   = "ipcache/1.0"
	maxBodySize = 1 << 20
)

// Lookup kinds, used in span names, metric labels and singleflight keys.
const (
	kindIP    = "ip"
	kindASN   = "asn"
	kindField = "field"
)

// Client is a caching lookup client. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	cache   cache.Cache
	retry   retry.Config
	breaker *breaker.Breaker
	limiter *ratelimit.Limiter
	log     logrus.FieldLogger
	tracer  trace.Tracer
	metrics *metrics.Upstream

	flights singleflight.Group
}

// New creates a Client. Without [WithCache] it keeps results in a fresh
// [cache.Store] with the TTL from [WithCacheTTL] (default [DefaultCacheTTL]).
func New(opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	base, err := url.Parse(cfg.baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", cfg.baseURL)
	}

	c := cfg.cache
	if c == nil {
		store, err := cache.New(cfg.cacheTTL, cache.WithLogger(cfg.log))
		if err != nil {
			return nil, fmt.Errorf("client: %w", err)
		}
		c = store
	}

	var br *breaker.Breaker
	if cfg.breaker != nil {
		br = breaker.New(*cfg.breaker)
	}

	return &Client{
		baseURL: strings.TrimRight(base.String(), "/"),
		token:   cfg.token,
		http:    cfg.httpClient,
		cache:   c,
		retry:   cfg.retry,
		breaker: br,
		limiter: cfg.limiter,
		log:     cfg.log,
		tracer:  tracing.Tracer(cfg.tracerProvider),
		metrics: cfg.metrics,
	}, nil
}

// Cache returns the cache consulted by the client.
func (c *Client) Cache() cache.Cache { return c.cache }

// ClearCache drops every cached lookup result.
func (c *Client) ClearCache() bool {
	return c.cache.Clear()
}

// LookupIP resolves ip. Bogon addresses are answered locally.
func (c *Client) LookupIP(ctx context.Context, ip string) (res *model.IPResult, err error) {
	addr, err := model.ParseIP(ip)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	key := addr.String()

	ctx, span := tracing.StartLookup(ctx, c.tracer, "IP", key)
	hit := false
	defer func() { tracing.EndLookup(span, hit, err) }()

	if model.IsBogon(addr) {
		return &model.IPResult{IP: key, Bogon: true}, nil
	}
	if r, ok := c.cache.GetIP(key); ok {
		hit = true
		return r, nil
	}

	return fetch(ctx, c, kindIP, key, func(ctx context.Context) (*model.IPResult, error) {
		var r model.IPResult
		if err := c.getJSON(ctx, key+"/json", &r); err != nil {
			return nil, err
		}
		if r.IP == "" {
			r.IP = key
		}
		c.cache.SetIP(key, &r)
		return &r, nil
	})
}

// LookupASN resolves an autonomous system given as "AS15169" or "15169".
func (c *Client) LookupASN(ctx context.Context, asn string) (res *model.ASNResult, err error) {
	key, err := model.CanonicalASN(asn)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	ctx, span := tracing.StartLookup(ctx, c.tracer, "ASN", key)
	hit := false
	defer func() { tracing.EndLookup(span, hit, err) }()

	if r, ok := c.cache.GetASN(key); ok {
		hit = true
		return r, nil
	}

	return fetch(ctx, c, kindASN, key, func(ctx context.Context) (*model.ASNResult, error) {
		var r model.ASNResult
		if err := c.getJSON(ctx, key+"/json", &r); err != nil {
			return nil, err
		}
		if r.ASN == "" {
			r.ASN = key
		}
		c.cache.SetASN(key, &r)
		return &r, nil
	})
}

// LookupField resolves a single attribute of ip, such as "city" or "org".
// Field answers are kept in the cache's generic key space.
func (c *Client) LookupField(ctx context.Context, ip, field string) (res string, err error) {
	addr, err := model.ParseIP(ip)
	if err != nil {
		return "", status.Error(codes.InvalidArgument, err.Error())
	}
	field = strings.ToLower(strings.TrimSpace(field))
	if !validField(field) {
		return "", status.Errorf(codes.InvalidArgument, "unsupported field %q", field)
	}
	key := addr.String() + "/" + field

	ctx, span := tracing.StartLookup(ctx, c.tracer, "Field", key)
	hit := false
	defer func() { tracing.EndLookup(span, hit, err) }()

	if model.IsBogon(addr) {
		if field == "ip" {
			return addr.String(), nil
		}
		return "", nil
	}
	if v, ok := c.cache.Get(key); ok {
		if s, ok := v.(string); ok {
			hit = true
			return s, nil
		}
	}

	return fetch(ctx, c, kindField, key, func(ctx context.Context) (string, error) {
		body, err := c.get(ctx, key, "text/plain")
		if err != nil {
			return "", err
		}
		v := strings.TrimSpace(string(body))
		c.cache.Set(key, v)
		return v, nil
	})
}

// fetch runs load at most once per key at a time. Callers that arrive while
// a load is in flight wait for its result, each bounded by its own ctx; the
// load itself is detached from any single caller's cancellation.
func fetch[T any](ctx context.Context, c *Client, kind, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	log := contextx.Logger(ctx, c.log).WithFields(logrus.Fields{"kind": kind, "key": key})

	ch := c.flights.DoChan(kind+":"+key, func() (any, error) {
		start := time.Now()
		v, err := guarded(context.WithoutCancel(ctx), c, log, load)
		c.metrics.Observe(kind, err, time.Since(start))
		if err != nil {
			log.WithField("code", status.Code(err)).WithError(err).Warn("upstream lookup failed")
			return nil, err
		}
		log.Debug("upstream lookup cached")
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, status.FromContextError(ctx.Err()).Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}
		return r.Val.(T), nil
	}
}

// guarded wraps load with upstream pacing, the breaker and retries.
func guarded[T any](ctx context.Context, c *Client, log logrus.FieldLogger, load func(context.Context) (T, error)) (T, error) {
	cfg := c.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			log.WithFields(logrus.Fields{"attempt": attempt, "delay": delay}).WithError(err).Debug("retrying upstream lookup")
		}
	}

	return retry.Do(ctx, cfg, func(ctx context.Context) (T, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			var zero T
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, status.FromContextError(ctxErr).Err()
			}
			return zero, status.Errorf(codes.ResourceExhausted, "upstream rate limit: %v", err)
		}
		return breaker.Execute(c.breaker, func() (T, error) { return load(ctx) })
	})
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.get(ctx, path, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return status.Errorf(codes.Internal, "decode upstream response: %v", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build upstream request: %v", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, status.FromContextError(ctxErr).Err()
		}
		return nil, status.Errorf(codes.Unavailable, "upstream request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "read upstream response: %v", err)
	}
	if err := upstreamError(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
