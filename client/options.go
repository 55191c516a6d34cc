package client

import (
	"io"
	"net/http"
	"time"

	"github.com/Keksclan/ipcache/breaker"
	"github.com/Keksclan/ipcache/cache"
	"github.com/Keksclan/ipcache/metrics"
	"github.com/Keksclan/ipcache/ratelimit"
	"github.com/Keksclan/ipcache/retry"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

type config struct {
	baseURL    string
	token      string
	httpClient *http.Client

	cache    cache.Cache
	cacheTTL time.Duration

	retry          retry.Config
	breaker        *breaker.Config
	limiter        *ratelimit.Limiter
	log            logrus.FieldLogger
	tracerProvider trace.TracerProvider
	metrics        *metrics.Upstream
}

func defaultConfig() config {
	bc := breaker.DefaultConfig()
	l := logrus.New()
	l.SetOutput(io.Discard)
	return config{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cacheTTL:   DefaultCacheTTL,
		retry:      retry.DefaultConfig(),
		breaker:    &bc,
		log:        l,
	}
}

// Option configures a Client.
type Option func(*config)

// WithBaseURL points the client at a different upstream, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *config) { c.baseURL = u }
}

// WithToken sets the API token sent as a bearer credential.
func WithToken(token string) Option {
	return func(c *config) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithCache supplies the cache to consult. Pass cache.Nop{} to disable
// caching. It takes precedence over WithCacheTTL.
func WithCache(cc cache.Cache) Option {
	return func(c *config) { c.cache = cc }
}

// WithCacheTTL sets the TTL of the default cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *config) { c.cacheTTL = ttl }
}

// WithRetry replaces the retry policy for upstream requests.
func WithRetry(cfg retry.Config) Option {
	return func(c *config) { c.retry = cfg }
}

// WithBreaker replaces the circuit breaker configuration.
func WithBreaker(cfg breaker.Config) Option {
	return func(c *config) { c.breaker = &cfg }
}

// WithoutBreaker disables the circuit breaker.
func WithoutBreaker() Option {
	return func(c *config) { c.breaker = nil }
}

// WithRateLimit paces upstream requests to rps per second with the given
// burst. A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *config) { c.limiter = ratelimit.NewLimiter(rps, burst) }
}

// WithLogger sets the logger. Upstream failures are logged at warn level,
// retries and cache fills at debug level.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTracerProvider sets the provider for lookup spans. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) { c.tracerProvider = tp }
}

// WithMetrics records upstream request counts and latencies.
func WithMetrics(m *metrics.Upstream) Option {
	return func(c *config) { c.metrics = m }
}
