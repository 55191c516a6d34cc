package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Keksclan/ipcache/client"
	"github.com/sirupsen/logrus"
)

const envPrefix = "IPCACHE_"

type config struct {
	GRPCAddr    string
	MetricsAddr string

	BaseURL  string
	Token    string
	CacheTTL time.Duration

	RateLimitRPS   float64
	RateLimitBurst int
	ClearRPS       float64
	UpstreamRPS    float64
	UpstreamBurst  int

	AdminCIDRs     []string
	TrustedProxies []string

	LogLevel    string
	LogFormat   string
	TraceStdout bool
}

// parseConfig reads flags from args. Every flag falls back to an
// IPCACHE_<NAME> environment variable, e.g. -cache-ttl to IPCACHE_CACHE_TTL.
func parseConfig(args []string, getenv func(string) string) (config, error) {
	var cfg config
	env := envLookup{getenv: getenv}

	fs := flag.NewFlagSet("ipcached", flag.ContinueOnError)
	fs.StringVar(&cfg.GRPCAddr, "grpc-addr", env.str("GRPC_ADDR", ":9090"), "gRPC listen address")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", env.str("METRICS_ADDR", ":9100"), "metrics listen address (empty disables)")
	fs.StringVar(&cfg.BaseURL, "base-url", env.str("BASE_URL", client.DefaultBaseURL), "upstream lookup API")
	fs.StringVar(&cfg.Token, "token", env.str("TOKEN", ""), "upstream API token")
	fs.DurationVar(&cfg.CacheTTL, "cache-ttl", env.duration("CACHE_TTL", client.DefaultCacheTTL), "how long lookup results stay fresh")
	fs.Float64Var(&cfg.RateLimitRPS, "rate-limit-rps", env.float("RATE_LIMIT_RPS", 0), "server admission rate (0 disables)")
	fs.IntVar(&cfg.RateLimitBurst, "rate-limit-burst", env.integer("RATE_LIMIT_BURST", 50), "server admission burst")
	fs.Float64Var(&cfg.ClearRPS, "clear-rps", env.float("CLEAR_RPS", 0.1), "ClearCache admission rate (0 disables)")
	fs.Float64Var(&cfg.UpstreamRPS, "upstream-rps", env.float("UPSTREAM_RPS", 0), "upstream request rate (0 disables)")
	fs.IntVar(&cfg.UpstreamBurst, "upstream-burst", env.integer("UPSTREAM_BURST", 10), "upstream request burst")
	adminCIDRs := fs.String("admin-cidrs", env.str("ADMIN_CIDRS", "127.0.0.1,::1"), "comma-separated networks allowed to call ClearCache (empty allows everyone)")
	proxies := fs.String("trusted-proxies", env.str("TRUSTED_PROXIES", ""), "comma-separated networks whose forwarding headers are trusted")
	fs.StringVar(&cfg.LogLevel, "log-level", env.str("LOG_LEVEL", "info"), "log level")
	fs.StringVar(&cfg.LogFormat, "log-format", env.str("LOG_FORMAT", "json"), "log format: json or text")
	fs.BoolVar(&cfg.TraceStdout, "trace-stdout", env.boolean("TRACE_STDOUT", false), "export traces to stdout")

	if err := fs.Parse(args); err != nil {
		return config{}, err
	}
	if env.err != nil {
		return config{}, env.err
	}
	cfg.AdminCIDRs = splitList(*adminCIDRs)
	cfg.TrustedProxies = splitList(*proxies)
	if cfg.GRPCAddr == "" {
		return config{}, fmt.Errorf("grpc-addr must not be empty")
	}
	if cfg.CacheTTL <= 0 {
		return config{}, fmt.Errorf("cache-ttl must be positive, got %s", cfg.CacheTTL)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return config{}, fmt.Errorf("log-format must be json or text, got %q", cfg.LogFormat)
	}
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envLookup reads defaults from the environment, keeping the first parse
// error.
type envLookup struct {
	getenv func(string) string
	err    error
}

func (e *envLookup) raw(name string) (string, bool) {
	if e.getenv == nil {
		e.getenv = os.Getenv
	}
	v := e.getenv(envPrefix + name)
	return v, v != ""
}

func (e *envLookup) fail(name, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s%s=%q: %w", envPrefix, name, v, err)
	}
}

func (e *envLookup) str(name, def string) string {
	if v, ok := e.raw(name); ok {
		return v
	}
	return def
}

func (e *envLookup) duration(name string, def time.Duration) time.Duration {
	v, ok := e.raw(name)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(name, v, err)
		return def
	}
	return d
}

func (e *envLookup) float(name string, def float64) float64 {
	v, ok := e.raw(name)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(name, v, err)
		return def
	}
	return f
}

func (e *envLookup) integer(name string, def int) int {
	v, ok := e.raw(name)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(name, v, err)
		return def
	}
	return n
}

func (e *envLookup) boolean(name string, def bool) bool {
	v, ok := e.raw(name)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(name, v, err)
		return def
	}
	return b
}

func newLogger(cfg config) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if cfg.LogFormat == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	lvl, _ := logrus.ParseLevel(cfg.LogLevel)
	l.SetLevel(lvl)
	return l
}
