// Package security restricts privileged RPCs, such as clearing the lookup
// cache, to callers from trusted networks.
package security

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Config configures an Allowlist.
type Config struct {
	// Allow lists the networks (CIDRs or bare addresses) callers must
	// come from.
	Allow []string

	// TrustedProxies lists the networks whose forwarding headers are
	// believed. Calls arriving from any other peer are judged by the peer
	// address alone.
	TrustedProxies []string

	// Headers is the ordered list of metadata keys consulted when the peer
	// is a trusted proxy. Defaults to x-real-ip, then x-forwarded-for.
	Headers []string
}

// Allowlist admits callers whose effective address lies in an allowed
// network. It is safe for concurrent use.
type Allowlist struct {
	allow   []netip.Prefix
	proxies []netip.Prefix
	headers []string
}

// NewAllowlist parses cfg. An invalid network is an error; an empty Allow
// list admits nobody.
func NewAllowlist(cfg Config) (*Allowlist, error) {
	allow, err := ParsePrefixes(cfg.Allow)
	if err != nil {
		return nil, fmt.Errorf("security: invalid allowed network: %w", err)
	}
	proxies, err := ParsePrefixes(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("security: invalid trusted proxy: %w", err)
	}

	headers := cfg.Headers
	if len(headers) == 0 {
		headers = defaultHeaders
	}
	return &Allowlist{allow: allow, proxies: proxies, headers: headers}, nil
}

// Allowed reports whether the caller of the RPC carried by ctx may proceed.
// Callers whose address cannot be determined are refused.
func (a *Allowlist) Allowed(ctx context.Context) bool {
	md, _ := metadata.FromIncomingContext(ctx)
	addr, ok := clientAddr(ctx, md, a.proxies, a.headers)
	return ok && contains(a.allow, addr)
}

func contains(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ParsePrefixes parses networks given as CIDRs or bare addresses; a bare
// address becomes a single-host prefix. Surrounding spaces and empty
// entries are ignored, so a comma-split flag value can be passed as is.
func ParsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("%q is neither a CIDR nor an address", s)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
