package security

import (
	"context"
	"net"
	"net/netip"
	"strings"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

var defaultHeaders = []string{"x-real-ip", "x-forwarded-for"}

// clientAddr returns the effective caller address: the peer address, or,
// when the peer is a trusted proxy, the address it forwarded.
func clientAddr(ctx context.Context, md metadata.MD, proxies []netip.Prefix, headers []string) (netip.Addr, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return netip.Addr{}, false
	}
	addr, ok := netAddr(p.Addr)
	if !ok {
		return netip.Addr{}, false
	}
	if !contains(proxies, addr) {
		return addr, true
	}
	if fwd, ok := forwarded(md, headers, proxies); ok {
		return fwd, true
	}
	return addr, true
}

func netAddr(a net.Addr) (netip.Addr, bool) {
	s := a.String()
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().WithZone("").Unmap(), true
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone("").Unmap(), true
}

// forwarded reads the first usable header in priority order. Multi-hop
// values such as "client, proxy1, proxy2" are walked from the right, and
// the first hop that is not itself a trusted proxy is the caller; a
// client-supplied left-most entry is therefore never trusted blindly.
func forwarded(md metadata.MD, headers []string, proxies []netip.Prefix) (netip.Addr, bool) {
	for _, key := range headers {
		vals := md.Get(key)
		if len(vals) == 0 {
			continue
		}
		hops := strings.Split(strings.Join(vals, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			addr = addr.Unmap()
			if !contains(proxies, addr) {
				return addr, true
			}
		}
	}
	return netip.Addr{}, false
}
