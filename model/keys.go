package model

import (
	"errors"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

var (
	// ErrInvalidIP is returned when a lookup key is not an IP address.
	ErrInvalidIP = errors.New("model: invalid IP address")

	// ErrInvalidASN is returned when a lookup key is not an AS number.
	ErrInvalidASN = errors.New("model: invalid AS number")
)

// CanonicalIP returns the canonical string form of s, so that equivalent
// spellings of one address share a cache entry. IPv4-mapped IPv6 addresses
// are reduced to their IPv4 form.
func CanonicalIP(s string) (string, error) {
	addr, err := ParseIP(s)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

// ParseIP parses s into an address, stripping surrounding whitespace and
// any IPv6 zone.
func ParseIP(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(s))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidIP, s)
	}
	return addr.Unmap().WithZone(""), nil
}

// CanonicalASN normalizes "AS15169", "as15169" and "15169" to "AS15169".
func CanonicalASN(s string) (string, error) {
	digits := strings.TrimSpace(s)
	if len(digits) >= 2 && strings.EqualFold(digits[:2], "AS") {
		digits = digits[2:]
	}
	if digits == "" || strings.ContainsAny(digits, "+-") {
		return "", fmt.Errorf("%w: %q", ErrInvalidASN, s)
	}
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidASN, s)
	}
	return "AS" + strconv.FormatUint(n, 10), nil
}
