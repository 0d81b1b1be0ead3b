package netutil

import (
	"context"
	"net"
	"strings"
	"time"
)

const lookupTimeout = 3 * time.Second

// ReverseLookup returns the first PTR name for an IP address, without the
// trailing dot, or "" when the address has no reverse record or is not an IP.
func ReverseLookup(ctx context.Context, addr string) string {
	if net.ParseIP(addr) == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	names, err := net.DefaultResolver.LookupAddr(ctx, addr)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}

// ResolveToIP resolves a hostname to its first IP address. IP literals and
// unresolvable names come back unchanged.
func ResolveToIP(ctx context.Context, host string) string {
	if net.ParseIP(host) != nil {
		return host
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil || len(addrs) == 0 {
		return host
	}
	return addrs[0]
}
