package verifier

import (
	"context"
	"fmt"
	"net"
	"strings"
)

// wildcardTestLabel is substituted for the wildcard label of any host
// beginning with "*." so the probe has something concrete to dial
// (spec.md §4.5 step 2, testable property 6).
const wildcardTestLabel = "wildcard-test"

// ProbeHost rewrites a wildcard host to its concrete probe form; any other
// host is returned unchanged.
func ProbeHost(host string) string {
	if rest, ok := strings.CutPrefix(host, "*."); ok {
		return wildcardTestLabel + "." + rest
	}
	return host
}

// ResolveAddresses returns every A and AAAA address host resolves to.
func ResolveAddresses(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("verifier: resolve %s: %w", host, err)
	}
	ips := make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, nil
}
