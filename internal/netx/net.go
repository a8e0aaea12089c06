// Package netx holds small network helpers shared by the transports.
package netx

import (
	"net"
	"strings"
)

// NormalizeIP returns a canonical textual form of addr, which may carry a
// port ("203.0.113.5:4431", "[::1]:80") or be a bare address. Unparseable
// input is returned trimmed and lower-cased so that it still works as a
// stable map key.
func NormalizeIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.Trim(addr, "[]")
	if ip := net.ParseIP(addr); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
		return ip.String()
	}
	return strings.ToLower(addr)
}

// AttemptKey builds the identifier used to rate limit authentication
// attempts: the lower-cased account identifier joined with the client
// origin, e.g. "alice@example.com:203.0.113.5".
func AttemptKey(account, remoteAddr string) string {
	return strings.ToLower(strings.TrimSpace(account)) + ":" + NormalizeIP(remoteAddr)
}
