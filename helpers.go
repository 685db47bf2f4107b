package inspectcore

import (
	"net"
	"sort"
	"strings"
)

// isIPv4 checks if input IP is of type v4.
func isIPv4(addr string) bool {
	return strings.Count(addr, ":") < 2
}

// appendCIDR appends a host CIDR suffix for a single IP: /32 for IPv4,
// /128 for IPv6, so it can be inserted into an iptrie.Trie.
func appendCIDR(ip string) string {
	if isIPv4(ip) {
		return ip + "/32"
	}
	return ip + "/128"
}

// extractIP extracts the IP address from a remote address string of the
// form "host:port"; if splitting fails the input is assumed to already be
// a bare IP address.
func extractIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// sortStrings sorts s in place and returns it, used to impose a
// deterministic key order wherever map iteration would otherwise leak into
// observable behavior (spec.md §9 "Non-determinism risk").
func sortStrings(s []string) []string {
	sort.Strings(s)
	return s
}

// clampIndex clamps idx into the inclusive range [0, length-1]. Used by the
// forwarded-for resolver (spec.md §4.A, §9 Open Question): the "len - hops"
// formula must not silently fall back to a different value when the header
// is malformed, it must clamp.
func clampIndex(idx, length int) int {
	if length <= 0 {
		return 0
	}
	if idx < 0 {
		return 0
	}
	if idx >= length {
		return length - 1
	}
	return idx
}
