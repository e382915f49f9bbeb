package fetch

import (
	"net"
	"net/url"
	"strings"
)

// Private and reserved ranges. Shared by the literal-host check in Validate
// and by the resolver, so both stages apply the same policy.
var blockedNets = mustParseCIDRs(
	"0.0.0.0/8",      // "this" network
	"10.0.0.0/8",     // RFC 1918
	"100.64.0.0/10",  // carrier-grade NAT
	"127.0.0.0/8",    // loopback
	"169.254.0.0/16", // link-local, cloud metadata
	"172.16.0.0/12",  // RFC 1918
	"192.168.0.0/16", // RFC 1918
	"224.0.0.0/4",    // multicast
	"240.0.0.0/4",    // reserved, includes 255.255.255.255
	"::/128",         // unspecified
	"::1/128",        // loopback
	"64:ff9b:1::/48", // local-use NAT64
	"fc00::/7",       // unique local
	"fe80::/10",      // link-local
	"ff00::/8",       // multicast
)

// IPv6 prefixes that carry an IPv4 address, with the byte offset of the
// embedded address. The embedded address is checked against blockedNets.
var embeddingNets = []struct {
	prefix *net.IPNet
	offset int
}{
	{mustParseCIDRs("64:ff9b::/96")[0], 12}, // NAT64
	{mustParseCIDRs("2002::/16")[0], 2},     // 6to4
	{mustParseCIDRs("::/96")[0], 12},        // IPv4-compatible
}

var blockedHostnames = map[string]bool{
	"localhost": true,
	"0.0.0.0":   true,
	"[::1]":     true,
	"[::]":      true,
	"::1":       true,
	"::":        true,
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("invalid CIDR " + c + ": " + err.Error())
		}
		nets = append(nets, n)
	}
	return nets
}

// IsBlockedIP reports whether ip falls in a private, loopback, link-local,
// multicast or reserved range. IPv4-mapped, NAT64, 6to4 and IPv4-compatible
// IPv6 addresses are also checked by the IPv4 address they carry.
func IsBlockedIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	} else if v4 := embeddedIPv4(ip); v4 != nil && IsBlockedIP(v4) {
		return true
	}
	for _, n := range blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func embeddedIPv4(ip net.IP) net.IP {
	ip = ip.To16()
	if ip == nil {
		return nil
	}
	for _, e := range embeddingNets {
		if e.prefix.Contains(ip) {
			return net.IPv4(ip[e.offset], ip[e.offset+1], ip[e.offset+2], ip[e.offset+3]).To4()
		}
	}
	return nil
}

// Validate parses a candidate URL and applies scheme and host policy. It never
// touches the network; a host that passes may still resolve to a private
// address, which the resolver rejects later.
func Validate(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, invalidURL("url is required", nil)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, invalidURL("malformed url", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		if u.Scheme == "" {
			return nil, invalidURL("url must include an http or https scheme", nil)
		}
		return nil, invalidURL("unsupported scheme "+u.Scheme, nil)
	}
	if u.Host == "" || u.Hostname() == "" {
		return nil, invalidURL("url has no host", nil)
	}
	if err := checkHost(u); err != nil {
		return nil, err
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Fragment = ""
	return u, nil
}

func checkHost(u *url.URL) *Error {
	host := strings.ToLower(u.Hostname())
	host = strings.TrimSuffix(host, ".")

	if strings.HasPrefix(u.Host, "[") {
		return blocked("IPv6 literal hosts are not allowed", host)
	}
	if blockedHostnames[host] || strings.HasSuffix(host, ".localhost") {
		return blocked("host "+host+" is not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		if IsBlockedIP(ip) {
			return blocked("private or reserved address "+host+" is not allowed", host)
		}
		return nil
	}
	if isObfuscatedIP(host) {
		return blocked("numeric host "+host+" is not allowed", host)
	}
	return nil
}

// isObfuscatedIP catches hosts made only of numeric labels that some
// resolvers turn into addresses even though they are not dotted quads:
// 2130706433, 0x7f000001, 127.1, 0177.0.0.1. Canonical dotted quads never get
// here because net.ParseIP handles them first.
func isObfuscatedIP(host string) bool {
	for _, label := range strings.Split(host, ".") {
		if label == "" || !(isDecimal(label) || isHex(label)) {
			return false
		}
	}
	return true
}

func isDecimal(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func isHex(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) == 2 {
		return false
	}
	for _, r := range s[2:] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}
