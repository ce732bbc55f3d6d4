package iputil

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ParseCIDRs parses a list of IP addresses or CIDR notations. Bare IPs are
// widened to host masks (/32 for IPv4, /128 for IPv6).
func ParseCIDRs(cidrStrings []string) ([]*net.IPNet, error) {
	if len(cidrStrings) == 0 {
		return nil, nil
	}

	cidrs := make([]*net.IPNet, 0, len(cidrStrings))
	for _, cidrStr := range cidrStrings {
		if ip := net.ParseIP(cidrStr); ip != nil {
			var mask net.IPMask
			if ip.To4() != nil {
				mask = net.CIDRMask(32, 32)
			} else {
				mask = net.CIDRMask(128, 128)
			}
			cidrs = append(cidrs, &net.IPNet{IP: ip, Mask: mask})
			continue
		}
		_, ipNet, err := net.ParseCIDR(cidrStr)
		if err != nil {
			return nil, fmt.Errorf("invalid IP/CIDR format: %s (%w)", cidrStr, err)
		}
		cidrs = append(cidrs, ipNet)
	}
	return cidrs, nil
}

// IsIPInAnyCIDR reports whether ip falls within any of the given CIDR ranges.
func IsIPInAnyCIDR(ip net.IP, cidrs []*net.IPNet) bool {
	if ip == nil || len(cidrs) == 0 {
		return false
	}
	for _, cidr := range cidrs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// remoteIP returns the connection peer's IP, ignoring the port.
func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

// ClientIP extracts the originating client IP for a request.
// The configured header (e.g. CF-Connecting-IP, X-Real-IP) and
// X-Forwarded-For are only honored when the immediate peer is inside
// trustedProxies; otherwise RemoteAddr wins.
func ClientIP(r *http.Request, trustedProxies []*net.IPNet, clientIPHeader string) string {
	trusted := IsIPInAnyCIDR(remoteIP(r), trustedProxies)

	if clientIPHeader != "" && trusted {
		if h := strings.TrimSpace(r.Header.Get(clientIPHeader)); h != "" {
			if net.ParseIP(h) != nil {
				return h
			}
		}
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" && trusted {
		// Leftmost entry is the original client.
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
