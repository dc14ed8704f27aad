package common

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP returns the first forwarded address, then X-Real-IP, then the
// peer address. Values that do not parse as IPs are skipped.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); validIP(first) {
		return strings.TrimSpace(first)
	}
	if real := r.Header.Get("X-Real-IP"); validIP(real) {
		return strings.TrimSpace(real)
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func validIP(s string) bool {
	return net.ParseIP(strings.TrimSpace(s)) != nil
}
