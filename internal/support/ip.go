package support

import (
	"net"
	"net/http"
	"strings"
)

const UnknownIP = "Unknown"

// FirstForwardedIP returns the first hop of an X-Forwarded-For header value.
func FirstForwardedIP(xff string) string {
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// NormalizeIP collapses IPv6 loopback and IPv4-mapped forms to their
// plain IPv4 representation so the same visitor always keys the same record.
func NormalizeIP(raw string) string {
	if raw == "" {
		return UnknownIP
	}
	if raw == "::1" {
		return "127.0.0.1"
	}
	if strings.HasPrefix(raw, "::ffff:") {
		return strings.TrimPrefix(raw, "::ffff:")
	}
	return raw
}

// ClientIP resolves the caller's IP for a request, preferring the first
// X-Forwarded-For hop over the transport remote address.
func ClientIP(r *http.Request) string {
	if forwarded := FirstForwardedIP(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		return NormalizeIP(forwarded)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return NormalizeIP(host)
}
