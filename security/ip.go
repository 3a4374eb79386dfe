package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the real client IP from a request. When
// trustProxy is set it honors X-Forwarded-For and X-Real-IP; only
// enable that behind a reverse proxy you control, since the headers
// are otherwise attacker-supplied. trustedProxyCount is how many
// proxies sit between the client and this process, counted from the
// right of X-Forwarded-For.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := extractIPFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := extractIPFromXRealIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return extractIPFromRemoteAddr(r.RemoteAddr)
}

// extractIPFromXFF picks the client IP out of an X-Forwarded-For list.
// The rightmost trustedProxyCount entries are our own proxies; the
// entry just left of them is the client as seen by the outermost
// trusted proxy.
func extractIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	idx := clientIPIndex(len(ips), trustedProxyCount)
	clientIP := strings.TrimSpace(ips[idx])

	if net.ParseIP(clientIP) != nil {
		return clientIP
	}
	return ""
}

func clientIPIndex(total, trustedProxyCount int) int {
	if trustedProxyCount <= 0 {
		trustedProxyCount = 1
	}
	idx := total - trustedProxyCount - 1
	if idx < 0 {
		return 0
	}
	return idx
}

func extractIPFromXRealIP(header string) string {
	header = strings.TrimSpace(header)
	if header != "" && net.ParseIP(header) != nil {
		return header
	}
	return ""
}

func extractIPFromRemoteAddr(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	// RemoteAddr without a port (some tests and unusual listeners)
	if net.ParseIP(remoteAddr) != nil {
		return remoteAddr
	}
	return remoteAddr
}
