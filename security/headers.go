package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets security headers on relay responses. Both
// relay endpoints return JSON carrying OAuth material, so responses
// must never be framed, sniffed, or cached.
func SetSecurityHeaders(w http.ResponseWriter, externalURL string) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")

	// HSTS only when the relay is actually served over HTTPS
	if parsed, err := url.Parse(externalURL); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Token and configuration responses must not be cached
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}
