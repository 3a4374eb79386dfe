package smart

import (
	"fmt"
	"net"
	"net/url"
)

// ValidateIssuerURL validates a FHIR issuer URL before the relay makes
// an outbound request to it. The iss parameter arrives straight from
// the browser, so without these checks the relay is an open proxy into
// whatever network it runs on.
//
// Checks:
//   - URL must parse and be absolute with a hostname
//   - HTTPS required unless allowInsecure is set
//   - Loopback, private, and link-local IP literals are rejected to
//     prevent SSRF against internal services and metadata endpoints
//
// allowInsecure relaxes both the scheme and the IP-range checks; it
// exists for local FHIR sandboxes, which run on loopback over plain
// HTTP, and must stay off in production.
func ValidateIssuerURL(issuer string, allowInsecure bool) error {
	if issuer == "" {
		return fmt.Errorf("issuer URL is empty")
	}

	u, err := url.Parse(issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !allowInsecure {
			return fmt.Errorf("issuer URL must use HTTPS, got %s", u.Scheme)
		}
	default:
		return fmt.Errorf("issuer URL must use HTTP(S), got %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("issuer URL must have a hostname")
	}

	if ip := net.ParseIP(host); ip != nil && !allowInsecure {
		if ip.IsLoopback() {
			return fmt.Errorf("issuer URL must not point to loopback addresses")
		}
		if ip.IsPrivate() {
			return fmt.Errorf("issuer URL must not point to private IP ranges")
		}
		if ip.IsLinkLocalUnicast() {
			return fmt.Errorf("issuer URL must not point to link-local addresses")
		}
	}

	return nil
}
