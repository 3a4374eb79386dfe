// Package relay implements a SMART-on-FHIR backend relay: it discovers
// an EHR issuer's SMART configuration, mints anti-forgery state bound
// to that issuer, and performs the confidential code-for-token
// exchange server-side so the OAuth client secret never reaches the
// browser.
package relay

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/medbridge/smart-relay/instrumentation"
)

// Config holds the relay configuration
type Config struct {
	// ClientID is the OAuth client identifier registered with the EHR (required).
	ClientID string

	// ClientSecret is the confidential client secret. Leave empty (or
	// set to server.SecretPlaceholder) for public/PKCE-only clients;
	// the relay then omits client_secret from exchange bodies.
	ClientSecret string

	// ExternalURL is the public base URL the relay is served from.
	// Used for HSTS decisions on responses; optional.
	ExternalURL string

	// StateTTL bounds how long a minted state token stays redeemable.
	// Default: 10 minutes.
	StateTTL time.Duration

	// CleanupInterval is how often expired state bindings are evicted.
	// Default: 1 minute.
	CleanupInterval time.Duration

	// AllowInsecureIssuers permits plain-HTTP issuer URLs. Local FHIR
	// sandboxes only; never enable in production.
	AllowInsecureIssuers bool

	// RateLimit configures per-IP rate limiting
	RateLimit RateLimitConfig

	// CORS configures cross-origin access for the browser client
	CORS CORSConfig

	// EnableAuditLogging enables security audit logging of state
	// issuance, redemption, replays, and exchange failures (state
	// tokens hashed).
	EnableAuditLogging bool

	// Logger for structured logging (optional, uses slog.Default if unset)
	Logger *slog.Logger

	// HTTPClient is used for outbound discovery and token requests.
	// If nil, a default with a 10 second timeout is used.
	HTTPClient *http.Client

	// Instrumentation enables OpenTelemetry metrics and tracing (optional)
	Instrumentation *instrumentation.Instrumentation
}

// RateLimitConfig holds per-IP rate limiting configuration
type RateLimitConfig struct {
	// Rate is requests per second allowed per IP. Zero disables limiting.
	Rate int

	// Burst is the maximum burst size allowed per IP.
	Burst int

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP.
	// Only enable behind a trusted reverse proxy.
	TrustProxy bool

	// TrustedProxyCount is how many trusted proxies sit in front of the
	// relay. Default: 1 (when TrustProxy is set).
	TrustedProxyCount int
}

// CORSConfig holds cross-origin configuration. The browser front-end
// is typically served from a different origin than the relay.
type CORSConfig struct {
	// AllowedOrigins lists origins allowed to call the relay.
	// Default: ["*"].
	AllowedOrigins []string
}

func (c *Config) applyDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Minute
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if c.RateLimit.TrustProxy && c.RateLimit.TrustedProxyCount <= 0 {
		c.RateLimit.TrustedProxyCount = 1
	}
}
