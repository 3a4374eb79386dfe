package smart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// WellKnownPath is the fixed path appended to an issuer URL to locate
// its SMART configuration document (SMART App Launch framework).
const WellKnownPath = "/.well-known/smart-configuration"

// maxDocumentSize bounds how much of a configuration response is read.
// Real SMART configuration documents are a few KB at most.
const maxDocumentSize = 1 << 20 // 1 MiB

// Configuration holds a SMART configuration document. The document is
// kept as the raw decoded JSON so callers can echo it to clients
// unmodified; the two endpoint fields the relay needs are extracted
// into typed accessors.
//
// The relay does not validate the document schema beyond the fields it
// uses. Capabilities, supported grant types, and everything else the
// issuer advertises pass through untouched.
type Configuration struct {
	raw map[string]any
}

// AuthorizationEndpoint returns the issuer's authorization endpoint,
// or "" if the document does not advertise one.
func (c *Configuration) AuthorizationEndpoint() string {
	return c.stringField("authorization_endpoint")
}

// TokenEndpoint returns the issuer's token endpoint, or "" if the
// document does not advertise one.
func (c *Configuration) TokenEndpoint() string {
	return c.stringField("token_endpoint")
}

func (c *Configuration) stringField(key string) string {
	if c == nil || c.raw == nil {
		return ""
	}
	if v, ok := c.raw[key].(string); ok {
		return v
	}
	return ""
}

// Document returns a shallow copy of the decoded configuration
// document. Mutating the copy does not affect the Configuration.
func (c *Configuration) Document() map[string]any {
	if c == nil || c.raw == nil {
		return map[string]any{}
	}
	doc := make(map[string]any, len(c.raw))
	for k, v := range c.raw {
		doc[k] = v
	}
	return doc
}

// DiscoveryError is returned when a SMART configuration fetch fails.
// It carries the upstream HTTP status and response body when the
// failure happened after a response was received, so the boundary can
// surface the issuer's own error detail to clients.
type DiscoveryError struct {
	Issuer string
	Status int    // 0 when the request never completed
	Body   string // truncated upstream body, may be empty
	Err    error  // underlying transport or decode error, may be nil
}

func (e *DiscoveryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("smart configuration fetch for %s failed with status %d", e.Issuer, e.Status)
	}
	return fmt.Sprintf("smart configuration fetch for %s failed: %v", e.Issuer, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Detail returns the most useful human-readable description of the
// failure: the upstream body when one was captured, otherwise the
// underlying error message.
func (e *DiscoveryError) Detail() string {
	if e.Body != "" {
		return e.Body
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Error()
}

// Client fetches SMART configuration documents.
//
// It deliberately does not cache: the relay re-discovers the token
// endpoint on every exchange so it never acts on stale endpoint data
// when an issuer rotates its configuration. The cost is one extra
// outbound GET per exchange.
//
// The client is safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	logger         *slog.Logger
	skipValidation bool // internal: bypass SSRF checks in tests
	allowInsecure  bool
}

// Option configures a Client.
type Option func(*Client)

// WithAllowInsecureIssuers permits plain-HTTP issuer URLs. Intended
// for local FHIR sandboxes only; production issuers must use HTTPS.
func WithAllowInsecureIssuers() Option {
	return func(c *Client) { c.allowInsecure = true }
}

// NewClient creates a SMART discovery client.
//
// A nil httpClient gets a default with a 10 second timeout so an
// unresponsive issuer cannot hang an exchange indefinitely. A nil
// logger uses slog.Default().
func NewClient(httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		httpClient: httpClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover fetches the SMART configuration document for an issuer.
// The issuer URL is validated for SSRF safety before any request is
// made. All failures (validation, transport, non-2xx, malformed JSON)
// come back as a *DiscoveryError.
func (c *Client) Discover(ctx context.Context, issuer string) (*Configuration, error) {
	if !c.skipValidation {
		if err := ValidateIssuerURL(issuer, c.allowInsecure); err != nil {
			return nil, &DiscoveryError{Issuer: issuer, Err: err}
		}
	}

	discoveryURL := strings.TrimSuffix(issuer, "/") + WellKnownPath

	c.logger.Debug("Fetching SMART configuration", "url", discoveryURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuer, Err: fmt.Errorf("failed to create discovery request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuer, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, &DiscoveryError{Issuer: issuer, Err: fmt.Errorf("failed to read discovery response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DiscoveryError{
			Issuer: issuer,
			Status: resp.StatusCode,
			Body:   strings.TrimSpace(string(body)),
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &DiscoveryError{Issuer: issuer, Err: fmt.Errorf("failed to decode smart configuration: %w", err)}
	}

	cfg := &Configuration{raw: raw}

	c.logger.Debug("SMART discovery successful",
		"issuer", issuer,
		"authorization_endpoint", cfg.AuthorizationEndpoint(),
		"token_endpoint", cfg.TokenEndpoint())

	return cfg, nil
}
