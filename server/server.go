package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/medbridge/smart-relay/instrumentation"
	"github.com/medbridge/smart-relay/security"
	"github.com/medbridge/smart-relay/smart"
	"github.com/medbridge/smart-relay/statestore"
)

// SecretPlaceholder is the documented sentinel meaning "no confidential
// client secret configured". A ClientSecret equal to this value (or
// empty) makes the relay behave as a public/PKCE-only client and omit
// client_secret from exchange bodies.
const SecretPlaceholder = "REPLACE_WITH_CLIENT_SECRET"

// DefaultStateTTL is how long a minted state binding stays redeemable.
// Ten minutes comfortably covers a user authenticating at the EHR and
// being redirected back.
const DefaultStateTTL = 10 * time.Minute

// Config holds the relay server configuration
type Config struct {
	// ClientID is the OAuth client identifier registered with the EHR,
	// forwarded on every token exchange.
	ClientID string

	// ClientSecret is the confidential client secret. Empty or
	// SecretPlaceholder means no secret is configured and the
	// client_secret field is omitted from exchange bodies.
	ClientSecret string

	// StateTTL bounds how long an issued state token stays redeemable.
	// Zero uses DefaultStateTTL.
	StateTTL time.Duration

	// AllowInsecureIssuers permits plain-HTTP issuer URLs (local
	// sandboxes only).
	AllowInsecureIssuers bool
}

// Server coordinates the relay flows. It owns state minting and the
// outbound calls to issuers; the HTTP layer in the root package is a
// thin boundary over it.
type Server struct {
	discovery  *smart.Client
	states     statestore.Store
	httpClient *http.Client

	Auditor *security.Auditor
	Logger  *slog.Logger
	Config  *Config

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// New creates a relay server.
//
// A nil httpClient gets a default with a 10 second timeout; it is used
// for token endpoint POSTs (the discovery client carries its own).
func New(discovery *smart.Client, states statestore.Store, config *Config, httpClient *http.Client, logger *slog.Logger) (*Server, error) {
	if discovery == nil {
		return nil, fmt.Errorf("discovery client is required")
	}
	if states == nil {
		return nil, fmt.Errorf("state store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if config.StateTTL <= 0 {
		config.StateTTL = DefaultStateTTL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		discovery:  discovery,
		states:     states,
		httpClient: httpClient,
		Logger:     logger,
		Config:     config,
	}, nil
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
}

// SetInstrumentation enables metric and trace collection
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("server")
	}
}

// Instrumentation returns the attached instrumentation, or nil
func (s *Server) Instrumentation() *instrumentation.Instrumentation {
	return s.instrumentation
}

// hasClientSecret reports whether a real confidential secret is
// configured, as opposed to the sentinel or nothing.
func (s *Server) hasClientSecret() bool {
	return s.Config.ClientSecret != "" && s.Config.ClientSecret != SecretPlaceholder
}

// generateRandomToken mints a cryptographically secure random token.
// oauth2.GenerateVerifier produces a URL-safe base64 string with 256
// bits of entropy, well past the 128-bit floor states require.
func generateRandomToken() string {
	return oauth2.GenerateVerifier()
}
