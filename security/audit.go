package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor logs security-relevant relay events. State tokens are hashed
// before logging; a log line must never contain a value that is still
// redeemable.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	Type      string
	Issuer    string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"issuer", event.Issuer,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogStateIssued records that a state binding was minted during discovery.
func (a *Auditor) LogStateIssued(issuer, ipAddress, stateToken string) {
	a.LogEvent(Event{
		Type:      "state_issued",
		Issuer:    issuer,
		IPAddress: ipAddress,
		Details: map[string]any{
			"state_hash": hashForLogging(stateToken),
		},
	})
}

// LogStateRedeemed records that a state binding was consumed by an exchange.
func (a *Auditor) LogStateRedeemed(issuer, ipAddress, stateToken string) {
	a.LogEvent(Event{
		Type:      "state_redeemed",
		Issuer:    issuer,
		IPAddress: ipAddress,
		Details: map[string]any{
			"state_hash": hashForLogging(stateToken),
		},
	})
}

// LogStateRejected records an exchange attempt with an unknown,
// expired, or replayed state token. Repeats from one IP suggest a
// forged or replayed redirect.
func (a *Auditor) LogStateRejected(ipAddress, stateToken string) {
	a.LogEvent(Event{
		Type:      "state_rejected",
		IPAddress: ipAddress,
		Details: map[string]any{
			"state_hash": hashForLogging(stateToken),
		},
	})
}

// LogExchangeFailed records an upstream token exchange failure.
func (a *Auditor) LogExchangeFailed(issuer, ipAddress, grantType string, status int) {
	a.LogEvent(Event{
		Type:      "exchange_failed",
		Issuer:    issuer,
		IPAddress: ipAddress,
		Details: map[string]any{
			"grant_type":      grantType,
			"upstream_status": status,
		},
	})
}

// LogDiscoveryFailed records a SMART configuration fetch failure.
func (a *Auditor) LogDiscoveryFailed(issuer, ipAddress string, status int) {
	a.LogEvent(Event{
		Type:      "discovery_failed",
		Issuer:    issuer,
		IPAddress: ipAddress,
		Details: map[string]any{
			"upstream_status": status,
		},
	})
}

// hashForLogging returns a short SHA-256 prefix of a sensitive value,
// enough to correlate events without disclosing the value.
func hashForLogging(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:16]
}
