package security

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func newCapturedAuditor(enabled bool) (*Auditor, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewAuditor(logger, enabled), &buf
}

func TestAuditor_LogEvent(t *testing.T) {
	t.Run("enabled logs events", func(t *testing.T) {
		aud, buf := newCapturedAuditor(true)

		aud.LogStateIssued("https://fhir.example/r4", "203.0.113.5", "state-token-value")

		out := buf.String()
		if !strings.Contains(out, "state_issued") {
			t.Errorf("log output missing event type: %s", out)
		}
		if !strings.Contains(out, "https://fhir.example/r4") {
			t.Errorf("log output missing issuer: %s", out)
		}
		if strings.Contains(out, "state-token-value") {
			t.Error("raw state token must never appear in audit logs")
		}
		if !strings.Contains(out, "state_hash") {
			t.Errorf("log output missing state hash: %s", out)
		}
	})

	t.Run("disabled logs nothing", func(t *testing.T) {
		aud, buf := newCapturedAuditor(false)

		aud.LogStateIssued("https://fhir.example/r4", "203.0.113.5", "state-token-value")
		aud.LogStateRejected("203.0.113.5", "forged")
		aud.LogExchangeFailed("https://fhir.example/r4", "203.0.113.5", "authorization_code", 400)

		if buf.Len() != 0 {
			t.Errorf("disabled auditor wrote output: %s", buf.String())
		}
	})

	t.Run("nil auditor is a no-op", func(t *testing.T) {
		var aud *Auditor
		aud.LogStateRejected("203.0.113.5", "tok") // must not panic
	})
}

func TestAuditor_EventTypes(t *testing.T) {
	aud, buf := newCapturedAuditor(true)

	aud.LogStateIssued("https://fhir.example", "1.2.3.4", "tok")
	aud.LogStateRedeemed("https://fhir.example", "1.2.3.4", "tok")
	aud.LogStateRejected("1.2.3.4", "tok")
	aud.LogExchangeFailed("https://fhir.example", "1.2.3.4", "refresh_token", 502)
	aud.LogDiscoveryFailed("https://fhir.example", "1.2.3.4", 404)

	out := buf.String()
	for _, event := range []string{
		"state_issued",
		"state_redeemed",
		"state_rejected",
		"exchange_failed",
		"discovery_failed",
	} {
		if !strings.Contains(out, event) {
			t.Errorf("missing %q event in audit output", event)
		}
	}
}

func TestHashForLogging(t *testing.T) {
	h1 := hashForLogging("value-a")
	h2 := hashForLogging("value-b")

	if h1 == h2 {
		t.Error("different values should hash differently")
	}
	if len(h1) != 16 {
		t.Errorf("hash length = %d, want 16", len(h1))
	}
	if h1 != hashForLogging("value-a") {
		t.Error("hashing is not deterministic")
	}
	if hashForLogging("") != "" {
		t.Error("empty value should hash to empty")
	}
}
