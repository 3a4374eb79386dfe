package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/medbridge/smart-relay/instrumentation"
	"github.com/medbridge/smart-relay/smart"
	"github.com/medbridge/smart-relay/statestore"
)

// OAuth grant types the relay forwards
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// maxTokenResponseSize bounds how much of a token endpoint response is
// read before relaying it.
const maxTokenResponseSize = 1 << 20 // 1 MiB

// ExchangeRequest is the token exchange input as posted by the browser
// client. State and code drive the authorization_code grant; the
// refresh path uses RefreshToken plus a caller-supplied Issuer instead
// (no new authorization redirect happens, so there is no state to
// bind — the relay trusts the caller's issuer claim on refresh).
type ExchangeRequest struct {
	GrantType    string `json:"grant_type,omitempty"`
	Code         string `json:"code,omitempty"`
	State        string `json:"state,omitempty"`
	RedirectURI  string `json:"redirect_uri,omitempty"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Issuer       string `json:"iss,omitempty"`
}

// DiscoverConfiguration fetches the issuer's SMART configuration and
// mints a fresh state binding for it. The returned document is the
// issuer's configuration echoed unmodified plus the injected "state"
// field. Every call mints a new state, even for the same issuer;
// repeated discovery accumulates registry entries until they expire.
func (s *Server) DiscoverConfiguration(ctx context.Context, issuer, clientIP string) (map[string]any, error) {
	ctx, span := s.startSpan(ctx, "DiscoverConfiguration")
	defer endSpan(span)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrIssuer, issuer))

	if issuer == "" {
		return nil, ErrMissingParameter("Missing iss parameter")
	}

	cfg, err := s.discovery.Discover(ctx, issuer)
	if err != nil {
		s.recordDiscovery(ctx, "error")
		instrumentation.RecordError(span, err)

		var derr *smart.DiscoveryError
		if errors.As(err, &derr) {
			if s.Auditor != nil {
				s.Auditor.LogDiscoveryFailed(issuer, clientIP, derr.Status)
			}
			return nil, ErrDiscoveryFailed(fmt.Sprintf("Failed to fetch SMART config: %s", derr.Detail()))
		}
		return nil, ErrDiscoveryFailed(fmt.Sprintf("Failed to fetch SMART config: %v", err))
	}

	state := generateRandomToken()
	now := time.Now()
	entry := &statestore.Entry{
		Token:     state,
		Issuer:    issuer,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.Config.StateTTL),
	}
	if err := s.states.Save(ctx, entry); err != nil {
		instrumentation.RecordError(span, err)
		return nil, ErrDiscoveryFailed(fmt.Sprintf("Failed to record state binding: %v", err))
	}

	s.recordDiscovery(ctx, "success")
	if m := s.metrics(); m != nil {
		m.StatesIssued.Add(ctx, 1)
	}
	if s.Auditor != nil {
		s.Auditor.LogStateIssued(issuer, clientIP, state)
	}
	s.Logger.Info("SMART configuration discovered",
		"issuer", issuer,
		"state_ttl", s.Config.StateTTL)

	doc := cfg.Document()
	doc["state"] = state

	instrumentation.SetSpanSuccess(span)
	return doc, nil
}

// Exchange performs the token exchange for an authorization attempt.
//
// For the authorization_code grant (the default) it resolves the state
// binding, re-discovers the issuer's token endpoint, and POSTs the
// code. State resolution is single-use: a redeemed or expired state
// fails exactly like one that never existed, and no outbound call is
// made in either case.
//
// For the refresh_token grant the state registry is bypassed and the
// issuer comes from the request.
//
// The upstream token response is returned verbatim; its schema belongs
// to the authorization server.
func (s *Server) Exchange(ctx context.Context, req *ExchangeRequest, clientIP string) (json.RawMessage, error) {
	grantType := req.GrantType
	if grantType == "" {
		grantType = GrantAuthorizationCode
	}

	ctx, span := s.startSpan(ctx, "Exchange")
	defer endSpan(span)
	instrumentation.AddExchangeAttributes(span, grantType, req.State != "", req.CodeVerifier != "")

	issuer, err := s.resolveIssuer(ctx, grantType, req, clientIP)
	if err != nil {
		s.recordExchange(ctx, grantType, "rejected")
		instrumentation.RecordError(span, err)
		return nil, err
	}
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrIssuer, issuer))

	// Re-discover rather than cache so an issuer-side endpoint rotation
	// between redirect and exchange cannot strand the flow.
	cfg, err := s.discovery.Discover(ctx, issuer)
	if err != nil {
		s.recordExchange(ctx, grantType, "discovery_error")
		instrumentation.RecordError(span, err)

		var derr *smart.DiscoveryError
		if errors.As(err, &derr) {
			return nil, ErrDiscoveryFailed(fmt.Sprintf("Failed to fetch SMART config: %s", derr.Detail()))
		}
		return nil, ErrDiscoveryFailed(fmt.Sprintf("Failed to fetch SMART config: %v", err))
	}

	tokenURL := cfg.TokenEndpoint()
	if tokenURL == "" {
		s.recordExchange(ctx, grantType, "no_token_endpoint")
		return nil, ErrMissingTokenEndpoint("No token_endpoint in SMART config.")
	}

	body, upstreamStatus, err := s.postTokenRequest(ctx, tokenURL, s.buildForm(grantType, req))
	if err != nil {
		s.recordExchange(ctx, grantType, "error")
		instrumentation.RecordError(span, err)
		if s.Auditor != nil {
			s.Auditor.LogExchangeFailed(issuer, clientIP, grantType, upstreamStatus)
		}
		return nil, err
	}

	s.recordExchange(ctx, grantType, "success")
	s.Logger.Info("Token exchange succeeded",
		"issuer", issuer,
		"grant_type", grantType,
		"pkce", req.CodeVerifier != "")

	instrumentation.SetSpanSuccess(span)
	return body, nil
}

// resolveIssuer determines which issuer the exchange targets. The code
// grant consumes the state binding; the refresh grant trusts the
// caller-supplied iss, validated for SSRF safety only.
func (s *Server) resolveIssuer(ctx context.Context, grantType string, req *ExchangeRequest, clientIP string) (string, error) {
	if grantType == GrantRefreshToken {
		if req.RefreshToken == "" {
			return "", ErrMissingParameter("Missing refresh_token for refresh exchange.")
		}
		if req.Issuer == "" {
			return "", ErrMissingParameter("Missing iss for refresh exchange.")
		}
		return req.Issuer, nil
	}

	if req.State == "" {
		return "", ErrMissingParameter("Missing state for code exchange.")
	}

	issuer, err := s.states.Redeem(ctx, req.State)
	if err != nil {
		if s.Auditor != nil {
			s.Auditor.LogStateRejected(clientIP, req.State)
		}
		if m := s.metrics(); m != nil {
			m.StatesRejected.Add(ctx, 1)
		}
		if errors.Is(err, statestore.ErrStateNotFound) {
			return "", ErrUnknownState("Unknown or expired state.")
		}
		return "", ErrUnknownState(fmt.Sprintf("Failed to resolve state: %v", err))
	}

	if m := s.metrics(); m != nil {
		m.StatesRedeemed.Add(ctx, 1)
	}
	if s.Auditor != nil {
		s.Auditor.LogStateRedeemed(issuer, clientIP, req.State)
	}
	return issuer, nil
}

// buildForm assembles the form-encoded token request body. Optional
// fields are set only when present so the issuer never sees an empty
// code_verifier or client_secret.
func (s *Server) buildForm(grantType string, req *ExchangeRequest) url.Values {
	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("client_id", s.Config.ClientID)

	if grantType == GrantRefreshToken {
		form.Set("refresh_token", req.RefreshToken)
	} else {
		if req.Code != "" {
			form.Set("code", req.Code)
		}
		if req.RedirectURI != "" {
			form.Set("redirect_uri", req.RedirectURI)
		}
		if req.CodeVerifier != "" {
			form.Set("code_verifier", req.CodeVerifier)
		}
	}

	if s.hasClientSecret() {
		form.Set("client_secret", s.Config.ClientSecret)
	}

	return form
}

// postTokenRequest POSTs the form to the token endpoint and returns
// the upstream response body untouched, along with the upstream HTTP
// status (0 when the request never completed).
func (s *Server) postTokenRequest(ctx context.Context, tokenURL string, form url.Values) (json.RawMessage, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, ErrExchangeFailed(fmt.Sprintf("Token exchange failed: %v", err))
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, ErrExchangeFailed(fmt.Sprintf("Token exchange failed: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseSize))
	if err != nil {
		return nil, resp.StatusCode, ErrExchangeFailed(fmt.Sprintf("Token exchange failed: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := strings.TrimSpace(string(body))
		if detail == "" {
			detail = fmt.Sprintf("upstream status %d", resp.StatusCode)
		}
		s.Logger.Warn("Token exchange failed upstream",
			"token_url", tokenURL,
			"status", resp.StatusCode)
		return nil, resp.StatusCode, ErrExchangeFailed(fmt.Sprintf("Token exchange failed: %s", detail))
	}

	return json.RawMessage(body), resp.StatusCode, nil
}

func (s *Server) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, nil
	}
	return s.tracer.Start(ctx, name)
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

func (s *Server) metrics() *instrumentation.Metrics {
	if s.instrumentation == nil {
		return nil
	}
	return s.instrumentation.Metrics()
}

func (s *Server) recordDiscovery(ctx context.Context, outcome string) {
	if m := s.metrics(); m != nil {
		m.DiscoveryRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func (s *Server) recordExchange(ctx context.Context, grantType, outcome string) {
	if m := s.metrics(); m != nil {
		m.ExchangesTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String(instrumentation.AttrGrantType, grantType),
			attribute.String("outcome", outcome),
		))
	}
}
