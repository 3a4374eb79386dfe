package instrumentation

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys used across the relay.
//
// Never put credential values (authorization codes, access or refresh
// tokens, client secrets, redeemable state tokens) into span
// attributes; traces outlive the credentials and are visible to a
// wider audience. Record metadata only: presence flags, grant types,
// outcomes.
const (
	AttrIssuer       = "smart.issuer"
	AttrGrantType    = "oauth.grant_type"
	AttrStatePresent = "oauth.state_present"
	AttrPKCEPresent  = "oauth.code_verifier_present"
	AttrError        = "oauth.error"

	AttrHTTPEndpoint   = "http.endpoint"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatusCode = "http.status_code"

	AttrClientIP = "security.client_ip"
)

// RecordError records an error on a span with an error status (nil-safe)
func RecordError(span trace.Span, err error) {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess marks a span as successful (nil-safe)
func SetSpanSuccess(span trace.Span) {
	if span != nil {
		span.SetStatus(codes.Ok, "")
	}
}

// SetSpanAttributes sets attributes on a span (nil-safe)
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span != nil {
		span.SetAttributes(attrs...)
	}
}

// AddHTTPAttributes adds HTTP request attributes to a span (nil-safe)
func AddHTTPAttributes(span trace.Span, method, endpoint string, statusCode int) {
	SetSpanAttributes(span,
		attribute.String(AttrHTTPMethod, method),
		attribute.String(AttrHTTPEndpoint, endpoint),
		attribute.Int(AttrHTTPStatusCode, statusCode),
	)
}

// AddExchangeAttributes adds token exchange metadata to a span (nil-safe)
func AddExchangeAttributes(span trace.Span, grantType string, statePresent, verifierPresent bool) {
	SetSpanAttributes(span,
		attribute.String(AttrGrantType, grantType),
		attribute.Bool(AttrStatePresent, statePresent),
		attribute.Bool(AttrPKCEPresent, verifierPresent),
	)
}
