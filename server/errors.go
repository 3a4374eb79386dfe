package server

import "net/http"

// Relay error codes. They classify where in the flow a request died;
// the HTTP layer turns them all into a 4xx with a detail string.
const (
	ErrorCodeMissingParameter     = "missing_parameter"
	ErrorCodeUnknownState         = "unknown_state"
	ErrorCodeDiscoveryFailed      = "discovery_failed"
	ErrorCodeMissingTokenEndpoint = "missing_token_endpoint"
	ErrorCodeExchangeFailed       = "token_exchange_failed"
)

// FlowError is a classified relay failure. Detail is safe to return to
// the browser client; it may include the upstream issuer's error body.
type FlowError struct {
	Code   string // one of the ErrorCode constants
	Detail string // human-readable description
	Status int    // HTTP status for the boundary response
}

// Error implements the error interface
func (e *FlowError) Error() string {
	return e.Code + ": " + e.Detail
}

// NewFlowError creates a new flow error
func NewFlowError(code, detail string, status int) *FlowError {
	return &FlowError{Code: code, Detail: detail, Status: status}
}

// Common flow errors as reusable constructors
var (
	// ErrMissingParameter indicates a required request parameter was absent
	ErrMissingParameter = func(detail string) *FlowError {
		return NewFlowError(ErrorCodeMissingParameter, detail, http.StatusBadRequest)
	}

	// ErrUnknownState indicates the state token is not in the registry:
	// never issued, already redeemed, or expired
	ErrUnknownState = func(detail string) *FlowError {
		return NewFlowError(ErrorCodeUnknownState, detail, http.StatusBadRequest)
	}

	// ErrDiscoveryFailed indicates the SMART configuration fetch failed
	ErrDiscoveryFailed = func(detail string) *FlowError {
		return NewFlowError(ErrorCodeDiscoveryFailed, detail, http.StatusBadRequest)
	}

	// ErrMissingTokenEndpoint indicates the issuer's configuration
	// lacks the token_endpoint field required for the exchange
	ErrMissingTokenEndpoint = func(detail string) *FlowError {
		return NewFlowError(ErrorCodeMissingTokenEndpoint, detail, http.StatusBadRequest)
	}

	// ErrExchangeFailed indicates the token endpoint POST failed
	ErrExchangeFailed = func(detail string) *FlowError {
		return NewFlowError(ErrorCodeExchangeFailed, detail, http.StatusBadRequest)
	}
)
