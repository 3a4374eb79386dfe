package relay

import "github.com/medbridge/smart-relay/server"

// ExchangeRequest is the JSON body accepted by POST /smart/token.
type ExchangeRequest = server.ExchangeRequest

// FlowError is a classified relay failure surfaced by the core flows.
type FlowError = server.FlowError

// ErrorResponse is the JSON error shape returned to clients on all
// relay failures.
type ErrorResponse struct {
	// Detail is a human-readable description of the failure, including
	// the upstream error body where one was available.
	Detail string `json:"detail"`
}
