// Package server implements the relay's core flows: SMART
// configuration discovery with state minting, and the confidential
// code-for-token exchange against the issuer's token endpoint.
package server
