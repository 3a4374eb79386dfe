// Package statestore defines the interface for the relay's state
// registry: the short-lived binding between an anti-forgery state
// token and the FHIR issuer that authorization attempt targets.
package statestore
