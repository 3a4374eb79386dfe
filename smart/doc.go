// Package smart fetches SMART App Launch configuration documents from
// FHIR authorization servers via the .well-known/smart-configuration
// endpoint, with SSRF protection for issuer URLs.
package smart
