// Package testutil provides testing helpers for the relay.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// SmartConfigDoc builds a SMART configuration document for a mock
// issuer. Pass extra fields to merge into the document; a nil
// tokenEndpoint override keeps the default.
func SmartConfigDoc(authorizationEndpoint, tokenEndpoint string, extra map[string]any) map[string]any {
	doc := map[string]any{
		"capabilities": []any{"launch-ehr", "client-confidential-symmetric"},
	}
	if authorizationEndpoint != "" {
		doc["authorization_endpoint"] = authorizationEndpoint
	}
	if tokenEndpoint != "" {
		doc["token_endpoint"] = tokenEndpoint
	}
	for k, v := range extra {
		doc[k] = v
	}
	return doc
}

// NewIssuer starts a mock FHIR issuer serving the given SMART
// configuration document at the well-known path. The server is
// cleaned up with the test.
func NewIssuer(t *testing.T, doc map[string]any) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/smart-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(doc); err != nil {
			t.Errorf("encode smart configuration: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// NewTokenEndpoint starts a mock token endpoint that captures the
// posted form and replies with the given JSON body and status.
// The captured form values are delivered through the returned channel
// (buffered, one entry per request).
func NewTokenEndpoint(t *testing.T, status int, responseBody string) (*httptest.Server, chan map[string][]string) {
	t.Helper()

	captured := make(chan map[string][]string, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token request form: %v", err)
		}
		captured <- r.PostForm
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(responseBody))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}
