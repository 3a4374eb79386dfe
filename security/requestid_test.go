package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateRequestID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateRequestID()
		if len(id) != 22 {
			t.Fatalf("len(%q) = %d, want 22", id, len(id))
		}
		if !isValidRequestID(id) {
			t.Fatalf("generated ID %q fails its own validation", id)
		}
		if seen[id] {
			t.Fatalf("duplicate request ID %q", id)
		}
		seen[id] = true
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID(empty ctx) = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	if got := GetRequestID(ctx); got != "req-123" {
		t.Errorf("GetRequestID() = %q, want req-123", got)
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seenInHandler string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenInHandler = GetRequestID(r.Context())
	}))

	t.Run("generates when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		echoed := rec.Header().Get(RequestIDHeader)
		if echoed == "" {
			t.Fatal("response should carry a generated request ID")
		}
		if seenInHandler != echoed {
			t.Errorf("context ID %q != response header %q", seenInHandler, echoed)
		}
	})

	t.Run("reuses well-formed inbound ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "proxy-id_42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "proxy-id_42" {
			t.Errorf("echoed ID = %q, want the inbound one", got)
		}
	})

	t.Run("replaces malformed inbound ID", func(t *testing.T) {
		for _, bad := range []string{
			"has spaces",
			"semi;colon",
			strings.Repeat("x", 200),
			"new\nline",
		} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(RequestIDHeader, bad)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if got := rec.Header().Get(RequestIDHeader); got == bad || got == "" {
				t.Errorf("malformed ID %q should be replaced, got %q", bad, got)
			}
		}
	})
}
