package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFlowError(t *testing.T) {
	t.Run("error string", func(t *testing.T) {
		err := NewFlowError(ErrorCodeUnknownState, "Unknown or expired state.", http.StatusBadRequest)
		if got := err.Error(); got != "unknown_state: Unknown or expired state." {
			t.Errorf("Error() = %q", got)
		}
	})

	t.Run("unwraps through fmt wrapping", func(t *testing.T) {
		inner := ErrMissingParameter("Missing iss parameter")
		wrapped := fmt.Errorf("handling request: %w", inner)

		var ferr *FlowError
		if !errors.As(wrapped, &ferr) {
			t.Fatal("errors.As should find the FlowError")
		}
		if ferr.Code != ErrorCodeMissingParameter || ferr.Status != http.StatusBadRequest {
			t.Errorf("got code %q status %d", ferr.Code, ferr.Status)
		}
	})

	t.Run("constructors default to 400", func(t *testing.T) {
		for _, err := range []*FlowError{
			ErrMissingParameter("d"),
			ErrUnknownState("d"),
			ErrDiscoveryFailed("d"),
			ErrMissingTokenEndpoint("d"),
			ErrExchangeFailed("d"),
		} {
			if err.Status != http.StatusBadRequest {
				t.Errorf("%s: Status = %d, want 400", err.Code, err.Status)
			}
		}
	})
}
