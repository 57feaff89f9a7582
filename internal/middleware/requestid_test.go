package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func newRequestIDRecorder() (http.Handler, *string) {
	var captured string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = RequestIDFromContext(r.Context())
	}))
	return h, &captured
}

func TestRequestIDKeepsValidHeader(t *testing.T) {
	h, captured := newRequestIDRecorder()
	rid := uuid.NewString()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", rid)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if *captured != rid {
		t.Errorf("context request id = %q, want %q", *captured, rid)
	}
	if got := rec.Header().Get("X-Request-ID"); got != rid {
		t.Errorf("echoed request id = %q, want %q", got, rid)
	}
}

func TestRequestIDReplacesInvalidHeader(t *testing.T) {
	h, captured := newRequestIDRecorder()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "not-a-uuid; rm -rf /")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if *captured == "not-a-uuid; rm -rf /" {
		t.Error("invalid request id was kept")
	}
	if uuid.Validate(*captured) != nil {
		t.Errorf("minted request id %q is not a uuid", *captured)
	}
}

func TestRequestIDMintsWhenMissing(t *testing.T) {
	h, captured := newRequestIDRecorder()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if uuid.Validate(*captured) != nil {
		t.Errorf("minted request id %q is not a uuid", *captured)
	}
	if rec.Header().Get("X-Request-ID") != *captured {
		t.Error("response header does not match context request id")
	}
}
