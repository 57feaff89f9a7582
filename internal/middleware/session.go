package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const sessionIDKey contextKey = "session_id"

// SessionHeader carries the anonymous session identifier. Clients without one
// get a fresh identifier minted and echoed back so they can persist it.
const SessionHeader = "X-Session-ID"

func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid := r.Header.Get(SessionHeader)
		if sid == "" || uuid.Validate(sid) != nil {
			sid = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), sessionIDKey, sid)
		w.Header().Set(SessionHeader, sid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}
