package trace

import (
	"encoding/json"
	"net/http"
)

// Middleware continues the caller's trace, or starts one, for every request
// and echoes the traceparent on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := remote(r.Header.Get(TraceParentKey), r.Header.Get(TraceIDKey), r.Header.Get(SpanIDKey))
		w.Header().Set(TraceParentKey, tc.TraceParent())
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

// ExtractFromJSON reads an optional "trace_id" field from a WebSocket
// message so a client can tie a capture session to its own trace.
func ExtractFromJSON(data []byte) (Context, bool) {
	var msg struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || len(msg.TraceID) != 32 || !isHex(msg.TraceID) {
		return New(), false
	}
	return Context{TraceID: msg.TraceID, SpanID: newID(8)}, true
}
