package api

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

const timeoutBody = `{"error": "Request timeout", "message": "The request took too long to process"}`

// TimeoutMiddleware bounds request handling. Handlers observe the deadline
// through the request context and the client gets a 503 once it passes.
// A zero timeout disables the limit.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		logged := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Context().Err() != nil {
				zap.S().Warnw("Request timeout",
					"path", r.URL.Path,
					"method", r.Method,
					"timeout", timeout)
			}
		})
		return http.TimeoutHandler(logged, timeout, timeoutBody)
	}
}
