package middleware

import (
	"net/http"
	"time"

	"enrollment-crm/logger"
	"enrollment-crm/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Instrument counts and times requests by route pattern, and logs them.
// The pattern is read after routing, so it must wrap the mux.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		metrics.ObserveRequest(r.Method, route, rec.status, elapsed)
		logger.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, rec.status, elapsed)
	})
}
