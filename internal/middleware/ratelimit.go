package middleware

import (
	"net/http"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/internal/transport"
	"github.com/go-chi/httprate"
)

// RateLimit limits requests per client IP within window.
func RateLimit(requests int, window time.Duration) func(next http.Handler) http.Handler {
	if window <= 0 {
		window = time.Minute
	}
	if requests <= 0 {
		requests = 100
	}

	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", window.String())
			transport.WriteError(r.Context(), w, http.StatusTooManyRequests, "rate_limited", "too many requests")
		}),
	)
}
