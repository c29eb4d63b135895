package server

import (
	"net/http"
)

// securityHeadersMiddleware locks down responses of the JSON API. Nothing
// served here is rendered by a browser or safe to cache since sensor values
// move with every tick.
func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Strict-Transport-Security: max-age=2 years
		w.Header().Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")

		// Prevent MIME-sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// only JSON and plain text is served
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// prices change every tick
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
