package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/types"
)

type updateResponse struct {
	Time  time.Time        `json:"time"`
	Feeds []types.FeedType `json:"feeds"`
}

// authorizeUpdate checks the bearer ID token when update authentication is
// configured. It writes the error response itself and returns false if the
// request must not continue.
func (s *Server) authorizeUpdate(w http.ResponseWriter, r *http.Request) bool {
	if s.verifier == nil {
		return true
	}
	ctx := r.Context()

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
		return false
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		log.Ctx(ctx).WarnContext(ctx, "invalid auth header")
		writeJSONError(w, "invalid auth header", http.StatusBadRequest)
		return false
	}

	idToken, err := s.verifier(ctx, strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "update token validation failed", slog.Any("error", err))
		writeJSONError(w, "invalid id token", http.StatusUnauthorized)
		return false
	}
	if s.updateEmail != "" {
		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "invalid id token claims", slog.Any("error", err))
			writeJSONError(w, "invalid token claims", http.StatusForbidden)
			return false
		}
		if subtle.ConstantTimeCompare([]byte(claims.Email), []byte(s.updateEmail)) != 1 {
			log.Ctx(ctx).WarnContext(ctx, "update email mismatch", slog.String("got", claims.Email), slog.String("want", s.updateEmail))
			writeJSONError(w, "unauthorized email", http.StatusForbidden)
			return false
		}
	}
	log.Ctx(ctx).DebugContext(ctx, "update: authorized", slog.String("subject", idToken.Subject))
	return true
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !s.authorizeUpdate(w, r) {
		return
	}
	u := s.ticker.Tick(r.Context())
	feeds := u.Feeds
	if feeds == nil {
		feeds = []types.FeedType{}
	}
	writeJSON(w, updateResponse{Time: u.Time, Feeds: feeds})
}
