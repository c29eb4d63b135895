package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/view"
)

// beursAlias addresses the exchange price, whose provider code is empty.
const beursAlias = "BEURS"

func providerFromPath(r *http.Request) string {
	code := strings.ToUpper(r.PathValue("provider"))
	if code == beursAlias {
		return ""
	}
	return code
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.view.Sensors(r.Context()))
}

func (s *Server) handleElectricitySensor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sensor, err := s.view.ElectricitySensor(ctx, providerFromPath(r), s.clock.Now())
	if err != nil {
		if errors.Is(err, view.ErrUnknownProvider) {
			writeJSONError(w, "unknown provider", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get electricity sensor", slog.Any("error", err))
		writeJSONError(w, "failed to get sensor", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sensor)
}

func (s *Server) handleGasSensor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sensor, err := s.view.GasSensor(ctx, providerFromPath(r), s.clock.Now())
	if err != nil {
		if errors.Is(err, view.ErrUnknownProvider) {
			writeJSONError(w, "unknown provider", http.StatusNotFound)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to get gas sensor", slog.Any("error", err))
		writeJSONError(w, "failed to get sensor", http.StatusInternalServerError)
		return
	}
	writeJSON(w, sensor)
}

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.view.Requests(s.clock.Now()))
}
