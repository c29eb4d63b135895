package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jameshartig/enever/pkg/common"
	"github.com/jameshartig/enever/pkg/coordinator"
	"github.com/jameshartig/enever/pkg/log"
	"github.com/jameshartig/enever/pkg/metrics"
	"github.com/jameshartig/enever/pkg/view"
	"github.com/levenlabs/go-lflag"
)

// tokenVerifier is a function that validates an OIDC ID Token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Ticker runs one refresh of all feeds.
type Ticker interface {
	Tick(ctx context.Context) coordinator.Update
}

// Server exposes the cached prices as JSON sensors and lets an external
// scheduler trigger refreshes.
type Server struct {
	view   *view.View
	ticker Ticker
	clock  *common.Clock

	listenAddr string
	httpServer *http.Server

	updateEmail string
	verifier    tokenVerifier
	serverName  string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(v *view.View, t Ticker, clock *common.Clock) *Server {
	srv := &Server{
		view:       v,
		ticker:     t,
		clock:      clock,
		serverName: "enever/" + common.Version(),
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	updateAudience := lflag.String("update-audience", "", "Audience of the ID token required for /api/update (empty disables authentication)")
	updateIssuer := lflag.String("update-issuer", "https://accounts.google.com", "Issuer of the ID token required for /api/update")
	updateEmail := lflag.String("update-email", "", "Email the ID token for /api/update must belong to")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.updateEmail = *updateEmail
		if *updateAudience != "" {
			provider, err := oidc.NewProvider(context.Background(), *updateIssuer)
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize OIDC provider", slog.String("issuer", *updateIssuer), slog.Any("error", err))
				os.Exit(1)
			}
			srv.verifier = provider.Verifier(&oidc.Config{ClientID: *updateAudience}).Verify
		} else if srv.updateEmail != "" {
			log.Ctx(context.Background()).Error("update-email requires update-audience")
			os.Exit(1)
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/sensors", s.handleSensors)
	apiMux.HandleFunc("GET /api/sensors/electricity/{provider}", s.handleElectricitySensor)
	apiMux.HandleFunc("GET /api/sensors/gas/{provider}", s.handleGasSensor)
	apiMux.HandleFunc("GET /api/requests", s.handleRequests)
	apiMux.HandleFunc("POST /api/update", s.handleUpdate)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiMux)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // a tick can take a fetch timeout per feed
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
