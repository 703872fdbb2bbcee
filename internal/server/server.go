// Package server exposes the ingredient list, manual search, confirmations and
// scan controls over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teamalpha/aichef/internal/camera"
	"github.com/teamalpha/aichef/internal/confirm"
	"github.com/teamalpha/aichef/internal/ingredient"
	"github.com/teamalpha/aichef/internal/scan"
)

// Server handles HTTP requests for the scanner
type Server struct {
	deps      Deps
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// Deps are the components the server drives.
// Queue and Device may be nil: without a Queue confirmations are answered
// automatically, without a Device frames cannot be uploaded.
type Deps struct {
	Pipeline *scan.Pipeline
	Ledger   *ingredient.Ledger
	Queue    *confirm.Queue
	Source   *camera.Source
	Device   *camera.PushDevice
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(deps Deps, basicAuth BasicAuth) *Server {
	return NewServerWithMux(deps, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(deps Deps, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		deps:      deps,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers to every response and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="AI Chef"`)
			writeError(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	// Ingredient list
	s.mux.HandleFunc("POST /api/ingredients/{label}/check", s.requireAuth(s.handleCheckIngredient))
	s.mux.HandleFunc("DELETE /api/ingredients/{label}", s.requireAuth(s.handleDeleteIngredient))
	s.mux.HandleFunc("GET /api/ingredients", s.requireAuth(s.handleListIngredients))

	// Manual entry
	s.mux.HandleFunc("POST /api/search", s.requireAuth(s.handleSearch))

	// Confirmations
	s.mux.HandleFunc("POST /api/confirmations/{id}/accept", s.requireAuth(s.handleResolve(confirm.Accept)))
	s.mux.HandleFunc("POST /api/confirmations/{id}/reject", s.requireAuth(s.handleResolve(confirm.Reject)))
	s.mux.HandleFunc("GET /api/confirmations", s.requireAuth(s.handleListConfirmations))

	// Scanning
	s.mux.HandleFunc("POST /api/scan/pause", s.requireAuth(s.handleSetScanState(camera.Paused)))
	s.mux.HandleFunc("POST /api/scan/resume", s.requireAuth(s.handleSetScanState(camera.Active)))
	s.mux.HandleFunc("POST /api/scan/toggle", s.requireAuth(s.handleToggleScan))
	s.mux.HandleFunc("GET /api/scan", s.requireAuth(s.handleScanStatus))
	s.mux.HandleFunc("POST /api/frames", s.requireAuth(s.handleUploadFrame))
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start serves HTTP until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}
