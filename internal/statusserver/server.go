// Package statusserver exposes a running exploration session over HTTP.
package statusserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mrmurphy/internal/engine"
)

// Reporter provides a snapshot of the session state.
type Reporter interface {
	Status() engine.Status
}

// NewHandler routes /status, /metrics and the files of the journal directory
// under /journal/. A nil metrics handler or empty journal dir disables the
// route.
func NewHandler(reporter Reporter, metrics http.Handler, journalDir string) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reporter.Status()); err != nil {
			http.Error(w, "failed to encode status", http.StatusInternalServerError)
		}
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	if journalDir != "" {
		files := http.StripPrefix("/journal", http.FileServer(http.Dir(journalDir)))
		r.Get("/journal/*", files.ServeHTTP)
	}
	return r
}

// Server serves a handler until shut down.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
	done   chan error
}

// Start listens on addr and serves handler in the background.
func Start(addr string, handler http.Handler, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	s := &Server{
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger.Named("statusserver"),
		done:   make(chan error, 1),
	}
	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
	}()
	s.logger.Info("Status server listening", zap.String("addr", s.Addr()))
	return s, nil
}

// Addr is the address the server is bound to.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Shutdown stops accepting requests and waits for active ones to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return <-s.done
}
