// Package metrics serves the keeper's optional HTTP status endpoint
// (spec.md §6.6): cache and queue stats must be retrievable, contents
// otherwise unspecified, so this reports the Supervisor's KeeperStatus
// snapshot as JSON.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/solcron/keeper/internal/supervisor"
)

// StatusProvider is the slice of the Supervisor the metrics server needs.
type StatusProvider interface {
	Status() supervisor.KeeperStatus
}

// Server is a minimal HTTP server exposing /healthz and /status.
type Server struct {
	http *http.Server
}

// NewServer builds a metrics server bound to port, backed by sp.
func NewServer(port uint16, sp StatusProvider) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(sp.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return &Server{
		http: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

// ListenAndServe blocks serving HTTP until the server is shut down.
// Callers should run it in its own goroutine alongside the pipeline.
func (s *Server) ListenAndServe() error {
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
