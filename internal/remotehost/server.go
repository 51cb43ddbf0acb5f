// Package remotehost serves the support tickets remote entry script.
package remotehost

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

//go:embed assets/remoteEntry.js
var defaultEntry []byte

// EntryPath is where the entry script is served.
const EntryPath = "/remoteEntry.js"

type Server struct {
	entry []byte
	log   *logrus.Logger
}

// New serves entry, or the bundled script when entry is empty.
func New(entry []byte, log *logrus.Logger) *Server {
	if len(entry) == 0 {
		entry = defaultEntry
	}
	return &Server{entry: entry, log: log}
}

// Router wires the routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, cors)
	r.HandleFunc(EntryPath, s.handleEntry).Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	return r
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.WithField("addr", addr).Info("remote host listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(s.entry)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// cors allows any origin; the entry script is public.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("elapsed", time.Since(start)).
			Debug("request")
	})
}
