// Package server exposes the HTTP API: document upload, chat, and document
// management, all scoped to a (user_id, notebook_id) pair.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"notebook-rag/internal/answer"
	"notebook-rag/internal/config"
	"notebook-rag/internal/ingest"
	"notebook-rag/internal/store"
)

type Server struct {
	cfg      config.ServerConfig
	ingester *ingest.Pipeline
	answerer *answer.Pipeline
	store    store.Gateway
}

func New(cfg config.ServerConfig, ingester *ingest.Pipeline, answerer *answer.Pipeline, gw store.Gateway) *Server {
	return &Server{cfg: cfg, ingester: ingester, answerer: answerer, store: gw}
}

// Handler builds the routed handler with CORS and request logging applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ingest", s.handleIngest).Methods(http.MethodPost)
	router.HandleFunc("/chat", s.handleChat).Methods(http.MethodPost)
	router.HandleFunc("/documents", s.handleListDocuments).Methods(http.MethodGet)
	router.HandleFunc("/documents/{id}", s.handleDeleteDocument).Methods(http.MethodDelete)

	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	return cors.AllowAll().Handler(router)
}

// ListenAndServe runs the server until the listener fails or the process
// stops. Shutdown is handled by the caller via the returned http.Server.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	log.Info().Str("addr", s.cfg.Addr).Msg("listening")
	return srv.ListenAndServe()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rw.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("panic", err).Str("path", r.URL.Path).Msg("handler panicked")
				respondError(w, http.StatusInternalServerError, "Internal server error.")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
