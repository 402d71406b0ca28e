// Package http hosts the Brew Signal JSON API: a gorilla/mux router with
// request-ID, logging, timeout, and CORS middleware around the handler set,
// plus the Prometheus exposition endpoint.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/interfaces/http/handlers"
	"github.com/brewsignal/brewsignal/internal/metrics"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// requestTimeout bounds one API request end to end.
const requestTimeout = 30 * time.Second

// Server is the API server.
type Server struct {
	router *mux.Router
	server *http.Server
	cfg    config.HTTPConfig
	log    zerolog.Logger
}

// NewServer builds the server around the handler set.
func NewServer(cfg config.HTTPConfig, h *handlers.Handlers, log zerolog.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		cfg:    cfg,
		log:    log.With().Str("component", "http_server").Logger(),
	}
	s.routes(h)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Router exposes the configured router, mainly for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) routes(h *handlers.Handlers) {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.timeoutMiddleware)
	s.router.Use(s.corsMiddleware)

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/ip", h.ListIPs).Methods(http.MethodGet)
	api.HandleFunc("/ip", h.CreateIP).Methods(http.MethodPost)

	// Literal segments before the {id} routes so /ip/bd-ranking resolves.
	api.HandleFunc("/ip/bd-ranking", h.BDRanking).Methods(http.MethodGet)
	api.HandleFunc("/ip/alias/{aid}", h.UpdateAlias).Methods(http.MethodPut)
	api.HandleFunc("/ip/alias/{aid}", h.DeleteAlias).Methods(http.MethodDelete)
	api.HandleFunc("/ip/alias/{aid}/reset-weight", h.ResetAliasWeight).Methods(http.MethodPost)

	api.HandleFunc("/ip/{id}", h.GetIP).Methods(http.MethodGet)
	api.HandleFunc("/ip/{id}", h.UpdateIP).Methods(http.MethodPut)
	api.HandleFunc("/ip/{id}", h.DeleteIP).Methods(http.MethodDelete)
	api.HandleFunc("/ip/{id}/aliases", h.AddAlias).Methods(http.MethodPost)

	api.HandleFunc("/ip/{id}/trend", h.Trend).Methods(http.MethodGet)
	api.HandleFunc("/ip/{id}/signals", h.Signals).Methods(http.MethodGet)
	api.HandleFunc("/ip/{id}/health", h.IPHealth).Methods(http.MethodGet)

	api.HandleFunc("/ip/{id}/opportunity", h.Opportunity).Methods(http.MethodGet)
	api.HandleFunc("/ip/{id}/opportunity", h.UpdateOpportunityInputs).Methods(http.MethodPut)
	api.HandleFunc("/ip/{id}/bd-score", h.BDScore).Methods(http.MethodGet)
	api.HandleFunc("/ip/{id}/launch-plan", h.LaunchPlan).Methods(http.MethodGet)

	api.HandleFunc("/ip/{id}/pipeline", h.GetPipeline).Methods(http.MethodGet)
	api.HandleFunc("/ip/{id}/pipeline", h.CreatePipeline).Methods(http.MethodPost)
	api.HandleFunc("/ip/{id}/pipeline", h.UpdatePipeline).Methods(http.MethodPut)

	api.HandleFunc("/collect/run", h.CollectRun).Methods(http.MethodPost)
	api.HandleFunc("/collect/catalog-sync/{id}", h.CatalogSync).Methods(http.MethodPost)
	api.HandleFunc("/collect/video-sync/{id}", h.VideoSync).Methods(http.MethodPost)
	api.HandleFunc("/collect/merch-sync/{id}", h.MerchSync).Methods(http.MethodPost)

	api.HandleFunc("/admin/data-health/sources", h.SourceHealth).Methods(http.MethodGet)
	api.HandleFunc("/admin/data-health/matrix", h.CoverageMatrix).Methods(http.MethodGet)
	api.HandleFunc("/admin/data-health/runs", h.RecentRuns).Methods(http.MethodGet)
	api.HandleFunc("/admin/data-health/registry", h.SourceRegistry).Methods(http.MethodGet)
	api.HandleFunc("/admin/confidence/{id}", h.Confidence).Methods(http.MethodGet)
	api.HandleFunc("/admin/confidence/{id}/recalculate", h.RecalculateConfidence).Methods(http.MethodPost)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapper, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.ObserveHTTP(r.Method, route, wrapper.status, elapsed)

		requestID, _ := r.Context().Value(requestIDKey).(string)
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("duration", elapsed).
			Str("remote", r.RemoteAddr).
			Msg("request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1") {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting http server")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
