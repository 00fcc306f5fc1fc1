// Package httpapi exposes the Risk Coordinator over HTTP, grounded on the
// teacher's internal/interfaces/http.Server: gorilla/mux router, a small
// middleware chain (request ID, structured logging, timeout), and
// explicit Methods() per route.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/riskcore-io/riskcore/internal/coordinator"
	"github.com/riskcore-io/riskcore/internal/telemetry/metrics"
)

// Config controls the HTTP listener.
type Config struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:           "127.0.0.1",
		Port:           8090,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: 2 * time.Second,
	}
}

// Server is the risk core's HTTP surface: POST /evaluate plus /healthz and
// /metrics for operational visibility.
type Server struct {
	router      *mux.Router
	server      *http.Server
	coordinator *coordinator.Coordinator
	promReg     *prometheus.Registry
	log         zerolog.Logger
	cfg         Config
	breakerState func() string
}

// New builds a Server bound to cfg.Host:cfg.Port. breakerState reports the
// vector-store circuit breaker's current state for /healthz; pass nil if
// no breaker is wired.
func New(coord *coordinator.Coordinator, promReg *prometheus.Registry, log zerolog.Logger, cfg Config, breakerState func() string) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("httpapi: port %d busy or unavailable: %w", cfg.Port, err)
	}
	listener.Close()

	s := &Server{
		router:       mux.NewRouter(),
		coordinator:  coord,
		promReg:      promReg,
		log:          log,
		cfg:          cfg,
		breakerState: breakerState,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(s.jsonContentTypeMiddleware)
	api.Use(s.timeoutMiddleware)

	api.HandleFunc("/evaluate", s.handleEvaluate).Methods("POST")
	api.HandleFunc("/outcomes", s.handleSubmitOutcome).Methods("POST")
	api.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	if s.promReg != nil {
		s.router.Handle("/metrics", metrics.Handler(s.promReg)).Methods("GET")
	}

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusWrapper{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapper, r)
		s.log.Info().
			Str("request_id", fmt.Sprint(r.Context().Value(requestIDKey{}))).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.status).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusWrapper struct {
	http.ResponseWriter
	status int
}

func (w *statusWrapper) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Start blocks serving HTTP until the listener errors or is shut down.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("httpapi: starting")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
