// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/fentz26/priora/internal/auth"
	"github.com/fentz26/priora/internal/engine"
	"github.com/fentz26/priora/internal/logging"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

// Config configures the HTTP server.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	JWTSecret    string
	Version      string
}

// Server provides the HTTP API for priora.
type Server struct {
	service *engine.Service
	config  Config
	logger  *slog.Logger
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new HTTP server and builds its routes.
func NewServer(service *engine.Service, cfg Config, logger *slog.Logger) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	s := &Server{
		service: service,
		config:  cfg,
		logger:  logging.WithComponent(logger, "server"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.RequestSize(1 << 20))
	r.Use(chimiddleware.Heartbeat("/ping"))

	r.Get("/", s.handleInfo)
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.config.JWTSecret != "" {
			r.Use(auth.Middleware([]byte(s.config.JWTSecret), func(w http.ResponseWriter, r *http.Request, err error) {
				writeError(w, &statusError{status: http.StatusUnauthorized, err: err})
			}))
		}

		r.Post("/priority", s.handlePriority)
		r.Post("/difficulty", s.handleDifficulty)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/predict", s.handlePredict)
		r.Post("/predict-batch", s.handlePredictBatch)
		r.Post("/save-tasks", s.handleSaveTasks)
		r.Post("/complete", s.handleComplete)
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Get("/accuracy/{userID}", s.handleGetAccuracy)
		r.Post("/accuracy/{userID}/snapshot", s.handleSnapshot)
		r.Get("/decisions", s.handleDecisions)
		r.Get("/analyses", s.handleListAnalyses)
		r.Get("/analyses/stats", s.handleAnalysisStats)
		r.Get("/analyses/{id}", s.handleGetAnalysis)
		r.Delete("/analyses/{id}", s.handleDeleteAnalysis)
	})

	// Credentialed requests only for explicitly listed origins.
	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: !allowsAnyOrigin(s.config.CORSOrigins),
	})
	return c.Handler(r)
}

func allowsAnyOrigin(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

// Start starts the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.config.Addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("starting priora daemon", "addr", s.config.Addr, "auth", s.config.JWTSecret != "")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", chimiddleware.GetReqID(r.Context()))
	})
}
