// Package server provides the HTTP JSON API of the journal.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"nepse-journal/internal/config"
	"nepse-journal/internal/ledger"
	"nepse-journal/internal/logging"
	"nepse-journal/internal/portfolio"
	"nepse-journal/internal/security"
)

// Config holds server dependencies.
type Config struct {
	Log        zerolog.Logger
	Settings   config.ServerConfig
	Portfolios *portfolio.Service
	Ledger     *ledger.Service
	Validator  *security.InputValidator
	Access     *security.AccessController
	Store      Pinger
}

// Server represents the HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	handler   *Handler
	limiter   *rateLimiter
	health    *healthChecker
	started   time.Time
	readOnly  func() bool
	settings  config.ServerConfig
	validator *security.InputValidator
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	log := logging.WithComponent(cfg.Log, "server")
	validator := cfg.Validator
	if validator == nil {
		validator = security.NewInputValidator(true)
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       log,
		handler:   NewHandler(cfg.Portfolios, cfg.Ledger, log),
		health:    newHealthChecker(),
		started:   time.Now(),
		readOnly:  func() bool { return false },
		settings:  cfg.Settings,
		validator: validator,
	}
	if cfg.Access != nil {
		s.readOnly = cfg.Access.IsReadOnly
	}
	if cfg.Store != nil {
		s.health.register("database", databaseCheck(cfg.Store))
	}
	if cfg.Settings.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.Settings.RateLimit, cfg.Settings.RateBurst)
	}

	s.setupMiddleware()
	s.setupRoutes()

	readTimeout := cfg.Settings.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := cfg.Settings.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.server = &http.Server{
		Addr:         cfg.Settings.Addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Router returns the HTTP handler of the API.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info().Msg("Shutting down HTTP server")
		return s.server.Shutdown(shutdownCtx)
	}
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(requestIDContext)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	if s.limiter != nil {
		s.router.Use(s.limiter.middleware)
	}

	s.router.Use(middleware.Timeout(60 * time.Second))

	origins := s.settings.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/users/{user}", func(r chi.Router) {
			r.Use(s.validateUser)
			s.handler.RegisterRoutes(r)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/recalculate", s.handler.HandleRecalculate)
		})
	})
}

// validateUser rejects malformed user IDs before any handler runs.
func (s *Server) validateUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.validator.ValidateID("user_id", chi.URLParam(r, "user")); err != nil {
			s.handler.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestIDContext exposes the chi request ID under the journal's context
// key so audit events carry it.
func requestIDContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), logging.RequestIDKey, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logging.LogRequest(
			s.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger(),
			r.Method, r.URL.Path, ww.Status(), time.Since(start),
		)
	})
}
