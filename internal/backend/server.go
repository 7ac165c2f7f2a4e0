// Package backend is a reference implementation of the chatbot REST API:
// accounts with bearer tokens, per-user sessions, and stored exchanges
// answered by a Responder. It backs `studychat serve` and the client's
// end-to-end tests.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/soyeahso/studychat/internal/config"
	"github.com/soyeahso/studychat/internal/logging"
	"github.com/soyeahso/studychat/internal/version"
)

// Server serves the chatbot REST API.
type Server struct {
	cfg       config.BackendConfig
	repo      *Repository
	responder Responder
	log       *logging.Logger
	router    chi.Router
	metrics   *metrics

	tokenTTL   time.Duration
	bcryptCost int

	mu         sync.Mutex
	httpServer *http.Server
	listenAddr string
}

// New creates a Server. Zero token TTL and bcrypt cost fall back to the
// config defaults.
func New(cfg config.BackendConfig, repo *Repository, responder Responder, log *logging.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		repo:       repo,
		responder:  responder,
		log:        log.Sub("backend"),
		tokenTTL:   time.Duration(cfg.TokenTTLHours) * time.Hour,
		bcryptCost: cfg.BcryptCost,
		metrics:    newMetrics(),
	}
	if s.tokenTTL <= 0 {
		s.tokenTTL = config.DefaultTokenTTLHours * time.Hour
	}
	if s.bcryptCost == 0 {
		s.bcryptCost = bcrypt.DefaultCost
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.log))
	r.Use(s.metrics.middleware)
	r.Use(chimw.Recoverer)
	r.Use(corsMiddleware(s.cfg.AllowedOrigins))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.With(s.requireToken).Get("/me", s.handleMe)
	})

	r.Route("/api/chatbot", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Get("/sessions", s.handleListSessions)
		r.Post("/sessions", s.handleCreateSession)
		r.Delete("/sessions", s.handleDeleteSessions)
		r.Get("/sessions/{id}/messages", s.handleMessages)
		r.Post("/sessions/{id}/message", s.handleSendMessage)
	})

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)
	return r
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.BackendConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return fmt.Sprintf("%s:%d", host, cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Start begins listening for HTTP connections. It blocks until the context
// is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.listenAddr = ln.Addr().String()
	s.mu.Unlock()

	if pruned, err := s.repo.PruneTokens(); err != nil {
		s.log.Warn().Err(err).Msg("failed to prune expired tokens")
	} else if pruned > 0 {
		s.log.Info().Int64("tokens", pruned).Msg("pruned expired tokens")
	}

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Str("version", version.Version).
		Msg("backend server ready")

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down backend server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the address the server is listening on, or empty string if
// not started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}
