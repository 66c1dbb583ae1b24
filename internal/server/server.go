// Package server exposes the presentation-layer surface: a JSON HTTP API
// over the orchestration core plus an SSE feed of bus events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/orquestra-ai/orquestra/internal/approval"
	"github.com/orquestra-ai/orquestra/internal/controller"
	"github.com/orquestra-ai/orquestra/internal/event"
	"github.com/orquestra-ai/orquestra/internal/team"
)

// Config holds server configuration.
type Config struct {
	Host         string
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Host:         "127.0.0.1",
		Port:         7733,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // no write timeout, SSE connections are long-lived
	}
}

// Server is the HTTP server.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	ctrl     *controller.Controller
	mediator *approval.Mediator
	teams    *team.Engine
	bus      *event.Bus
}

// New creates a Server. teams may be nil when team coordination is
// disabled.
func New(cfg *Config, ctrl *controller.Controller, mediator *approval.Mediator, teams *team.Engine, bus *event.Bus) *Server {
	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		ctrl:     ctrl,
		mediator: mediator,
		teams:    teams,
		bus:      bus,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/event", s.events)

	s.router.Route("/threads", func(r chi.Router) {
		r.Get("/", s.listThreads)
		r.Post("/", s.createThread)
		r.Route("/{threadID}", func(r chi.Router) {
			r.Get("/", s.getThread)
			r.Patch("/", s.renameThread)
			r.Delete("/", s.deleteThread)
			r.Post("/messages", s.submit)
		})
	})

	s.router.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Patch("/", s.renameSession)
		r.Delete("/", s.deleteSession)
		r.Post("/abort", s.abort)
		r.Post("/approve", s.approve)
		r.Post("/approve-always", s.approveAlways)
		r.Post("/deny", s.deny)
		r.Post("/answer", s.answer)
	})

	s.router.Route("/rules", func(r chi.Router) {
		r.Get("/", s.listRules)
		r.Post("/", s.addRule)
		r.Delete("/{ruleID}", s.removeRule)
	})

	s.router.Route("/teams", func(r chi.Router) {
		r.Get("/", s.listTeams)
		r.Get("/{teamName}", s.getTeam)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
