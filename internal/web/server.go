// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

// Package web is the HTML form interface: chi routing, the session cookie,
// and the handlers for registration, login and the item list.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/internal/items"
	"github.com/listkeep/listkeep/internal/observability"
)

// DefaultCookieName names the session cookie when Options leaves it empty.
const DefaultCookieName = "listkeep_session"

// Options configures the listener and the session cookie.
type Options struct {
	Addr         string
	CookieName   string
	CookieSecure bool
	// SessionTTL becomes the cookie Max-Age.
	SessionTTL time.Duration
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Auth     *auth.Service
	Gate     *auth.Gate
	Items    *items.Service
	Renderer Renderer
	// Metrics may be nil.
	Metrics *observability.Metrics
	Logger  *slog.Logger
}

// Server serves the application routes.
type Server struct {
	opts     Options
	auth     *auth.Service
	gate     *auth.Gate
	items    *items.Service
	renderer Renderer
	metrics  *observability.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
	router   chi.Router

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer validates deps and builds the router.
func NewServer(opts Options, deps Deps) (*Server, error) {
	if deps.Auth == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("auth service is required")
	}
	if deps.Gate == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("authorization gate is required")
	}
	if deps.Items == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("item service is required")
	}
	if deps.Renderer == nil {
		return nil, oops.Code("WEB_INVALID_CONFIG").Errorf("renderer is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = auth.DefaultSessionTTL
	}

	s := &Server{
		opts:     opts,
		auth:     deps.Auth,
		gate:     deps.Gate,
		items:    deps.Items,
		renderer: deps.Renderer,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		tracer:   otel.Tracer("github.com/listkeep/listkeep/internal/web"),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(s.recoverer)

	r.Get("/", s.page(ViewHome))
	r.Get("/register", s.page(ViewRegister))
	r.Get("/login", s.page(ViewLogin))
	r.Post("/register", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Get("/healthz", handleHealth)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticFiles())))

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/list", s.handleList)
		r.Post("/add", s.handleAdd)
		r.Post("/delete", s.handleDelete)
	})

	return r
}

// Handler returns the application router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves in the background. The returned channel
// receives a serve failure, and is closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("WEB_RUNNING").Errorf("web server already running")
	}

	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("WEB_LISTEN_FAILED").With("addr", s.opts.Addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.logger.Error("web server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("web server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests until ctx expires. Stopping a stopped
// server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_web_server").Wrap(err)
	}

	s.logger.Info("web server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
