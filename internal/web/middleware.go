// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/internal/logging"
)

type userKey struct{}

// userFromContext returns the user placed by requireUser.
func userFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userKey{}).(*auth.User)
	return user
}

// instrument opens a server span, attaches a request-scoped logger, and
// records the request log line and metrics once the handler returns.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := s.tracer.Start(r.Context(), r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			))
		defer span.End()

		logger := s.logger.With("request_id", middleware.GetReqID(ctx))
		ctx = logging.WithLogger(ctx, logger)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(ctx); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)

		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		s.metrics.ObserveRequest(route, r.Method, status, elapsed)
		logger.InfoContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"duration", elapsed,
		)
	})
}

// recoverer turns a handler panic into the generic error page.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.fail(w, r, "handler panic", oops.Code("WEB_PANIC").Errorf("panic: %v", rec))
		}()
		next.ServeHTTP(w, r)
	})
}

// requireUser authorizes every protected request against the session
// store. Unauthenticated requests are sent to the entry page with nothing
// rendered and nothing changed.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.sessionToken(r)
		user, err := s.gate.Authorize(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				if token != "" {
					s.clearSessionCookie(w)
				}
				http.Redirect(w, r, "/", http.StatusSeeOther)
				return
			}
			s.fail(w, r, "authorize request", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}
