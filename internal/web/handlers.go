// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package web

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/internal/items"
	"github.com/listkeep/listkeep/internal/logging"
	"github.com/listkeep/listkeep/internal/observability"
	"github.com/listkeep/listkeep/pkg/errutil"
)

func (s *Server) redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, view string, data any) {
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, view, data); err != nil {
		errutil.LogError(logging.FromContext(r.Context()), "render failed", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	buf.WriteTo(w)
}

// fail logs err with its context and answers with the generic error page.
// Error details never reach the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	errutil.LogError(logging.FromContext(r.Context()), msg, err)
	s.render(w, r, http.StatusInternalServerError, ViewError, nil)
}

func (s *Server) page(view string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.render(w, r, http.StatusOK, view, nil)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	//nolint:errcheck // client may disconnect
	w.Write([]byte("ok\n"))
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.metrics.RecordAuth("register", observability.OutcomeFailure)
		s.redirect(w, r, "/")
		return
	}

	_, token, session, err := s.auth.Register(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"), clientInfo(r))
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateUsername) || auth.IsInvalidInput(err) {
			s.metrics.RecordAuth("register", observability.OutcomeFailure)
			logging.FromContext(r.Context()).InfoContext(r.Context(), "registration rejected", "code", errutil.Code(err))
			s.redirect(w, r, "/")
			return
		}
		s.metrics.RecordAuth("register", observability.OutcomeError)
		s.fail(w, r, "registration failed", err)
		return
	}

	s.metrics.RecordAuth("register", observability.OutcomeSuccess)
	s.endPriorSession(r)
	s.setSessionCookie(w, token, session)
	s.redirect(w, r, "/list")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.metrics.RecordAuth("login", observability.OutcomeFailure)
		s.redirect(w, r, "/login")
		return
	}

	session, token, err := s.auth.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"), clientInfo(r))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.metrics.RecordAuth("login", observability.OutcomeFailure)
			s.redirect(w, r, "/login")
			return
		}
		s.metrics.RecordAuth("login", observability.OutcomeError)
		s.fail(w, r, "login failed", err)
		return
	}

	s.metrics.RecordAuth("login", observability.OutcomeSuccess)
	s.endPriorSession(r)
	s.setSessionCookie(w, token, session)
	s.redirect(w, r, "/list")
}

// endPriorSession invalidates the session whose cookie came with r, if any.
// A failed delete is logged; the session then lapses at its expiry.
func (s *Server) endPriorSession(r *http.Request) {
	token := s.sessionToken(r)
	if token == "" {
		return
	}
	if err := s.auth.Logout(r.Context(), token); err != nil {
		errutil.LogWarn(r.Context(), logging.FromContext(r.Context()), "ending previous session failed", err)
	}
}

// handleLogout always clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.endPriorSession(r)
	s.metrics.RecordAuth("logout", observability.OutcomeSuccess)
	s.clearSessionCookie(w)
	s.redirect(w, r, "/")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	owned := s.items.List(user)
	view := listView{Username: user.Username, Items: make([]itemView, 0, len(owned))}
	for _, it := range owned {
		view.Items = append(view.Items, itemView{ID: it.ID.String(), Name: it.Name})
	}
	s.render(w, r, http.StatusOK, ViewList, view)
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	if _, err := s.items.AddItem(r.Context(), user, r.PostFormValue("task")); err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			// The user was deleted after authorization.
			s.metrics.RecordItemOp("add", observability.OutcomeFailure)
			s.clearSessionCookie(w)
			s.redirect(w, r, "/")
			return
		}
		s.metrics.RecordItemOp("add", observability.OutcomeError)
		s.fail(w, r, "add item failed", err)
		return
	}

	s.metrics.RecordItemOp("add", observability.OutcomeSuccess)
	s.redirect(w, r, "/list")
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	itemID, ok := items.ParseItemID(r.PostFormValue("itemId"))
	if !ok {
		s.metrics.RecordItemOp("remove", observability.OutcomeFailure)
		s.redirect(w, r, "/list")
		return
	}

	if err := s.items.RemoveItem(r.Context(), user, itemID); err != nil {
		s.metrics.RecordItemOp("remove", observability.OutcomeError)
		s.fail(w, r, "remove item failed", err)
		return
	}

	s.metrics.RecordItemOp("remove", observability.OutcomeSuccess)
	s.redirect(w, r, "/list")
}
