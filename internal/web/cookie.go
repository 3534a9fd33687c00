// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package web

import (
	"net"
	"net/http"

	"github.com/listkeep/listkeep/internal/auth"
)

func (s *Server) sessionToken(r *http.Request) string {
	c, err := r.Cookie(s.opts.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(s.opts.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clientInfo records where a session was opened. RemoteAddr has already
// been rewritten by the RealIP middleware.
func clientInfo(r *http.Request) auth.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return auth.ClientInfo{UserAgent: r.UserAgent(), IPAddress: ip}
}
