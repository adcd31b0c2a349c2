// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

// Package httpapi exposes the authentication service over a JSON HTTP API.
package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/christopher-w1/gatekeeper/internal/auth"
	"github.com/christopher-w1/gatekeeper/internal/observability"
)

// Options configures the API server.
type Options struct {
	// APITokens are the shared secrets clients must present in the
	// api_token body field. Ignored when RequireAPIToken is false.
	APITokens []string

	// RequireAPIToken gates every endpoint behind the api_token check.
	RequireAPIToken bool

	// Metrics receives per-request and per-login counters. May be nil.
	Metrics *observability.Metrics
}

// Server handles the JSON API endpoints.
type Server struct {
	service *auth.Service
	opts    Options
}

// NewServer creates an API server on top of the authentication service.
func NewServer(service *auth.Service, opts Options) *Server {
	return &Server{service: service, opts: opts}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.countRequests)

	r.Post("/register-user", s.handleRegister)
	r.Post("/login-user", s.handleLogin)
	r.Post("/logout-user", s.handleLogout)
	r.Post("/modify-user", s.handleModify)
	r.Post("/get-user-data", s.handleGetUserData)
	r.Post("/extend-session", s.handleExtendSession)
	r.Post("/validate-session", s.handleValidateSession)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "unknown endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return r
}

// countRequests records one observation per request, labeled with the
// matched route pattern and the response status.
func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := chi.RouteContext(r.Context()).RoutePattern()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.opts.Metrics.RecordRequest(endpoint, ww.Status())
	})
}

// authorized checks the api_token carried in the request body against the
// configured secrets. It compares in constant time and always walks the
// whole list.
func (s *Server) authorized(apiToken string) bool {
	if !s.opts.RequireAPIToken {
		return true
	}

	match := false
	for _, candidate := range s.opts.APITokens {
		if subtle.ConstantTimeCompare([]byte(apiToken), []byte(candidate)) == 1 {
			match = true
		}
	}
	return match
}

func (s *Server) recordLogin(outcome string) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.RecordLogin(outcome)
	}
}
