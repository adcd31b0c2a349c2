// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeeper Contributors

package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/christopher-w1/gatekeeper/internal/auth"
)

// userPayload renders the client-visible view of a user. The password hash
// never leaves the service.
func userPayload(user *auth.User) map[string]any {
	return map[string]any{
		"user_id":       user.ID.String(),
		"username":      user.Username,
		"email":         user.Email,
		"registered_at": user.RegisteredAt.UTC().Format(time.RFC3339),
		"last_access":   user.LastAccess.UTC().Format(time.RFC3339),
	}
}

type registerRequest struct {
	APIToken string `json:"api_token"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.authorized(req.APIToken) {
		writeError(w, http.StatusUnauthorized, "invalid api token")
		return
	}

	user, err := s.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, map[string]any{"user_id": user.ID.String()})
}

type loginRequest struct {
	APIToken string `json:"api_token"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	// The token gate runs before the limiter, so unauthorized callers
	// cannot burn a user's attempt budget.
	if !s.authorized(req.APIToken) {
		writeError(w, http.StatusUnauthorized, "invalid api token")
		return
	}

	user, token, err := s.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.recordLogin(loginOutcome(err))
		writeServiceError(w, r, err)
		return
	}

	s.recordLogin("success")
	writeSuccess(w, map[string]any{
		"session_token": token,
		"user_id":       user.ID.String(),
	})
}

func loginOutcome(err error) string {
	var oopsErr oops.OopsError
	if errors.As(err, &oopsErr) {
		switch oopsErr.Code() {
		case "AUTH_RATE_LIMITED":
			return "rate_limited"
		case "AUTH_INVALID_CREDENTIALS":
			return "invalid"
		}
	}
	return "error"
}

type sessionRequest struct {
	APIToken     string `json:"api_token"`
	SessionToken string `json:"session_token"`
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.authorized(req.APIToken) {
		writeError(w, http.StatusUnauthorized, "invalid api token")
		return
	}

	// Unknown tokens are already logged out; report success either way.
	s.service.Logout(req.SessionToken)
	writeSuccess(w, nil)
}

func (s *Server) handleExtendSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.authorized(req.APIToken) {
		writeError(w, http.StatusUnauthorized, "invalid api token")
		return
	}

	if !s.service.ExtendSession(req.SessionToken) {
		writeError(w, http.StatusUnauthorized, "invalid or expired session")
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleValidateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.authorized(req.APIToken) {
		writeError(w, http.StatusUnauthorized, "invalid api token")
		return
	}

	userID, valid := s.service.ValidateSession(req.SessionToken)
	fields := map[string]any{"valid": valid}
	if valid {
		fields["user_id"] = userID
	}
	writeSuccess(w, fields)
}

type modifyRequest struct {
	APIToken     string `json:"api_token"`
	SessionToken string `json:"session_token"`
	NewUsername  string `json:"new_username"`
	NewEmail     string `json:"new_email"`
	NewPassword  string `json:"new_password"`
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.authorized(req.APIToken) {
		writeError(w, http.StatusUnauthorized, "invalid api token")
		return
	}

	user, err := s.service.Modify(r.Context(), req.SessionToken, auth.ProfileChanges{
		Username: req.NewUsername,
		Email:    req.NewEmail,
		Password: req.NewPassword,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, map[string]any{"user": userPayload(user)})
}

type getUserDataRequest struct {
	APIToken string `json:"api_token"`
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func (s *Server) handleGetUserData(w http.ResponseWriter, r *http.Request) {
	var req getUserDataRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.authorized(req.APIToken) {
		writeError(w, http.StatusUnauthorized, "invalid api token")
		return
	}

	user, err := s.service.GetUser(r.Context(), auth.UserRef{
		ID:       req.UserID,
		Email:    req.Email,
		Username: req.Username,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, map[string]any{"user": userPayload(user)})
}
