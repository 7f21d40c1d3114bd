package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/agentmart/agentmart/internal/auth"
	"github.com/agentmart/agentmart/internal/marketplace"
)

// handleRegister handles POST /api/v1/auth/register
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username  string `json:"username"`
		Email     string `json:"email"`
		Password  string `json:"password"`
		Developer bool   `json:"developer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Password == "" {
		s.respondError(w, http.StatusBadRequest, errors.New("username and password are required"))
		return
	}
	if len(req.Password) < 8 {
		s.respondError(w, http.StatusBadRequest, errors.New("password must be at least 8 characters"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	user, err := s.store.CreateUser(r.Context(), marketplace.CreateUserParams{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		Developer:    req.Developer,
	})
	if err != nil {
		if marketplace.IsKind(err, marketplace.KindConflict) {
			s.respondError(w, http.StatusConflict, errors.New("username or email already taken"))
			return
		}
		s.respondMarketError(w, err)
		return
	}
	s.logf("registered user id=%d username=%s developer=%v", user.ID, user.Username, user.Developer)

	token, err := s.sessions.IssueToken(user.ID, user.Username)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]any{
		"user":  user,
		"token": token,
	})
}

// handleLogin handles POST /api/v1/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	user, err := s.store.FindUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	if user == nil || !user.Active || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		// Same answer for unknown user and bad password.
		s.respondError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
		return
	}
	token, err := s.sessions.IssueToken(user.ID, user.Username)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"token": token,
	})
}

// handleProfile handles GET /api/v1/profile
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	s.respondJSON(w, http.StatusOK, user)
}
