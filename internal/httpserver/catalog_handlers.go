package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/agentmart/agentmart/internal/marketplace"
)

// handleListAgents handles GET /api/v1/agents. Inactive entries are included
// only when ?include_inactive=true.
func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("include_inactive") != "true"
	agents, err := s.store.ListAgents(r.Context(), activeOnly)
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// handleGetAgent handles GET /api/v1/agents/{agentID}
func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "agentID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	agent, err := s.store.GetAgent(r.Context(), id)
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	if agent == nil {
		s.respondError(w, http.StatusNotFound, errors.New("agent not found"))
		return
	}
	// Public route, but callers holding a valid token also learn whether
	// they already own a purchase for this agent.
	if user, err := s.authenticateRequest(r); err == nil {
		purchased, err := s.hasPurchased(r, user.ID, agent.ID)
		if err != nil {
			s.respondMarketError(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, map[string]any{
			"agent":     agent,
			"purchased": purchased,
		})
		return
	}
	s.respondJSON(w, http.StatusOK, agent)
}

func (s *Server) hasPurchased(r *http.Request, userID, agentID int64) (bool, error) {
	purchases, err := s.store.ListPurchases(r.Context(), userID)
	if err != nil {
		return false, err
	}
	for _, p := range purchases {
		if p.AgentID == agentID {
			return true, nil
		}
	}
	return false, nil
}

// handleCreateAgent handles POST /api/v1/agents. Developer accounts only.
func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	if !user.Developer {
		s.respondError(w, http.StatusForbidden, errors.New("developer account required"))
		return
	}

	var req struct {
		Name          string  `json:"name"`
		Description   string  `json:"description"`
		Type          string  `json:"type"`
		PricePerToken float64 `json:"price_per_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Type = strings.TrimSpace(req.Type)
	switch {
	case req.Name == "":
		s.respondError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	case req.Type == "":
		s.respondError(w, http.StatusBadRequest, errors.New("type is required"))
		return
	case req.PricePerToken <= 0:
		s.respondError(w, http.StatusBadRequest, errors.New("price_per_token must be positive"))
		return
	}

	agent, err := s.store.CreateAgent(r.Context(), marketplace.CreateAgentParams{
		Name:          req.Name,
		Description:   req.Description,
		Type:          marketplace.AgentType(req.Type),
		DeveloperID:   user.ID,
		PricePerToken: req.PricePerToken,
	})
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	s.logf("agent published id=%d type=%s developer=%d price=%g", agent.ID, agent.Type, user.ID, agent.PricePerToken)
	s.respondJSON(w, http.StatusCreated, agent)
}

// handleDeactivateAgent handles DELETE /api/v1/agents/{agentID}. Entries are
// never removed; deactivation hides them from the catalog while existing
// purchases stay usable for audit.
func (s *Server) handleDeactivateAgent(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	id, err := pathID(r, "agentID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	agent, err := s.store.GetAgent(r.Context(), id)
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	if agent == nil {
		s.respondError(w, http.StatusNotFound, errors.New("agent not found"))
		return
	}
	if agent.DeveloperID != user.ID {
		s.respondError(w, http.StatusForbidden, errors.New("not the agent's developer"))
		return
	}
	if err := s.store.DeactivateAgent(r.Context(), id); err != nil {
		s.respondMarketError(w, err)
		return
	}
	s.logf("agent deactivated id=%d developer=%d", id, user.ID)
	s.respondJSON(w, http.StatusOK, map[string]any{"id": id, "active": false})
}

// handleMyAgents handles GET /api/v1/agents/mine
func (s *Server) handleMyAgents(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	agents, err := s.store.ListAgentsByDeveloper(r.Context(), user.ID)
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"agents": agents})
}
