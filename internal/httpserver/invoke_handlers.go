package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/agentmart/agentmart/internal/marketplace"
)

// handleInvoke handles POST /api/v1/agents/{agentID}/invoke. The body is the
// agent-specific payload; field validation happens inside the agent
// implementation so new agents do not require API changes.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	agentID, err := pathID(r, "agentID")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Input marketplace.Payload `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if len(req.Input) == 0 {
		s.respondError(w, http.StatusBadRequest, errors.New("input is required"))
		return
	}

	agentLabel := strconv.FormatInt(agentID, 10)
	if agent, aerr := s.store.GetAgent(r.Context(), agentID); aerr == nil && agent != nil {
		agentLabel = string(agent.Type)
	}

	start := time.Now()
	inv, err := s.coordinator.Invoke(r.Context(), user.ID, agentID, req.Input)
	if s.collector != nil {
		s.collector.RecordInvocation(agentLabel, time.Since(start), err)
		if marketplace.IsKind(err, marketplace.KindRaceLost) {
			s.collector.RecordSettlementRace()
		}
		if err == nil && inv != nil {
			s.collector.RecordSettlement(agentLabel, inv.TokensUsed, inv.Cost)
		}
	}
	if err != nil {
		// A failed invocation still yields an audit record; surface it
		// alongside the error when available.
		if inv != nil {
			kind := marketplace.KindOf(err)
			s.respondJSON(w, statusForKind(kind), map[string]any{
				"error":      err.Error(),
				"kind":       kind,
				"invocation": inv,
			})
			return
		}
		s.respondMarketError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, inv)
}

func statusForKind(kind marketplace.Kind) int {
	switch kind {
	case marketplace.KindNotFound:
		return http.StatusNotFound
	case marketplace.KindPaymentRequired:
		return http.StatusPaymentRequired
	case marketplace.KindAgentError:
		return http.StatusBadGateway
	case marketplace.KindRaceLost, marketplace.KindConflict:
		return http.StatusConflict
	case marketplace.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// handleInvocations handles GET /api/v1/usage/invocations?limit=N
func (s *Server) handleInvocations(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			s.respondError(w, http.StatusBadRequest, errors.New("limit must be between 1 and 500"))
			return
		}
		limit = parsed
	}
	invocations, err := s.store.ListInvocations(r.Context(), user.ID, limit)
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"invocations": invocations})
}
