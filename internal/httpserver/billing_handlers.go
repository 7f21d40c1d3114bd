package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
)

// handleTopup handles POST /api/v1/tokens/topup. Payment processing is out of
// scope; the credit is applied directly.
func (s *Server) handleTopup(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	var req struct {
		Tokens int64 `json:"tokens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	if req.Tokens <= 0 {
		s.respondError(w, http.StatusBadRequest, errors.New("tokens must be positive"))
		return
	}
	balance, err := s.store.CreditBalance(r.Context(), user.ID, req.Tokens)
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	if s.collector != nil {
		s.collector.RecordTopup(req.Tokens)
	}
	s.logf("topup user=%d tokens=%d balance=%d", user.ID, req.Tokens, balance)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"user_id":       user.ID,
		"credited":      req.Tokens,
		"token_balance": balance,
	})
}

// handleBalance handles GET /api/v1/tokens/balance
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	// Re-read so the figure reflects concurrent purchases.
	fresh, err := s.store.GetUser(r.Context(), user.ID)
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	if fresh == nil {
		s.respondError(w, http.StatusNotFound, errors.New("user not found"))
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"user_id":       fresh.ID,
		"token_balance": fresh.TokenBalance,
	})
}

// handlePurchase handles POST /api/v1/agents/{agentID}/purchase
func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
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
		Tokens int64 `json:"tokens"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, errors.New("invalid JSON body"))
		return
	}
	purchase, err := s.entitlements.Purchase(r.Context(), user.ID, agentID, req.Tokens)
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	if s.collector != nil {
		s.collector.RecordPurchase(purchase.TokensPurchased)
	}
	s.respondJSON(w, http.StatusCreated, purchase)
}

// handlePurchases handles GET /api/v1/purchases
func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	purchases, err := s.store.ListPurchases(r.Context(), user.ID)
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"purchases": purchases})
}

// handleEarnings handles GET /api/v1/earnings. Developer accounts only.
func (s *Server) handleEarnings(w http.ResponseWriter, r *http.Request) {
	user, ok := s.sessionUser(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, errors.New("authentication required"))
		return
	}
	if !user.Developer {
		s.respondError(w, http.StatusForbidden, errors.New("developer account required"))
		return
	}
	earnings, err := s.store.DeveloperEarnings(r.Context(), user.ID)
	if err != nil {
		s.respondMarketError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, earnings)
}
