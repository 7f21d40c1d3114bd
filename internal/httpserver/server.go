package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/agentmart/agentmart/internal/auth"
	"github.com/agentmart/agentmart/internal/health"
	"github.com/agentmart/agentmart/internal/marketplace"
	"github.com/agentmart/agentmart/internal/metrics"
	"github.com/agentmart/agentmart/internal/version"
)

// Server exposes the marketplace REST API.
type Server struct {
	store        marketplace.Store
	entitlements *marketplace.Entitlements
	coordinator  *marketplace.Coordinator
	sessions     *auth.Manager
	collector    *metrics.Collector
	checker      *health.Checker

	logger *log.Logger
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.collector = c }
}

// WithHealth attaches a component health checker; without one /healthz
// reports only liveness.
func WithHealth(c *health.Checker) Option {
	return func(s *Server) { s.checker = c }
}

// NewServer constructs a Server over the given store and coordinator.
func NewServer(store marketplace.Store, ent *marketplace.Entitlements, coord *marketplace.Coordinator, sessions *auth.Manager, opts ...Option) *Server {
	s := &Server{
		store:        store,
		entitlements: ent,
		coordinator:  coord,
		sessions:     sessions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with all marketplace routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	if s.collector != nil {
		r.Use(s.metricsMiddleware)
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/v1", func(api chi.Router) {
		api.Post("/auth/register", s.handleRegister)
		api.Post("/auth/login", s.handleLogin)

		api.Get("/agents", s.handleListAgents)
		api.Get("/agents/{agentID}", s.handleGetAgent)

		api.Group(func(private chi.Router) {
			private.Use(s.sessionMiddleware)

			private.Get("/profile", s.handleProfile)

			private.Post("/agents", s.handleCreateAgent)
			private.Delete("/agents/{agentID}", s.handleDeactivateAgent)
			private.Get("/agents/mine", s.handleMyAgents)

			private.Post("/tokens/topup", s.handleTopup)
			private.Get("/tokens/balance", s.handleBalance)

			private.Post("/agents/{agentID}/purchase", s.handlePurchase)
			private.Post("/agents/{agentID}/invoke", s.handleInvoke)

			private.Get("/purchases", s.handlePurchases)
			private.Get("/usage/invocations", s.handleInvocations)
			private.Get("/earnings", s.handleEarnings)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": version.Info(),
		})
		return
	}
	report := s.checker.Check(r.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, map[string]any{
		"status":     report.Status,
		"version":    version.Info(),
		"components": report.Components,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		http.Error(w, "metrics disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(metrics.FormatPrometheus(s.collector.GetSnapshot())))
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		s.collector.RecordRequest(route, time.Since(start))
		if ww.Status() >= 400 {
			s.collector.RecordError(route)
		}
	})
}

type sessionContextKey struct{}

func (s *Server) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticateRequest(r)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) authenticateRequest(r *http.Request) (*marketplace.User, error) {
	if s.sessions == nil {
		return nil, errors.New("sessions unavailable")
	}
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return nil, errors.New("missing bearer token")
	}
	claims, err := s.sessions.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("unknown user")
	}
	return user, nil
}

func (s *Server) sessionUser(r *http.Request) (*marketplace.User, bool) {
	user, ok := r.Context().Value(sessionContextKey{}).(*marketplace.User)
	return user, ok && user != nil
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError writes the error payload. Every error body carries a kind so
// clients discriminate on it rather than on message text; untyped errors get
// a kind derived from the status (race_lost and conflict share 409 and are
// only told apart by the kind field).
func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	kind := marketplace.KindOf(err)
	var mErr *marketplace.Error
	if !errors.As(err, &mErr) {
		kind = kindForStatus(status)
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error(), "kind": kind})
}

// respondMarketError maps marketplace error kinds onto HTTP statuses.
func (s *Server) respondMarketError(w http.ResponseWriter, err error) {
	s.respondError(w, statusForKind(marketplace.KindOf(err)), err)
}

func kindForStatus(status int) marketplace.Kind {
	switch {
	case status == http.StatusNotFound:
		return marketplace.KindNotFound
	case status == http.StatusPaymentRequired:
		return marketplace.KindPaymentRequired
	case status == http.StatusConflict:
		return marketplace.KindConflict
	case status == http.StatusBadGateway:
		return marketplace.KindAgentError
	case status >= 400 && status < 500:
		return marketplace.KindInvalid
	default:
		return marketplace.KindInternal
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}
