package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/ChannelPassBot/internal/catalog"
	"github.com/digkill/ChannelPassBot/internal/service"
)

type Deps struct {
	Users      *service.UserService
	Ledger     *service.Ledger
	Moderation *service.ModerationService
	Broadcasts *service.BroadcastService
	Catalog    *catalog.Store
}

// Server is the operator HTTP API. Everything except /healthz sits behind
// basic auth.
type Server struct {
	addr       string
	username   string
	password   string
	log        *slog.Logger
	users      *service.UserService
	ledger     *service.Ledger
	moderation *service.ModerationService
	broadcasts *service.BroadcastService
	catalog    *catalog.Store
	router     *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, deps Deps) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:       addr,
		username:   username,
		password:   password,
		log:        log,
		users:      deps.Users,
		ledger:     deps.Ledger,
		moderation: deps.Moderation,
		broadcasts: deps.Broadcasts,
		catalog:    deps.Catalog,
		router:     r,
	}
	r.Get("/healthz", s.handleHealth)
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Get("/stats", s.handleStats)
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Post("/catalog/reload", s.handleReloadCatalog)
		protected.Route("/claims", func(r chi.Router) {
			r.Get("/pending", s.handleListPending)
			r.Post("/{id}/decision", s.handleDecision)
		})
		protected.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Post("/ban", s.handleBan)
			r.Post("/points", s.handlePoints)
		})
	})
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.Stats(r.Context())
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	claims, err := s.ledger.ListPending(r.Context(), limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, claims)
}

type decisionRequest struct {
	OperatorID int64  `json:"operator_id"`
	Decision   string `json:"decision"`
}

type decisionResponse struct {
	ClaimID       int64  `json:"claim_id"`
	Status        string `json:"status"`
	UserNotified  bool   `json:"user_notified"`
	PromptsMarked int    `json:"prompts_marked"`
}

// handleDecision applies the same decision an operator would make from the
// chat prompt, so the exactly-once guarantees are shared.
func (s *Server) handleDecision(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	var decision service.Decision
	switch strings.ToLower(strings.TrimSpace(req.Decision)) {
	case "approve", "approved":
		decision = service.DecisionApprove
	case "reject", "rejected":
		decision = service.DecisionReject
	default:
		http.Error(w, "decision must be approve or reject", http.StatusBadRequest)
		return
	}

	claim, err := s.ledger.Get(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	out, err := s.moderation.Decide(r.Context(), req.OperatorID, service.ActionToken{
		Decision: decision,
		UserID:   claim.UserID,
		ClaimID:  claim.ID,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, decisionResponse{
		ClaimID:       out.Claim.ID,
		Status:        string(out.Claim.Status),
		UserNotified:  out.UserNotified,
		PromptsMarked: out.PromptsMarked,
	})
}

type broadcastRequest struct {
	OperatorID int64  `json:"operator_id"`
	Message    string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	res, err := s.broadcasts.Broadcast(r.Context(), req.OperatorID, req.Message)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReloadCatalog(w http.ResponseWriter, _ *http.Request) {
	if err := s.catalog.Reload(); err != nil {
		s.log.Error("reload catalog", "err", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	c := s.catalog.Current()
	s.writeJSON(w, http.StatusOK, map[string]int{
		"tiers":   len(c.Tiers),
		"methods": len(c.Methods),
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	user, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type banRequest struct {
	Banned bool `json:"banned"`
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.users.SetBanned(r.Context(), id, req.Banned); err != nil {
		s.serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pointsRequest struct {
	Points int `json:"points"`
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req pointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := s.users.GrantPoints(r.Context(), id, req.Points); err != nil {
		s.serviceError(w, err)
		return
	}
	user, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.username || pass != s.password {
				w.Header().Set("WWW-Authenticate", `Basic realm="channelpass"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// serviceError maps service sentinels onto HTTP status codes.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, service.ErrUnauthorized):
		http.Error(w, "operator not allowed", http.StatusForbidden)
	case errors.Is(err, service.ErrAlreadyDecided):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrInvalidAction):
		s.badRequest(w, err)
	default:
		s.internalError(w, err)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func parseID(value string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(value), 10, 64)
}
