package auth

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/productmanager/internal/platform/httpx"
	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/shared"
	"github.com/odyssey-erp/productmanager/internal/token"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *shared.SessionTracker
	gate     *rbac.Gate
	errors   httpx.ErrorResponder
	limiter  func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance. loginLimiter may be nil.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionTracker, gate *rbac.Gate, errs httpx.ErrorResponder, loginLimiter func(http.Handler) http.Handler) *Handler {
	if loginLimiter == nil {
		loginLimiter = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{logger: logger, service: service, sessions: sessions, gate: gate, errors: errs, limiter: loginLimiter}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.limiter).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(h.gate.Chain()).Get("/me", h.handleMe)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	result, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	h.sessions.SetCookie(w, shared.Session{ID: result.SessionID, ExpiresAt: result.Session.ExpiresAt})
	w.Header().Set(rbac.SessionExpiresHeader, result.Session.ExpiresAt.UTC().Format(time.RFC3339))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sessionID := h.sessions.IDFromRequest(r)
	if sessionID == "" {
		sessionID = h.service.SessionIDFromToken(token.FromRequest(r))
	}
	if err := h.service.Logout(r.Context(), sessionID); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	h.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		h.errors.Respond(w, r, shared.ErrUnauthenticated)
		return
	}
	principal, err := h.service.Current(r.Context(), actor.IdentityID)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	body := map[string]any{
		"identity":    principal,
		"permissions": principal.Permissions.Names(),
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		body["session"] = SessionInfo{
			ExpiresAt:         sess.ExpiresAt,
			InactivitySeconds: int(h.sessions.Inactivity().Seconds()),
			WarningSeconds:    int(h.sessions.Warning().Seconds()),
		}
	}
	httpx.JSON(w, http.StatusOK, body)
}
