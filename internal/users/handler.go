package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/productmanager/internal/platform/httpx"
	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	gate       *rbac.Gate
	errors     httpx.ErrorResponder
	superAdmin string
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate *rbac.Gate, errs httpx.ErrorResponder, superAdminRole string) *Handler {
	if superAdminRole == "" {
		superAdminRole = shared.RoleSuperAdmin
	}
	return &Handler{logger: logger, service: service, gate: gate, errors: errs, superAdmin: superAdminRole}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.gate.Chain(h.gate.RequirePermission(shared.PermViewReports))).Group(func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Get("/{id}", h.getUser)
		r.Get("/{id}/permissions", h.userPermissions)
	})
	r.With(h.gate.Chain(h.gate.RequireRole(h.superAdmin))).Group(func(r chi.Router) {
		r.Post("/", h.createUser)
		r.Put("/{id}", h.updateUser)
		r.Delete("/{id}", h.deleteUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := rbac.PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := rbac.PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	p, err := h.service.Permissions(r.Context(), id)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"userId":      p.IdentityID,
		"roleId":      p.RoleID,
		"roleName":    p.RoleName,
		"permissions": p.Permissions.Names(),
	})
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	user, err := h.service.CreateUser(r.Context(), in)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"user": user})
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := rbac.PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	user, err := h.service.UpdateUser(r.Context(), id, in)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": user})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := rbac.PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
