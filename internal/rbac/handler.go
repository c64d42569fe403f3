package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/productmanager/internal/platform/httpx"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

// Handler exposes role and permission endpoints.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	gate       *Gate
	errors     httpx.ErrorResponder
	superAdmin string
}

// NewHandler builds a Handler. Role deletion and permission assignment are limited to
// superAdminRole.
func NewHandler(logger *slog.Logger, service *Service, gate *Gate, errs httpx.ErrorResponder, superAdminRole string) *Handler {
	if superAdminRole == "" {
		superAdminRole = shared.RoleSuperAdmin
	}
	return &Handler{logger: logger, service: service, gate: gate, errors: errs, superAdmin: superAdminRole}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.gate.Chain(h.gate.RequirePermission(shared.PermViewRoles))).Group(func(r chi.Router) {
		r.Get("/", h.listRoles)
		r.Get("/permissions", h.listPermissions)
		r.Get("/{id}", h.getRole)
		r.Get("/{id}/permissions", h.rolePermissions)
	})
	r.With(h.gate.Chain(h.gate.RequirePermission(shared.PermCreateRoles))).Post("/", h.createRole)
	r.With(h.gate.Chain(h.gate.RequirePermission(shared.PermEditRoles))).Put("/{id}", h.updateRole)
	r.With(h.gate.Chain(h.gate.RequireRole(h.superAdmin))).Group(func(r chi.Router) {
		r.Delete("/{id}", h.deleteRole)
		r.Post("/{id}/permissions", h.assignPermissions)
		r.Put("/{id}/permissions", h.assignPermissions)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role})
}

func (h *Handler) rolePermissions(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	perms, err := h.service.RolePermissions(r.Context(), id)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roleId": id, "permissions": perms})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var input RoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	role, err := h.service.CreateRole(r.Context(), input)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"role": role})
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	var patch RolePatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, patch)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignPermissions(w http.ResponseWriter, r *http.Request) {
	id, err := PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	var body PermissionAssignment
	if err := httpx.DecodeJSON(r, &body); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	update, err := h.service.UpdateRolePermissions(r.Context(), id, body.PermissionIDs)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, update)
}

// PathID parses the {id} URL parameter.
func PathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.NewValidationError("id", "must be a positive integer")
	}
	return id, nil
}
