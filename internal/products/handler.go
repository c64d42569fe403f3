package products

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/productmanager/internal/platform/httpx"
	"github.com/odyssey-erp/productmanager/internal/rbac"
	"github.com/odyssey-erp/productmanager/internal/shared"
)

// Handler exposes product endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	gate    *rbac.Gate
	errors  httpx.ErrorResponder
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate *rbac.Gate, errs httpx.ErrorResponder) *Handler {
	return &Handler{logger: logger, service: service, gate: gate, errors: errs}
}

// MountRoutes registers product routes, each behind its own permission.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.gate.Chain(h.gate.RequirePermission(shared.PermViewProducts))).Group(func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/search/{query}", h.search)
		r.Get("/stats/summary", h.stats)
		r.Get("/{id}", h.get)
	})
	r.With(h.gate.Chain(h.gate.RequirePermission(shared.PermCreateProducts))).Post("/", h.create)
	r.With(h.gate.Chain(h.gate.RequirePermission(shared.PermEditProducts))).Put("/{id}", h.update)
	r.With(h.gate.Chain(h.gate.RequirePermission(shared.PermDeleteProducts))).Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	if q := r.URL.Query().Get("q"); q != "" {
		h.respondSearch(w, r, q)
		return
	}
	products, err := h.service.List(r.Context())
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	h.respondSearch(w, r, chi.URLParam(r, "query"))
}

func (h *Handler) respondSearch(w http.ResponseWriter, r *http.Request, term string) {
	query, products, err := h.service.Search(r.Context(), term)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"query": query, "products": products})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stats": stats})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := rbac.PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product": product})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	product, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"product": product})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
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
	product, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"product": product})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := rbac.PathID(r)
	if err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.errors.Respond(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
