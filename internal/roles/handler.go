package roles

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/vantage-dg/vantage/internal/access"
	"github.com/vantage-dg/vantage/internal/platform/httpx"
	"github.com/vantage-dg/vantage/internal/shared"
)

// Handler manages role administration endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	gate    access.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate access.Middleware) *Handler {
	return &Handler{logger: logger, service: service, gate: gate}
}

// MountRoutes registers role routes. Reads require the settings feature at
// Read-only; mutations require Admin and are rate limited per actor.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireLevel(shared.FeatureSettings, access.LevelReadOnly))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.gate.RequireLevel(shared.FeatureSettings, access.LevelAdmin))
		r.Use(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if actor, ok := shared.ActorFromContext(r.Context()); ok {
				return actor.ID, nil
			}
			return httprate.KeyByIP(r)
		})))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.remove)
	})
}

type rolePayload struct {
	Name               string            `json:"name"`
	Description        string            `json:"description"`
	AssignedGroups     []string          `json:"assignedGroups"`
	FeaturePermissions map[string]string `json:"featurePermissions"`
}

type roleResponse struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name"`
	Description        string            `json:"description,omitempty"`
	AssignedGroups     []string          `json:"assignedGroups"`
	FeaturePermissions map[string]string `json:"featurePermissions"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("roles list", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed role payload")
		return
	}
	role, err := h.service.Create(r.Context(), toInput(payload))
	if err != nil {
		h.logger.Error("roles create", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(role))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var payload rolePayload
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed role payload")
		return
	}
	role, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), toInput(payload))
	if err != nil {
		h.logger.Error("roles update", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toInput(p rolePayload) RoleInput {
	return RoleInput{
		Name:               p.Name,
		Description:        p.Description,
		AssignedGroups:     p.AssignedGroups,
		FeaturePermissions: p.FeaturePermissions,
	}
}

func toResponse(role Role) roleResponse {
	perms := make(map[string]string, len(role.FeaturePermissions))
	for feature, l := range role.FeaturePermissions {
		perms[feature] = string(l)
	}
	groups := role.AssignedGroups
	if groups == nil {
		groups = []string{}
	}
	return roleResponse{
		ID:                 role.ID,
		Name:               role.Name,
		Description:        role.Description,
		AssignedGroups:     groups,
		FeaturePermissions: perms,
		CreatedAt:          role.CreatedAt,
		UpdatedAt:          role.UpdatedAt,
	}
}
