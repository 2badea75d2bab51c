package grants

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vantage-dg/vantage/internal/platform/httpx"
	"github.com/vantage-dg/vantage/internal/shared"
)

// Handler serves the authorization backend contract consumed by permission
// engines: an actor's grants and the role catalog.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountActorRoutes registers the routes that need an actor identity.
func (h *Handler) MountActorRoutes(r chi.Router) {
	r.Get("/permissions", h.permissions)
}

// MountCatalogRoutes registers the actor-independent catalog listing.
// Permission engines fetch it without asserting an identity.
func (h *Handler) MountCatalogRoutes(r chi.Router) {
	r.Get("/roles", h.catalog)
}

func (h *Handler) permissions(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no actor identity on request")
		return
	}
	perms, err := h.service.PermissionsFor(r.Context(), actor.ID, actor.Groups)
	if err != nil {
		h.logger.Error("grants permissions", slog.String("actor", actor.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make(map[string]string, len(perms))
	for feature, l := range perms {
		out[feature] = string(l)
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	catalog, err := h.service.Catalog(r.Context())
	if err != nil {
		h.logger.Error("grants catalog", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, catalog)
}
