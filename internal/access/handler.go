package access

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vantage-dg/vantage/internal/platform/httpx"
	"github.com/vantage-dg/vantage/internal/shared"
)

// Handler exposes the session's resolved view of the permission model:
// the effective per-feature levels, a single-feature predicate, and the
// override controls for administrators.
type Handler struct {
	logger  *slog.Logger
	manager *Manager
	mw      Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, manager *Manager, mw Middleware) *Handler {
	return &Handler{logger: logger, manager: manager, mw: mw}
}

// MountRoutes registers session access routes. The override endpoints gate
// on the actor's real grants rather than the resolved level: an override is
// a preview, and applying a role without settings Admin must not lock the
// administrator out of clearing it.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions", h.sessionPermissions)
	r.Get("/access", h.checkAccess)
	r.Delete("/", h.endSession)
	r.Group(func(r chi.Router) {
		r.Use(h.mw.RequireBaseLevel(shared.FeatureSettings, LevelAdmin))
		r.Put("/override", h.setOverride)
		r.Delete("/override", h.clearOverride)
	})
}

type sessionPermissionsResponse struct {
	Permissions   map[string]string `json:"permissions"`
	Override      string            `json:"override,omitempty"`
	HighestLevel  string            `json:"highestLevel"`
	EffectiveRole string            `json:"effectiveRole,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func (h *Handler) sessionPermissions(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}

	resolved := eng.Permissions()
	out := make(map[string]string, len(resolved))
	for feature, l := range resolved {
		out[feature] = string(l)
	}
	httpx.JSON(w, http.StatusOK, sessionPermissionsResponse{
		Permissions:   out,
		Override:      eng.Override(),
		HighestLevel:  string(HighestLevel(resolved)),
		EffectiveRole: effectiveRoleName(eng, resolved),
		Error:         eng.Err(),
	})
}

type checkAccessResponse struct {
	Feature string `json:"feature"`
	Level   string `json:"level"`
	Allowed bool   `json:"allowed"`
}

func (h *Handler) checkAccess(w http.ResponseWriter, r *http.Request) {
	feature := strings.TrimSpace(r.URL.Query().Get("feature"))
	if feature == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "feature query parameter is required")
		return
	}
	required := ParseLevel(r.URL.Query().Get("level"))

	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, checkAccessResponse{
		Feature: feature,
		Level:   string(eng.Resolve(feature)),
		Allowed: eng.HasPermission(feature, required),
	})
}

type setOverrideRequest struct {
	RoleID string `json:"roleId"`
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	var req setOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed override payload")
		return
	}
	if strings.TrimSpace(req.RoleID) == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "roleId is required")
		return
	}

	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	eng.SetOverride(r.Context(), req.RoleID)
	httpx.JSON(w, http.StatusOK, map[string]string{"override": req.RoleID})
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request) {
	eng, ok := h.engine(w, r)
	if !ok {
		return
	}
	eng.SetOverride(r.Context(), "")
	w.WriteHeader(http.StatusNoContent)
}

// endSession discards the actor's engine at logout. The persisted override
// id deliberately survives; it is reloaded when the actor returns and stays
// applied until explicitly cleared.
func (h *Handler) endSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no actor identity on request")
		return
	}
	h.manager.Drop(actor.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) engine(w http.ResponseWriter, r *http.Request) (*Engine, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "no actor identity on request")
		return nil, false
	}
	eng, err := h.manager.Ready(r.Context(), actor.ID)
	if err != nil {
		// Degraded data still resolves (fails closed); surface the error
		// in the payload, not the status.
		h.logger.Warn("access session bootstrap", slog.String("actor", actor.ID), slog.Any("error", err))
	}
	return eng, true
}

// effectiveRoleName labels the session with a named role when the resolved
// map matches one exactly, falling back to the highest granted level for
// actors whose group mix matches no single role.
func effectiveRoleName(eng *Engine, resolved PermissionMap) string {
	for _, role := range eng.Roles() {
		if permissionMapsEqual(role.FeaturePermissions, resolved) {
			return role.Name
		}
	}
	return ""
}

func permissionMapsEqual(a, b PermissionMap) bool {
	if len(a) != len(b) {
		return false
	}
	for feature, l := range a {
		if b[feature] != l {
			return false
		}
	}
	return true
}
