package access

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/vantage-dg/vantage/internal/observability"
	"github.com/vantage-dg/vantage/internal/shared"
)

// Middleware wires feature-gate guards for HTTP handlers. Every guard asks
// the actor's engine whether the effective level on a feature meets the
// required level; any failure path denies.
type Middleware struct {
	Manager *Manager
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// WithActor extracts the proxy-asserted identity headers and attaches the
// actor to the request context. Requests without an actor are rejected.
func (m Middleware) WithActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actorID == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		actor := shared.Actor{ID: actorID, Groups: splitGroups(r.Header.Get(GroupsHeader))}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireLevel ensures the actor's effective level on the feature meets the
// required level. The engine fails closed, so a missing actor, a fetch
// failure, or a dangling override all render as 403.
func (m Middleware) RequireLevel(feature FeatureID, required Level) func(http.Handler) http.Handler {
	return m.require(feature, required, (*Engine).HasPermission)
}

// RequireBaseLevel gates on the actor's real grants, ignoring any applied
// override. Override administration uses this so an administrator
// impersonating a less-privileged role can always exit the impersonation.
func (m Middleware) RequireBaseLevel(feature FeatureID, required Level) func(http.Handler) http.Handler {
	return m.require(feature, required, (*Engine).HasBaseGrant)
}

func (m Middleware) require(feature FeatureID, required Level, check func(*Engine, FeatureID, Level) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			eng, err := m.Manager.Ready(r.Context(), actor.ID)
			if err != nil && m.Logger != nil {
				m.Logger.Error("access gate initialize", slog.String("actor", actor.ID), slog.Any("error", err))
			}
			allowed := check(eng, feature, required)
			m.Metrics.RecordGateDecision(feature, allowed)
			if allowed {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// GroupsHeader carries the actor's directory groups, comma separated.
const GroupsHeader = "X-Vantage-Groups"

func splitGroups(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	groups := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			groups = append(groups, p)
		}
	}
	return groups
}
