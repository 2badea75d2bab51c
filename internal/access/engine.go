package access

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Engine resolves effective access levels for one actor. It holds the
// actor's real grants, the role catalog, and an optional override role id
// that substitutes a role's permissions for the actor's own.
//
// All reads are synchronous snapshots; permission and role data is only
// ever replaced wholesale under the lock, so a caller can never observe a
// half-applied map.
type Engine struct {
	actorID string
	perms   PermissionSource
	roles   RoleCatalogSource
	store   OverrideStore
	logger  *slog.Logger

	mu             sync.RWMutex
	actorPerms     PermissionMap
	catalog        []Role
	overrideRoleID string
	lastErr        string
	loading        bool
	initializing   bool
	rehydrated     bool

	subMu sync.Mutex
	subs  map[int]chan struct{}
	subID int
}

// NewEngine constructs an engine for the given actor. The store may be nil
// when override persistence is not wanted (tests, one-shot tools).
func NewEngine(actorID string, perms PermissionSource, roles RoleCatalogSource, store OverrideStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		actorID: actorID,
		perms:   perms,
		roles:   roles,
		store:   store,
		logger:  logger,
		subs:    make(map[int]chan struct{}),
	}
}

// Initialize loads the actor's grants and the role catalog. It is
// idempotent: once both datasets are present it never refetches, and
// concurrent calls collapse into a single fetch pair. Fetch failures are
// non-fatal; whatever data did arrive is kept and the error is surfaced
// through Err.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.initializing {
		e.mu.Unlock()
		return nil
	}
	if len(e.actorPerms) > 0 && len(e.catalog) > 0 {
		e.mu.Unlock()
		return nil
	}
	// Flags flip before any fetch is issued so a second caller arriving
	// between the check and the network call still sees the guard.
	e.loading = true
	e.initializing = true
	e.lastErr = ""
	e.mu.Unlock()
	e.notify()

	var g errgroup.Group
	g.Go(func() error {
		fetched, err := e.perms.FetchPermissions(ctx, e.actorID)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.actorPerms = fetched
		e.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		fetched, err := e.roles.FetchRoles(ctx)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.catalog = fetched
		e.mu.Unlock()
		return nil
	})

	err := g.Wait()

	e.mu.Lock()
	if err != nil {
		e.lastErr = err.Error()
	} else {
		e.lastErr = ""
	}
	e.loading = false
	e.initializing = false
	e.mu.Unlock()
	e.notify()

	if err != nil {
		e.logger.Error("access engine initialize", slog.String("actor", e.actorID), slog.Any("error", err))
	}
	return err
}

// RefreshPermissions unconditionally refetches the actor's grants. On
// failure the previous snapshot stays in place.
func (e *Engine) RefreshPermissions(ctx context.Context) error {
	e.setLoading(true)
	fetched, err := e.perms.FetchPermissions(ctx, e.actorID)

	e.mu.Lock()
	if err != nil {
		e.lastErr = err.Error()
	} else {
		e.actorPerms = fetched
		e.lastErr = ""
	}
	e.loading = false
	e.mu.Unlock()
	e.notify()
	return err
}

// RefreshRoles unconditionally refetches the role catalog, with the same
// failure semantics as RefreshPermissions.
func (e *Engine) RefreshRoles(ctx context.Context) error {
	e.setLoading(true)
	fetched, err := e.roles.FetchRoles(ctx)

	e.mu.Lock()
	if err != nil {
		e.lastErr = err.Error()
	} else {
		e.catalog = fetched
		e.lastErr = ""
	}
	e.loading = false
	e.mu.Unlock()
	e.notify()
	return err
}

// SetOverride applies a role override, or clears it when roleID is empty.
// The id is not validated against the catalog; Resolve treats a dangling id
// as deny-all. The transition itself never fails: a persistence error is
// logged and the in-memory state keeps the new value.
func (e *Engine) SetOverride(ctx context.Context, roleID string) {
	e.mu.Lock()
	e.overrideRoleID = roleID
	// An explicit transition makes the in-memory state authoritative.
	e.rehydrated = true
	e.mu.Unlock()
	e.notify()

	if e.store == nil {
		return
	}
	var err error
	if roleID == "" {
		err = e.store.Clear(ctx, e.actorID)
	} else {
		err = e.store.Save(ctx, e.actorID, roleID)
	}
	if err != nil {
		e.logger.Warn("access engine persist override", slog.String("actor", e.actorID), slog.Any("error", err))
	}
}

// Rehydrate loads a persisted override id before the first Resolve so an
// impersonation applied in a previous session stays active. It runs at most
// once per engine: after the first successful load the in-memory state is
// authoritative, so a stale id left behind by a failed Clear can never
// silently re-apply a cleared override. A load failure leaves the engine
// unhydrated and is retried on the next call.
func (e *Engine) Rehydrate(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	e.mu.RLock()
	done := e.rehydrated
	e.mu.RUnlock()
	if done {
		return nil
	}
	roleID, err := e.store.Load(ctx, e.actorID)
	if err != nil {
		e.logger.Warn("access engine rehydrate override", slog.String("actor", e.actorID), slog.Any("error", err))
		return err
	}
	e.mu.Lock()
	e.rehydrated = true
	e.overrideRoleID = roleID
	e.mu.Unlock()
	if roleID != "" {
		e.notify()
	}
	return nil
}

// Resolve computes the effective level for one feature. With an override
// applied the role's map substitutes the actor's grants entirely; an
// override pointing at a role missing from the catalog denies every
// feature. Resolve is total: it never errors, unknown features are
// LevelNone.
func (e *Engine) Resolve(feature FeatureID) Level {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.overrideRoleID != "" {
		for i := range e.catalog {
			if e.catalog[i].ID == e.overrideRoleID {
				if l, ok := e.catalog[i].FeaturePermissions[feature]; ok {
					return l
				}
				return LevelNone
			}
		}
		// Stale or deleted override role: fail closed.
		return LevelNone
	}

	if l, ok := e.actorPerms[feature]; ok {
		return l
	}
	return LevelNone
}

// HasPermission reports whether the actor's effective level on the feature
// satisfies the required level.
func (e *Engine) HasPermission(feature FeatureID, required Level) bool {
	return Meets(e.Resolve(feature), required)
}

// ResolveBase computes the level from the actor's real grants, ignoring any
// applied override.
func (e *Engine) ResolveBase(feature FeatureID) Level {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if l, ok := e.actorPerms[feature]; ok {
		return l
	}
	return LevelNone
}

// HasBaseGrant reports whether the actor's real grant on the feature meets
// the required level, regardless of any override. Override administration
// gates on this so an impersonation can always be exited.
func (e *Engine) HasBaseGrant(feature FeatureID, required Level) bool {
	return Meets(e.ResolveBase(feature), required)
}

// Permissions returns the resolved level for every feature known to the
// current state (override role's features when an override is applied,
// actor grants otherwise).
func (e *Engine) Permissions() PermissionMap {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.overrideRoleID != "" {
		for i := range e.catalog {
			if e.catalog[i].ID == e.overrideRoleID {
				return e.catalog[i].FeaturePermissions.Clone()
			}
		}
		return PermissionMap{}
	}
	return e.actorPerms.Clone()
}

// Roles returns a snapshot of the role catalog.
func (e *Engine) Roles() []Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Role, len(e.catalog))
	copy(out, e.catalog)
	return out
}

// Override returns the applied override role id, or "" when none.
func (e *Engine) Override() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.overrideRoleID
}

// Loading reports whether any fetch is in progress.
func (e *Engine) Loading() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loading
}

// Initializing reports whether the bootstrap fetch pair is in flight.
func (e *Engine) Initializing() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.initializing
}

// Err returns the last fetch failure message, or "" after a clean fetch.
func (e *Engine) Err() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Subscribe registers a state-change listener. The returned channel
// receives a signal after every mutation; cancel releases it. Slow
// consumers never block the engine, signals are coalesced instead.
func (e *Engine) Subscribe() (<-chan struct{}, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.subID
	e.subID++
	ch := make(chan struct{}, 1)
	e.subs[id] = ch
	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		delete(e.subs, id)
	}
}

func (e *Engine) setLoading(v bool) {
	e.mu.Lock()
	e.loading = v
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) notify() {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
