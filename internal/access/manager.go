package access

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Manager owns one Engine per actor. It is the dependency-injection
// boundary for the rest of the application: consumers reach resolution
// only through the engine operations, never through raw state.
type Manager struct {
	perms  PermissionSource
	roles  RoleCatalogSource
	store  OverrideStore
	logger *slog.Logger

	mu      sync.Mutex
	engines map[string]*Engine

	initGroup singleflight.Group
}

// NewManager constructs a Manager.
func NewManager(perms PermissionSource, roles RoleCatalogSource, store OverrideStore, logger *slog.Logger) *Manager {
	return &Manager{
		perms:   perms,
		roles:   roles,
		store:   store,
		logger:  logger,
		engines: make(map[string]*Engine),
	}
}

// For returns the actor's engine, creating it on first use.
func (m *Manager) For(actorID string) *Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if eng, ok := m.engines[actorID]; ok {
		return eng
	}
	eng := NewEngine(actorID, m.perms, m.roles, m.store, m.logger)
	m.engines[actorID] = eng
	return eng
}

// Ready returns the actor's engine with its bootstrap completed. Concurrent
// callers for the same actor share a single rehydrate/initialize pass; all
// of them observe the same result. Initialization failure still returns the
// engine, which fails closed until a refresh succeeds.
func (m *Manager) Ready(ctx context.Context, actorID string) (*Engine, error) {
	eng := m.For(actorID)
	_, err, _ := m.initGroup.Do(actorID, func() (interface{}, error) {
		_ = eng.Rehydrate(ctx)
		return nil, eng.Initialize(ctx)
	})
	return eng, err
}

// Drop discards the actor's engine, e.g. at logout. Results of any fetch
// still in flight land in the discarded engine and are never observed.
func (m *Manager) Drop(actorID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.engines, actorID)
}

// RefreshCatalogs refetches the role catalog and the actor grants on every
// live engine. Grants are derived from the same catalog, so a mutation that
// downgrades a group's level must reach both snapshots or the revoked level
// keeps being served.
func (m *Manager) RefreshCatalogs(ctx context.Context) {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, eng := range m.engines {
		engines = append(engines, eng)
	}
	m.mu.Unlock()

	for _, eng := range engines {
		if err := eng.RefreshRoles(ctx); err != nil && m.logger != nil {
			m.logger.Warn("access manager refresh catalog", slog.Any("error", err))
		}
		if err := eng.RefreshPermissions(ctx); err != nil && m.logger != nil {
			m.logger.Warn("access manager refresh grants", slog.Any("error", err))
		}
	}
}
