// Package grants computes actors' real, group-derived permissions: the
// backend half of the authorization contract the access engine consumes.
package grants

import (
	"context"

	"github.com/vantage-dg/vantage/internal/access"
	"github.com/vantage-dg/vantage/internal/roles"
)

// MembershipSource resolves the directory groups an actor belongs to.
type MembershipSource interface {
	GroupsFor(ctx context.Context, actorID string) ([]string, error)
}

// RoleLister exposes the configurable role catalog.
type RoleLister interface {
	List(ctx context.Context) ([]roles.Role, error)
}

// Service derives actor grants from group membership and the role catalog.
type Service struct {
	memberships MembershipSource
	roles       RoleLister
	cache       *CatalogCache
}

// NewService builds Service instance. The cache is optional; without it
// every catalog read goes to the repository.
func NewService(memberships MembershipSource, roleLister RoleLister, cache *CatalogCache) *Service {
	return &Service{memberships: memberships, roles: roleLister, cache: cache}
}

// PermissionsFor computes the actor's effective grants: for every role
// assigned to at least one of the actor's groups, the highest level granted
// per feature wins. Groups may optionally be supplied by the caller
// (proxy-asserted headers); directory lookup fills the gap when absent.
func (s *Service) PermissionsFor(ctx context.Context, actorID string, assertedGroups []string) (access.PermissionMap, error) {
	groups := assertedGroups
	if len(groups) == 0 && s.memberships != nil {
		resolved, err := s.memberships.GroupsFor(ctx, actorID)
		if err != nil {
			return nil, err
		}
		groups = resolved
	}

	catalog, err := s.roles.List(ctx)
	if err != nil {
		return nil, err
	}

	groupSet := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		groupSet[g] = struct{}{}
	}

	var matched []access.PermissionMap
	for _, role := range catalog {
		for _, g := range role.AssignedGroups {
			if _, ok := groupSet[g]; ok {
				matched = append(matched, role.FeaturePermissions)
				break
			}
		}
	}
	return access.MergeRoles(matched...), nil
}

// Catalog returns the full role catalog in wire form, preferring the
// warmed cache when one is configured.
func (s *Service) Catalog(ctx context.Context) ([]access.Role, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx); ok {
			return cached, nil
		}
	}
	managed, err := s.roles.List(ctx)
	if err != nil {
		return nil, err
	}
	catalog := make([]access.Role, 0, len(managed))
	for _, role := range managed {
		catalog = append(catalog, role.Catalog())
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, catalog)
	}
	return catalog, nil
}

// RebuildCatalog bypasses the cache, re-reads the catalog from the
// repository and re-warms the cached snapshot. Called after mutations.
func (s *Service) RebuildCatalog(ctx context.Context) ([]access.Role, error) {
	managed, err := s.roles.List(ctx)
	if err != nil {
		return nil, err
	}
	catalog := make([]access.Role, 0, len(managed))
	for _, role := range managed {
		catalog = append(catalog, role.Catalog())
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, catalog)
	}
	return catalog, nil
}
