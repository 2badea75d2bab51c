package grants

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vantage-dg/vantage/internal/access"
	"github.com/vantage-dg/vantage/internal/roles"
)

type stubMemberships struct {
	groups map[string][]string
	err    error
	calls  int
}

func (s *stubMemberships) GroupsFor(ctx context.Context, actorID string) ([]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.groups[actorID], nil
}

type stubRoleLister struct {
	roles []roles.Role
	err   error
	calls int
}

func (s *stubRoleLister) List(ctx context.Context) ([]roles.Role, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([]roles.Role, len(s.roles))
	copy(out, s.roles)
	return out, nil
}

func catalogFixture() []roles.Role {
	return []roles.Role{
		{
			ID:             "viewer-role-id",
			Name:           "Viewer",
			AssignedGroups: []string{"data-consumers"},
			FeaturePermissions: access.PermissionMap{
				"data-products": access.LevelReadOnly,
				"domains":       access.LevelReadOnly,
			},
		},
		{
			ID:             "steward-role-id",
			Name:           "Steward",
			AssignedGroups: []string{"data-stewards"},
			FeaturePermissions: access.PermissionMap{
				"data-products": access.LevelFull,
				"settings":      access.LevelReadWrite,
			},
		},
		{
			ID:             "admin-role-id",
			Name:           "Platform Admin",
			AssignedGroups: []string{"platform-admins"},
			FeaturePermissions: access.PermissionMap{
				"settings": access.LevelAdmin,
			},
		},
	}
}

func TestPermissionsForMergesHighestAcrossRoles(t *testing.T) {
	lister := &stubRoleLister{roles: catalogFixture()}
	svc := NewService(nil, lister, nil)

	perms, err := svc.PermissionsFor(context.Background(), "actor-1", []string{"data-consumers", "data-stewards"})
	require.NoError(t, err)

	require.Equal(t, access.LevelFull, perms["data-products"])
	require.Equal(t, access.LevelReadOnly, perms["domains"])
	require.Equal(t, access.LevelReadWrite, perms["settings"])
}

func TestPermissionsForUnmatchedGroupsIsEmpty(t *testing.T) {
	lister := &stubRoleLister{roles: catalogFixture()}
	svc := NewService(nil, lister, nil)

	perms, err := svc.PermissionsFor(context.Background(), "actor-1", []string{"marketing"})
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestPermissionsForFallsBackToDirectory(t *testing.T) {
	memberships := &stubMemberships{groups: map[string][]string{"actor-1": {"platform-admins"}}}
	lister := &stubRoleLister{roles: catalogFixture()}
	svc := NewService(memberships, lister, nil)

	perms, err := svc.PermissionsFor(context.Background(), "actor-1", nil)
	require.NoError(t, err)
	require.Equal(t, access.LevelAdmin, perms["settings"])
	require.Equal(t, 1, memberships.calls)

	// Asserted groups short-circuit the directory lookup.
	_, err = svc.PermissionsFor(context.Background(), "actor-1", []string{"data-consumers"})
	require.NoError(t, err)
	require.Equal(t, 1, memberships.calls)
}

func TestPermissionsForPropagatesDirectoryError(t *testing.T) {
	memberships := &stubMemberships{err: errors.New("directory down")}
	svc := NewService(memberships, &stubRoleLister{}, nil)

	_, err := svc.PermissionsFor(context.Background(), "actor-1", nil)
	require.Error(t, err)
}

func newTestCache(t *testing.T) *CatalogCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return NewCatalogCache(client, time.Hour)
}

func TestCatalogWarmsAndServesFromCache(t *testing.T) {
	lister := &stubRoleLister{roles: catalogFixture()}
	svc := NewService(nil, lister, newTestCache(t))

	first, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.Equal(t, 1, lister.calls)

	// Second read is served from the warmed cache.
	second, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, lister.calls)
}

func TestRebuildCatalogBypassesStaleCache(t *testing.T) {
	lister := &stubRoleLister{roles: catalogFixture()}
	cache := newTestCache(t)
	svc := NewService(nil, lister, cache)

	_, err := svc.Catalog(context.Background())
	require.NoError(t, err)

	lister.roles = lister.roles[:1]
	rebuilt, err := svc.RebuildCatalog(context.Background())
	require.NoError(t, err)
	require.Len(t, rebuilt, 1)

	// The cache now holds the rebuilt snapshot.
	cached, ok := cache.Get(context.Background())
	require.True(t, ok)
	require.Len(t, cached, 1)
}

func TestCatalogFallsThroughOnCacheMiss(t *testing.T) {
	lister := &stubRoleLister{roles: catalogFixture()}
	cache := newTestCache(t)
	svc := NewService(nil, lister, cache)

	_, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(context.Background()))

	_, err = svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, lister.calls)
}

func TestWarmerRefreshesCachedCatalog(t *testing.T) {
	lister := &stubRoleLister{roles: catalogFixture()}
	cache := newTestCache(t)
	svc := NewService(nil, lister, cache)
	warmer := NewWarmer(svc)

	warmer.RefreshCatalogs(context.Background())

	cached, ok := cache.Get(context.Background())
	require.True(t, ok)
	require.Len(t, cached, 3)
}
