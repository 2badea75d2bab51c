package access

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubSource struct {
	mu        sync.Mutex
	perms     PermissionMap
	roles     []Role
	permsErr  error
	rolesErr  error
	permCalls atomic.Int64
	roleCalls atomic.Int64
	gate      chan struct{}
}

func (s *stubSource) FetchPermissions(ctx context.Context, actorID string) (PermissionMap, error) {
	s.permCalls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.permsErr != nil {
		return nil, s.permsErr
	}
	return s.perms.Clone(), nil
}

func (s *stubSource) FetchRoles(ctx context.Context) ([]Role, error) {
	s.roleCalls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rolesErr != nil {
		return nil, s.rolesErr
	}
	out := make([]Role, len(s.roles))
	copy(out, s.roles)
	return out, nil
}

func (s *stubSource) set(perms PermissionMap, roles []Role, permsErr, rolesErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms = perms
	s.roles = roles
	s.permsErr = permsErr
	s.rolesErr = rolesErr
}

func viewerCatalog() []Role {
	return []Role{
		{
			ID:   "viewer-role-id",
			Name: "Viewer",
			FeaturePermissions: PermissionMap{
				"data-products": LevelReadOnly,
			},
		},
		{
			ID:   "steward-role-id",
			Name: "Steward",
			FeaturePermissions: PermissionMap{
				"data-products": LevelFull,
				"settings":      LevelAdmin,
			},
		},
	}
}

func newTestEngine(src *stubSource) *Engine {
	return NewEngine("actor-1", src, src, nil, nil)
}

func TestInitializeLoadsBothDatasets(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelReadWrite}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)

	require.NoError(t, eng.Initialize(context.Background()))
	require.Equal(t, LevelReadWrite, eng.Resolve("data-products"))
	require.Len(t, eng.Roles(), 2)
	require.Empty(t, eng.Err())
	require.False(t, eng.Loading())
	require.False(t, eng.Initializing())
}

func TestInitializeIsIdempotentOnceLoaded(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelReadWrite}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)

	require.NoError(t, eng.Initialize(context.Background()))
	require.NoError(t, eng.Initialize(context.Background()))
	require.NoError(t, eng.Initialize(context.Background()))

	require.Equal(t, int64(1), src.permCalls.Load())
	require.Equal(t, int64(1), src.roleCalls.Load())
}

func TestConcurrentInitializeCollapsesToOneFetchPair(t *testing.T) {
	src := &stubSource{gate: make(chan struct{})}
	src.set(PermissionMap{"data-products": LevelReadOnly}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)

	const callers = 16
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_ = eng.Initialize(context.Background())
		}()
	}

	// Wait for the first caller to take ownership, then wait for the rest
	// to bail out on the initializing guard before releasing the fetches.
	require.Eventually(t, eng.Initializing, time.Second, time.Millisecond)
	close(src.gate)
	wg.Wait()

	require.Equal(t, int64(1), src.permCalls.Load())
	require.Equal(t, int64(1), src.roleCalls.Load())
	require.False(t, eng.Initializing())
}

func TestInitializeFailureReleasesGuardFlags(t *testing.T) {
	src := &stubSource{}
	src.set(nil, nil, errors.New("permissions backend down"), errors.New("roles backend down"))
	eng := newTestEngine(src)

	require.Error(t, eng.Initialize(context.Background()))
	require.False(t, eng.Loading())
	require.False(t, eng.Initializing())
	require.NotEmpty(t, eng.Err())

	// Empty data fails closed.
	require.Equal(t, LevelNone, eng.Resolve("data-products"))
	require.False(t, eng.HasPermission("data-products", LevelReadOnly))
}

func TestInitializeKeepsPartialDataWhenOneFetchFails(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelReadWrite}, nil, nil, errors.New("roles backend down"))
	eng := newTestEngine(src)

	require.Error(t, eng.Initialize(context.Background()))

	// Actor grants still resolve; the catalog stays empty.
	require.Equal(t, LevelReadWrite, eng.Resolve("data-products"))
	require.Empty(t, eng.Roles())
	require.NotEmpty(t, eng.Err())

	// An override against the empty catalog denies everything.
	eng.SetOverride(context.Background(), "viewer-role-id")
	require.Equal(t, LevelNone, eng.Resolve("data-products"))
}

func TestRefreshPermissionsAlwaysExecutes(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelReadOnly}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)
	require.NoError(t, eng.Initialize(context.Background()))

	src.set(PermissionMap{"data-products": LevelFull}, viewerCatalog(), nil, nil)
	require.NoError(t, eng.RefreshPermissions(context.Background()))
	require.Equal(t, LevelFull, eng.Resolve("data-products"))
	require.Equal(t, int64(2), src.permCalls.Load())
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelReadWrite}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)
	require.NoError(t, eng.Initialize(context.Background()))

	src.set(nil, nil, errors.New("backend down"), errors.New("backend down"))
	require.Error(t, eng.RefreshPermissions(context.Background()))
	require.Error(t, eng.RefreshRoles(context.Background()))

	// Stale-but-present beats empty.
	require.Equal(t, LevelReadWrite, eng.Resolve("data-products"))
	require.Len(t, eng.Roles(), 2)
	require.NotEmpty(t, eng.Err())
	require.False(t, eng.Loading())
}

func TestResolveIsPure(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelFiltered}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)
	require.NoError(t, eng.Initialize(context.Background()))

	first := eng.Resolve("data-products")
	for i := 0; i < 10; i++ {
		require.Equal(t, first, eng.Resolve("data-products"))
	}
}

func TestOverrideSubstitutesActorGrantsEntirely(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelReadWrite}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)
	require.NoError(t, eng.Initialize(context.Background()))

	require.True(t, eng.HasPermission("data-products", LevelReadWrite))

	eng.SetOverride(context.Background(), "viewer-role-id")
	require.False(t, eng.HasPermission("data-products", LevelReadWrite))
	require.True(t, eng.HasPermission("data-products", LevelReadOnly))

	// Features absent from the override role resolve to None even when the
	// actor's real grants would allow them.
	require.Equal(t, LevelNone, eng.Resolve("settings"))
}

func TestDanglingOverrideDeniesEveryFeature(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelAdmin, "settings": LevelAdmin}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)
	require.NoError(t, eng.Initialize(context.Background()))

	eng.SetOverride(context.Background(), "deleted-role-id")
	for _, feature := range []string{"data-products", "settings", "unknown"} {
		require.Equal(t, LevelNone, eng.Resolve(feature))
		require.False(t, eng.HasPermission(feature, LevelReadOnly))
	}
}

func TestClearingOverrideRestoresActorGrants(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelReadWrite}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)
	require.NoError(t, eng.Initialize(context.Background()))

	eng.SetOverride(context.Background(), "viewer-role-id")
	require.Equal(t, LevelReadOnly, eng.Resolve("data-products"))

	eng.SetOverride(context.Background(), "")
	require.Equal(t, LevelReadWrite, eng.Resolve("data-products"))
	require.Equal(t, LevelNone, eng.Resolve("never-granted"))
}

func TestUnknownFeatureResolvesToNone(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelFull}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)
	require.NoError(t, eng.Initialize(context.Background()))

	require.Equal(t, LevelNone, eng.Resolve("no-such-feature"))
}

func TestSubscribeSignalsOnMutation(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelReadOnly}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)

	ch, cancel := eng.Subscribe()
	defer cancel()

	require.NoError(t, eng.Initialize(context.Background()))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a state-change signal after initialize")
	}

	eng.SetOverride(context.Background(), "viewer-role-id")
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a state-change signal after override change")
	}
}

func TestPermissionsSnapshotFollowsOverride(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"data-products": LevelReadWrite, "domains": LevelFull}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)
	require.NoError(t, eng.Initialize(context.Background()))

	require.Equal(t, LevelFull, HighestLevel(eng.Permissions()))

	eng.SetOverride(context.Background(), "viewer-role-id")
	snapshot := eng.Permissions()
	require.Equal(t, PermissionMap{"data-products": LevelReadOnly}, snapshot)

	eng.SetOverride(context.Background(), "deleted-role-id")
	require.Empty(t, eng.Permissions())
}

func TestBaseGrantIgnoresOverride(t *testing.T) {
	src := &stubSource{}
	src.set(PermissionMap{"settings": LevelAdmin, "data-products": LevelReadWrite}, viewerCatalog(), nil, nil)
	eng := newTestEngine(src)
	require.NoError(t, eng.Initialize(context.Background()))

	eng.SetOverride(context.Background(), "viewer-role-id")

	// The resolved view reflects the impersonated role; the base view keeps
	// answering from the actor's real grants.
	require.False(t, eng.HasPermission("settings", LevelAdmin))
	require.True(t, eng.HasBaseGrant("settings", LevelAdmin))
	require.Equal(t, LevelNone, eng.Resolve("settings"))
	require.Equal(t, LevelAdmin, eng.ResolveBase("settings"))

	// Same under a dangling override.
	eng.SetOverride(context.Background(), "deleted-role-id")
	require.True(t, eng.HasBaseGrant("settings", LevelAdmin))
	require.False(t, eng.HasBaseGrant("never-granted", LevelReadOnly))
}
