package roles

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-dg/vantage/internal/access"
	"github.com/vantage-dg/vantage/internal/shared"
)

type stubRepo struct {
	roles   map[string]Role
	listErr error
}

func newStubRepo(roles ...Role) *stubRepo {
	r := &stubRepo{roles: make(map[string]Role)}
	for _, role := range roles {
		r.roles[role.ID] = role
	}
	return r
}

func (r *stubRepo) List(ctx context.Context) ([]Role, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *stubRepo) Get(ctx context.Context, id string) (Role, error) {
	role, ok := r.roles[id]
	if !ok {
		return Role{}, shared.ErrNotFound
	}
	return role, nil
}

func (r *stubRepo) Create(ctx context.Context, role Role) (Role, error) {
	for _, existing := range r.roles {
		if existing.Name == role.Name {
			return Role{}, shared.ErrDuplicate
		}
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *stubRepo) Update(ctx context.Context, role Role) (Role, error) {
	if _, ok := r.roles[role.ID]; !ok {
		return Role{}, shared.ErrNotFound
	}
	r.roles[role.ID] = role
	return role, nil
}

func (r *stubRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.roles[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.roles, id)
	return nil
}

type countingNotifier struct {
	calls atomic.Int64
}

func (n *countingNotifier) CatalogChanged(ctx context.Context) {
	n.calls.Add(1)
}

func validInput() RoleInput {
	return RoleInput{
		Name:           "Viewer",
		Description:    "Read-only access to the catalog",
		AssignedGroups: []string{"data-consumers"},
		FeaturePermissions: map[string]string{
			"data-products": "Read-only",
		},
	}
}

func TestCreateRoleValidatesAndNotifies(t *testing.T) {
	repo := newStubRepo()
	notifier := &countingNotifier{}
	svc := NewService(repo, notifier, slog.Default())

	created, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "Viewer", created.Name)
	require.Equal(t, access.LevelReadOnly, created.FeaturePermissions["data-products"])
	require.Equal(t, int64(1), notifier.calls.Load())
}

func TestCreateRoleRejectsShortName(t *testing.T) {
	svc := NewService(newStubRepo(), nil, slog.Default())

	input := validInput()
	input.Name = "V"
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "name")
}

func TestCreateRoleRejectsUnknownLevel(t *testing.T) {
	svc := NewService(newStubRepo(), nil, slog.Default())

	input := validInput()
	input.FeaturePermissions["data-products"] = "Superuser"
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "Superuser")
}

func TestCreateRoleRejectsMissingPermissions(t *testing.T) {
	svc := NewService(newStubRepo(), nil, slog.Default())

	input := validInput()
	input.FeaturePermissions = nil
	_, err := svc.Create(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateDuplicateNamePropagates(t *testing.T) {
	repo := newStubRepo()
	notifier := &countingNotifier{}
	svc := NewService(repo, notifier, slog.Default())

	_, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), validInput())
	require.ErrorIs(t, err, shared.ErrDuplicate)
	require.Equal(t, int64(1), notifier.calls.Load())
}

func TestUpdateMissingRoleDoesNotNotify(t *testing.T) {
	notifier := &countingNotifier{}
	svc := NewService(newStubRepo(), notifier, slog.Default())

	_, err := svc.Update(context.Background(), "absent-id", validInput())
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.Equal(t, int64(0), notifier.calls.Load())
}

func TestDeleteNotifiesOnSuccessOnly(t *testing.T) {
	repo := newStubRepo(Role{ID: "role-1", Name: "Viewer"})
	notifier := &countingNotifier{}
	svc := NewService(repo, notifier, slog.Default())

	require.NoError(t, svc.Delete(context.Background(), "role-1"))
	require.Equal(t, int64(1), notifier.calls.Load())

	require.ErrorIs(t, svc.Delete(context.Background(), "role-1"), shared.ErrNotFound)
	require.Equal(t, int64(1), notifier.calls.Load())
}

func TestListSortsNamesCaseInsensitively(t *testing.T) {
	repo := newStubRepo(
		Role{ID: "1", Name: "steward"},
		Role{ID: "2", Name: "Admin"},
		Role{ID: "3", Name: "curator"},
		Role{ID: "4", Name: "Viewer"},
	)
	svc := NewService(repo, nil, slog.Default())

	roles, err := svc.List(context.Background())
	require.NoError(t, err)

	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	require.Equal(t, []string{"Admin", "curator", "steward", "Viewer"}, names)
}

func TestListPropagatesRepositoryError(t *testing.T) {
	repo := newStubRepo()
	repo.listErr = errors.New("connection refused")
	svc := NewService(repo, nil, slog.Default())

	_, err := svc.List(context.Background())
	require.Error(t, err)
}

func TestBuildRoleTrimsGroupsAndText(t *testing.T) {
	svc := NewService(newStubRepo(), nil, slog.Default())

	input := validInput()
	input.Name = "  Viewer  "
	input.AssignedGroups = []string{" data-consumers ", "governance"}
	created, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "Viewer", created.Name)
	require.Equal(t, []string{"data-consumers", "governance"}, created.AssignedGroups)
}
