package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/vantage-dg/vantage/internal/access"
	"github.com/vantage-dg/vantage/internal/shared"
)

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	List(ctx context.Context) ([]Role, error)
	Get(ctx context.Context, id string) (Role, error)
	Create(ctx context.Context, role Role) (Role, error)
	Update(ctx context.Context, role Role) (Role, error)
	Delete(ctx context.Context, id string) error
}

// CatalogNotifier is told after every successful catalog mutation so live
// permission engines and background jobs can pick up the change.
type CatalogNotifier interface {
	CatalogChanged(ctx context.Context)
}

// RoleInput carries validated fields for create/update operations.
type RoleInput struct {
	Name               string            `validate:"required,min=2,max=80"`
	Description        string            `validate:"max=500"`
	AssignedGroups     []string          `validate:"dive,required"`
	FeaturePermissions map[string]string `validate:"required,dive,required"`
}

// Service handles role administration business logic.
type Service struct {
	repo      RepositoryPort
	notifier  CatalogNotifier
	validator *validator.Validate
	collator  *collate.Collator
	logger    *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, notifier CatalogNotifier, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		notifier:  notifier,
		validator: validator.New(),
		collator:  collate.New(language.English, collate.IgnoreCase),
		logger:    logger,
	}
}

// List returns all roles with locale-aware name ordering.
func (s *Service) List(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(roles, func(i, j int) bool {
		return s.collator.CompareString(roles[i].Name, roles[j].Name) < 0
	})
	return roles, nil
}

// Get fetches a role by id.
func (s *Service) Get(ctx context.Context, id string) (Role, error) {
	return s.repo.Get(ctx, id)
}

// Create validates the input and inserts a new role.
func (s *Service) Create(ctx context.Context, input RoleInput) (Role, error) {
	role, err := s.buildRole(uuid.NewString(), input)
	if err != nil {
		return Role{}, err
	}
	created, err := s.repo.Create(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.notifyChanged(ctx)
	return created, nil
}

// Update validates the input and replaces the stored role.
func (s *Service) Update(ctx context.Context, id string, input RoleInput) (Role, error) {
	role, err := s.buildRole(id, input)
	if err != nil {
		return Role{}, err
	}
	updated, err := s.repo.Update(ctx, role)
	if err != nil {
		return Role{}, err
	}
	s.notifyChanged(ctx)
	return updated, nil
}

// Delete removes a role. A role that is currently applied as an override in
// some session is deliberately not protected: resolution fails closed on the
// dangling id until the administrator clears the override.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.notifyChanged(ctx)
	return nil
}

func (s *Service) buildRole(id string, input RoleInput) (Role, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validator.Struct(input); err != nil {
		return Role{}, fmt.Errorf("roles: %s: %w", validationDetail(err), shared.ErrValidation)
	}

	perms := make(access.PermissionMap, len(input.FeaturePermissions))
	for feature, label := range input.FeaturePermissions {
		feature = strings.TrimSpace(feature)
		if feature == "" {
			return Role{}, fmt.Errorf("roles: empty feature id: %w", shared.ErrValidation)
		}
		l := access.Level(label)
		if !l.Valid() {
			return Role{}, fmt.Errorf("roles: unknown access level %q for feature %q: %w", label, feature, shared.ErrValidation)
		}
		perms[feature] = l
	}

	groups := make([]string, 0, len(input.AssignedGroups))
	for _, g := range input.AssignedGroups {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}

	return Role{
		ID:                 id,
		Name:               input.Name,
		Description:        input.Description,
		AssignedGroups:     groups,
		FeaturePermissions: perms,
	}, nil
}

func (s *Service) notifyChanged(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	s.notifier.CatalogChanged(ctx)
}

func validationDetail(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid input"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, strings.ToLower(fe.Field()))
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}
