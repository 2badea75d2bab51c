package roles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-dg/vantage/internal/access"
	"github.com/vantage-dg/vantage/internal/platform/db"
	"github.com/vantage-dg/vantage/internal/shared"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for configurable roles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = "id, name, description, assigned_groups, feature_permissions, created_at, updated_at"

// List returns all roles ordered by name.
func (r *Repository) List(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+roleColumns+" FROM roles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// Get fetches a role by id.
func (r *Repository) Get(ctx context.Context, id string) (Role, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+roleColumns+" FROM roles WHERE id = $1", id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// Create inserts a new role and records the catalog change event in the
// same transaction.
func (r *Repository) Create(ctx context.Context, role Role) (Role, error) {
	perms, err := json.Marshal(role.FeaturePermissions)
	if err != nil {
		return Role{}, fmt.Errorf("roles: encode permissions: %w", err)
	}

	var created Role
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO roles (id, name, description, assigned_groups, feature_permissions)
			 VALUES ($1, $2, $3, $4, $5)
			 RETURNING `+roleColumns,
			role.ID, role.Name, role.Description, role.AssignedGroups, perms)
		created, err = scanRole(row)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			"INSERT INTO role_events (role_id, action) VALUES ($1, 'created')", created.ID)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("roles: name %q: %w", role.Name, shared.ErrDuplicate)
		}
		return Role{}, fmt.Errorf("roles: create: %w", err)
	}
	return created, nil
}

// Update replaces an existing role wholesale.
func (r *Repository) Update(ctx context.Context, role Role) (Role, error) {
	perms, err := json.Marshal(role.FeaturePermissions)
	if err != nil {
		return Role{}, fmt.Errorf("roles: encode permissions: %w", err)
	}

	var updated Role
	err = db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`UPDATE roles
			 SET name = $2, description = $3, assigned_groups = $4, feature_permissions = $5, updated_at = now()
			 WHERE id = $1
			 RETURNING `+roleColumns,
			role.ID, role.Name, role.Description, role.AssignedGroups, perms)
		updated, err = scanRole(row)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			"INSERT INTO role_events (role_id, action) VALUES ($1, 'updated')", updated.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		if isUniqueViolation(err) {
			return Role{}, fmt.Errorf("roles: name %q: %w", role.Name, shared.ErrDuplicate)
		}
		return Role{}, fmt.Errorf("roles: update: %w", err)
	}
	return updated, nil
}

// Delete removes a role by id. Returns shared.ErrNotFound when nothing was
// deleted.
func (r *Repository) Delete(ctx context.Context, id string) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM roles WHERE id = $1", id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		_, err = tx.Exec(ctx,
			"INSERT INTO role_events (role_id, action) VALUES ($1, 'deleted')", id)
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotFound
		}
		return fmt.Errorf("roles: delete: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (Role, error) {
	var (
		role Role
		raw  []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.AssignedGroups, &raw, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, err
	}
	role.FeaturePermissions = make(access.PermissionMap)
	if len(raw) > 0 {
		var decoded map[string]string
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return Role{}, fmt.Errorf("roles: decode permissions: %w", err)
		}
		for feature, label := range decoded {
			role.FeaturePermissions[feature] = access.ParseLevel(label)
		}
	}
	return role, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
