package grants

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository resolves group memberships from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GroupsFor returns the directory groups recorded for the actor.
func (r *Repository) GroupsFor(ctx context.Context, actorID string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT group_name FROM group_memberships WHERE actor_id = $1 ORDER BY group_name", actorID)
	if err != nil {
		return nil, fmt.Errorf("grants: memberships: %w", err)
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("grants: scan membership: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
