package roles

import (
	"time"

	"github.com/vantage-dg/vantage/internal/access"
)

// Role is a configurable role as managed by administrators: a named,
// complete feature-permission map plus the directory groups it applies to.
type Role struct {
	ID                 string
	Name               string
	Description        string
	AssignedGroups     []string
	FeaturePermissions access.PermissionMap
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Catalog converts a managed role to its wire/catalog form.
func (r Role) Catalog() access.Role {
	return access.Role{
		ID:                 r.ID,
		Name:               r.Name,
		Description:        r.Description,
		AssignedGroups:     r.AssignedGroups,
		FeaturePermissions: r.FeaturePermissions,
	}
}
