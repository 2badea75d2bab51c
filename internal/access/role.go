// Package access implements feature-permission resolution for the Vantage
// catalog: a totally ordered access-level model, per-actor permission
// snapshots, configurable roles, and a session-scoped engine that resolves
// the effective level for every gated feature.
package access

// FeatureID identifies a gated capability area, e.g. "settings" or
// "data-products". Ids are opaque at this layer; unknown ids resolve to
// LevelNone.
type FeatureID = string

// PermissionMap maps features to access levels. Snapshots are always
// replaced wholesale, never merged field by field.
type PermissionMap map[FeatureID]Level

// Role is a named, complete permission map. Roles serve both as backend
// grant templates (via AssignedGroups) and as session override targets.
type Role struct {
	ID                 string        `json:"id"`
	Name               string        `json:"name"`
	Description        string        `json:"description,omitempty"`
	AssignedGroups     []string      `json:"assignedGroups"`
	FeaturePermissions PermissionMap `json:"featurePermissions"`
}

// Clone returns an independent copy of the map.
func (m PermissionMap) Clone() PermissionMap {
	if m == nil {
		return nil
	}
	out := make(PermissionMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// HighestLevel returns the maximum level present in the map. The scan keeps
// the first maximum seen and overwrites it on any strictly greater level, so
// the result does not depend on map iteration order. An empty map yields
// LevelNone.
func HighestLevel(m PermissionMap) Level {
	highest := LevelNone
	for _, l := range m {
		if Compare(l, highest) > 0 {
			highest = l
		}
	}
	return highest
}

// MergeRoles combines permission maps by taking the highest level granted
// for each feature across all inputs.
func MergeRoles(maps ...PermissionMap) PermissionMap {
	merged := make(PermissionMap)
	for _, m := range maps {
		for feature, l := range m {
			if current, ok := merged[feature]; !ok || Compare(l, current) > 0 {
				merged[feature] = l
			}
		}
	}
	return merged
}
