package access

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ActorHeader carries the actor identity on authorization backend calls.
const ActorHeader = "X-Vantage-Actor"

// PermissionSource fetches an actor's real, group-derived grants.
type PermissionSource interface {
	FetchPermissions(ctx context.Context, actorID string) (PermissionMap, error)
}

// RoleCatalogSource fetches the full list of configurable roles.
type RoleCatalogSource interface {
	FetchRoles(ctx context.Context) ([]Role, error)
}

// HTTPAuthzClient talks to the authorization backend over its JSON API.
// It implements both PermissionSource and RoleCatalogSource.
type HTTPAuthzClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPAuthzClient constructs a client against the given base URL.
func NewHTTPAuthzClient(baseURL string) *HTTPAuthzClient {
	return &HTTPAuthzClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// FetchPermissions retrieves the actor's grants from GET /permissions.
func (c *HTTPAuthzClient) FetchPermissions(ctx context.Context, actorID string) (PermissionMap, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/permissions", c.baseURL), nil)
	if err != nil {
		return nil, fmt.Errorf("access: build permissions request: %w", err)
	}
	req.Header.Set(ActorHeader, actorID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("access: fetch permissions: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("access: permissions endpoint returned status %d", resp.StatusCode)
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("access: decode permissions: %w", err)
	}
	perms := make(PermissionMap, len(raw))
	for feature, label := range raw {
		perms[feature] = ParseLevel(label)
	}
	return perms, nil
}

// FetchRoles retrieves the role catalog from GET /roles.
func (c *HTTPAuthzClient) FetchRoles(ctx context.Context) ([]Role, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/roles", c.baseURL), nil)
	if err != nil {
		return nil, fmt.Errorf("access: build roles request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("access: fetch roles: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("access: roles endpoint returned status %d", resp.StatusCode)
	}

	var roles []Role
	if err := json.NewDecoder(resp.Body).Decode(&roles); err != nil {
		return nil, fmt.Errorf("access: decode roles: %w", err)
	}
	for i := range roles {
		normalized := make(PermissionMap, len(roles[i].FeaturePermissions))
		for feature, l := range roles[i].FeaturePermissions {
			normalized[feature] = ParseLevel(string(l))
		}
		roles[i].FeaturePermissions = normalized
	}
	return roles, nil
}
