package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// PermissionClient answers whether a named permission currently holds for an edge.
type PermissionClient interface {
	Allowed(ctx context.Context, permission string, edge Edge) (bool, error)
}

// HTTPPermissionClient calls a remote permission service.
type HTTPPermissionClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPermissionClient returns a client with a 10-second timeout.
func NewHTTPPermissionClient(baseURL string) *HTTPPermissionClient {
	return &HTTPPermissionClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// permissionResponse is the relevant subset of the permission service response.
type permissionResponse struct {
	Allowed bool `json:"allowed"`
}

// Allowed performs GET {base}/permissions/{permission}?edge={id}&source=..&target=..
func (c *HTTPPermissionClient) Allowed(ctx context.Context, permission string, edge Edge) (bool, error) {
	q := url.Values{}
	q.Set("edge", edge.ID)
	q.Set("source", edge.Source)
	q.Set("target", edge.Target)
	endpoint := fmt.Sprintf("%s/permissions/%s?%s", c.baseURL, url.PathEscape(permission), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("permission request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("permission service returned status %d", resp.StatusCode)
	}

	var result permissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("decode permission response: %w", err)
	}
	return result.Allowed, nil
}
