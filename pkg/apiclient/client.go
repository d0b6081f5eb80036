// Package apiclient is the HTTP client for the volume-manager REST API,
// used by the dittoblock CLI commands.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittoblock/pkg/volmgr"
	"github.com/marmos91/dittoblock/pkg/volmgr/api"
	"github.com/marmos91/dittoblock/pkg/volume"
)

// Client talks to a dittoblock API server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the given base URL (e.g. "http://localhost:8080")
// authenticating with the given bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response, carrying the server's problem details.
type APIError struct {
	StatusCode int
	Problem    api.Problem
}

func (e *APIError) Error() string {
	if e.Problem.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", e.Problem.Title, e.StatusCode, e.Problem.Detail)
	}
	return fmt.Sprintf("%s (%d)", http.StatusText(e.StatusCode), e.StatusCode)
}

// do performs one request and decodes a 2xx JSON body into out when
// provided. Returns the response status code alongside any error.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr.Problem)
		return resp.StatusCode, apiErr
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// CreateVolume creates a volume and returns its initial stats.
func (c *Client) CreateVolume(ctx context.Context, req api.CreateVolumeRequest) (volume.Stats, error) {
	var out volume.Stats
	_, err := c.do(ctx, http.MethodPost, "/api/v1/volumes", req, &out)
	return out, err
}

// RemoveVolume starts volume removal. accepted reports that the volume is
// still draining and the reaper completes the removal asynchronously.
func (c *Client) RemoveVolume(ctx context.Context, id uuid.UUID) (accepted bool, err error) {
	status, err := c.do(ctx, http.MethodDelete, "/api/v1/volumes/"+id.String(), nil, nil)
	if err != nil {
		return false, err
	}
	return status == http.StatusAccepted, nil
}

// GetVolume fetches one volume's stats.
func (c *Client) GetVolume(ctx context.Context, id uuid.UUID) (volume.Stats, error) {
	var out volume.Stats
	_, err := c.do(ctx, http.MethodGet, "/api/v1/volumes/"+id.String(), nil, &out)
	return out, err
}

// ListVolumes fetches all volumes.
func (c *Client) ListVolumes(ctx context.Context) ([]volume.Stats, error) {
	var out api.ListResponse
	_, err := c.do(ctx, http.MethodGet, "/api/v1/volumes", nil, &out)
	return out.Volumes, err
}

// ServiceStats fetches the service-wide snapshot.
func (c *Client) ServiceStats(ctx context.Context) (volmgr.ServiceStats, error) {
	var out volmgr.ServiceStats
	_, err := c.do(ctx, http.MethodGet, "/api/v1/stats", nil, &out)
	return out, err
}

// Health checks the unauthenticated liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}
