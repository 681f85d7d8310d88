// Package client is the REST/SSE client for the beacon API, used by the CLI
// and by the reconnecting subscriber.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/copperline/beacon/internal/model"
	"github.com/copperline/beacon/internal/server"
)

// Client targets one beacon server. AdminToken authorizes the write/admin
// surfaces; the delivery surfaces take per-site keys on each call.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// New creates a client targeting the given base URL
// (e.g. "http://localhost:8080").
func New(baseURL, adminToken string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		httpClient: &http.Client{},
	}
}

// BaseURL returns the configured server URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Broadcast emits a content mutation event.
func (c *Client) Broadcast(ctx context.Context, req *server.BroadcastRequest) (*model.Event, error) {
	var event model.Event
	if err := c.doJSON(ctx, http.MethodPost, "/v1/broadcast", c.adminToken, req, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// CreateSite registers a tenant.
func (c *Client) CreateSite(ctx context.Context, site *model.Site) (*model.Site, error) {
	var created model.Site
	if err := c.doJSON(ctx, http.MethodPost, "/v1/sites", c.adminToken, site, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListSites returns all registered tenants.
func (c *Client) ListSites(ctx context.Context) ([]*model.Site, error) {
	var resp struct {
		Sites []*model.Site `json:"sites"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/sites", c.adminToken, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sites, nil
}

// PollResponse is the poll snapshot surface's payload.
type PollResponse struct {
	Items     []*model.SnapshotItem `json:"items"`
	Timestamp time.Time             `json:"timestamp"`
}

// Poll fetches the site's current snapshot of item fingerprints.
func (c *Client) Poll(ctx context.Context, siteID, apiKey string) (*PollResponse, error) {
	path := "/v1/poll?site_id=" + url.QueryEscape(siteID)
	var resp PollResponse
	if err := c.doJSON(ctx, http.MethodGet, path, apiKey, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Events fetches records newer than since, most-recent-first.
func (c *Client) Events(ctx context.Context, siteID, apiKey string, since time.Time, limit int) ([]*model.Event, error) {
	q := url.Values{}
	q.Set("site_id", siteID)
	if !since.IsZero() {
		q.Set("since", strconv.FormatInt(since.UnixNano(), 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Events []*model.Event `json:"events"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/events?"+q.Encode(), apiKey, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// CleanupResponse is the cleanup endpoint's payload.
type CleanupResponse struct {
	Success      bool `json:"success"`
	RemovedCount int  `json:"removed_count"`
}

// Cleanup triggers an eviction pass on the server.
func (c *Client) Cleanup(ctx context.Context) (*CleanupResponse, error) {
	var resp CleanupResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/cleanup", c.adminToken, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// apiError is a non-2xx response from the server.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status of err if it came from the server,
// or 0 otherwise.
func StatusCode(err error) int {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

// doJSON performs an HTTP request with an optional JSON body and decodes the
// JSON response into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &errResp)
		if errResp.Error == "" {
			errResp.Error = strings.TrimSpace(string(data))
		}
		return &apiError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
