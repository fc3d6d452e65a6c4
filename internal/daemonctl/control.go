// Package daemonctl is the HTTP client the CLI uses to talk to a running
// parley daemon's API server.
package daemonctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"parley/internal/api"
	"parley/internal/config"
)

// Client issues requests against the daemon API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client from the configured bind address and API token.
func New(cfg *config.Config) (*Client, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, fmt.Errorf("api_bind is not configured; the daemon has no API address")
	}
	// A wildcard bind is dialed over loopback.
	if host, port, ok := strings.Cut(bind, ":"); ok && (host == "" || host == "0.0.0.0" || host == "::") {
		bind = "127.0.0.1:" + port
	}
	return &Client{
		baseURL: "http://" + bind,
		token:   strings.TrimSpace(cfg.Paths.APIToken),
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var status api.DaemonStatus
	if err := c.get(ctx, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Health fetches database diagnostics as raw JSON for display.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var health map[string]any
	if err := c.get(ctx, "/api/health", nil, &health); err != nil {
		return nil, err
	}
	return health, nil
}

// QueueList fetches queue tasks, optionally filtered by status.
func (c *Client) QueueList(ctx context.Context, status string, limit int) ([]api.TaskSummary, error) {
	query := url.Values{}
	if strings.TrimSpace(status) != "" {
		query.Set("status", status)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var list api.QueueListResponse
	if err := c.get(ctx, "/api/queue", query, &list); err != nil {
		return nil, err
	}
	return list.Tasks, nil
}

// QueueRetry requeues dead tasks and reports how many were reset.
func (c *Client) QueueRetry(ctx context.Context) (int, error) {
	var result map[string]int
	if err := c.post(ctx, "/api/queue/retry", nil, &result); err != nil {
		return 0, err
	}
	return result["retried"], nil
}

// QueueClear removes done tasks older than the given age and reports the count.
func (c *Client) QueueClear(ctx context.Context, olderThan time.Duration) (int, error) {
	query := url.Values{}
	query.Set("older_than_seconds", strconv.Itoa(int(olderThan/time.Second)))
	var result map[string]int
	if err := c.post(ctx, "/api/queue/clear", query, &result); err != nil {
		return 0, err
	}
	return result["cleared"], nil
}

// Sweep triggers an immediate retention sweep and returns the task id.
func (c *Client) Sweep(ctx context.Context) (string, error) {
	var result map[string]string
	if err := c.post(ctx, "/api/sweep", nil, &result); err != nil {
		return "", err
	}
	return result["task_id"], nil
}

// Conversation fetches the pull-based view of one conversation.
func (c *Client) Conversation(ctx context.Context, id string) (*api.ConversationView, error) {
	var view api.ConversationView
	if err := c.get(ctx, "/api/conversations/"+url.PathEscape(id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, out)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodPost, path, query, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload api.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, payload.Error)
	}
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		trimmed = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, trimmed)
}
