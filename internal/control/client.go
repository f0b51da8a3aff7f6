package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ResponseAlways is the approval response that grants a permission for the
// remainder of the session.
const ResponseAlways = "always"

// Client talks to the agent control channel over loopback HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a control-channel client for the given base URL
// (e.g., "http://127.0.0.1:4096").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Health checks whether the control channel is accepting requests.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodGet, "/health", nil, &out)
}

// OpenSession creates a new agent session and returns its identity.
func (c *Client) OpenSession(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/session", struct{}{}, &out); err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("open session: agent returned empty session id")
	}
	return out.ID, nil
}

// SendMessage submits a user message to a session. The agent streams the
// response over the event feed; this call only confirms acceptance.
func (c *Client) SendMessage(ctx context.Context, sessionID, content string) error {
	body := struct {
		Content string `json:"content"`
	}{Content: content}
	path := fmt.Sprintf("/session/%s/message", url.PathEscape(sessionID))
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("send message to %s: %w", sessionID, err)
	}
	return nil
}

// ApprovePermission answers a pending permission request.
func (c *Client) ApprovePermission(ctx context.Context, sessionID, permissionID, response string) error {
	body := struct {
		Response string `json:"response"`
	}{Response: response}
	path := fmt.Sprintf("/session/%s/permission/%s", url.PathEscape(sessionID), url.PathEscape(permissionID))
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("approve permission %s on %s: %w", permissionID, sessionID, err)
	}
	return nil
}

// do issues one HTTP request with a correlation id and decodes the JSON
// response into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("agent returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
