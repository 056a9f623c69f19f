package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/marcus/tally/internal/models"
)

// Client is an HTTP client for the REST data service.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New creates a new data service client.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

var _ Service = (*Client)(nil)

// HealthResponse is the response from GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

// HealthCheck hits the /healthz endpoint to verify server reachability.
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/healthz", nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// User is the owner an API key belongs to.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CurrentUser asks the service who the client's API key belongs to.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/auth/v1/user", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Select lists the caller's rows of table.
func (c *Client) Select(ctx context.Context, table models.Table, ownerID string) ([]models.Row, error) {
	params := url.Values{}
	params.Set("user_id", "eq."+ownerID)
	var rows []models.Row
	if err := c.do(ctx, http.MethodGet, tablePath(table)+"?"+params.Encode(), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Insert creates a row and returns the stored representation.
func (c *Client) Insert(ctx context.Context, table models.Table, row models.Row) (models.Row, error) {
	var inserted models.Row
	if err := c.do(ctx, http.MethodPost, tablePath(table), row, &inserted); err != nil {
		return nil, err
	}
	if inserted.ID() == "" {
		return nil, fmt.Errorf("insert %s: response has no id: %w", table, ErrRejected)
	}
	return inserted, nil
}

// Update patches the row with the given id.
func (c *Client) Update(ctx context.Context, table models.Table, id string, row models.Row) error {
	return c.do(ctx, http.MethodPatch, tablePath(table)+"?"+idFilter(id), row, nil)
}

// Delete removes the row with the given id.
func (c *Client) Delete(ctx context.Context, table models.Table, id string) error {
	return c.do(ctx, http.MethodDelete, tablePath(table)+"?"+idFilter(id), nil, nil)
}

func tablePath(table models.Table) string {
	return "/rest/v1/" + string(table)
}

func idFilter(id string) string {
	params := url.Values{}
	params.Set("id", "eq."+id)
	return params.Encode()
}

// --- HTTP helpers ---

// apiError is the standard error body from the server.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do executes an authenticated HTTP request.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	return c.doRequest(ctx, method, path, body, result, true)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any, auth bool) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Prefer", "return=representation")
	if auth && c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, path, ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		json.Unmarshal(respBody, &apiErr)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Error.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Error.Message)
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
		}
		if apiErr.Error.Code != "" {
			return &RejectedError{Status: resp.StatusCode, Code: apiErr.Error.Code, Message: apiErr.Error.Message}
		}
		return &RejectedError{Status: resp.StatusCode, Code: "http_error", Message: string(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
