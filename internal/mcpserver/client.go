package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Atelier API.
type Config struct {
	APIURL      string // Base URL, e.g. "http://localhost:8080"
	AdminSecret string // Shared admin secret for the X-Admin-Secret header
	AdminID     string // Identity recorded as the resolver, e.g. "admin_ops"
}

// AtelierClient is a pure HTTP client for the Atelier dispute API.
type AtelierClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewAtelierClient creates a new client for the Atelier API.
func NewAtelierClient(cfg Config) *AtelierClient {
	return &AtelierClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *AtelierClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("X-Admin-Secret", c.cfg.AdminSecret)
	req.Header.Set("X-User-ID", c.cfg.AdminID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetDispute fetches a single dispute by ID.
func (c *AtelierClient) GetDispute(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/admin/disputes/"+id, nil, nil)
}

// ListDisputes lists disputes with optional filters.
func (c *AtelierClient) ListDisputes(ctx context.Context, stage, status, party, cursor string) (json.RawMessage, error) {
	q := url.Values{}
	if stage != "" {
		q.Set("stage", stage)
	}
	if status != "" {
		q.Set("status", status)
	}
	if party != "" {
		q.Set("party", party)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/admin/disputes", q, nil)
}

// ResolveRequest is the resolution payload sent to the API.
type ResolveRequest struct {
	Outcome            string `json:"outcome"`
	Reason             string `json:"reason"`
	PartialRefundCents int64  `json:"partialRefundCents,omitempty"`
	IssueStrike        bool   `json:"issueStrike"`
	AdminNotes         string `json:"adminNotes,omitempty"`
}

// ResolveDispute issues a final resolution for an escalated dispute.
func (c *AtelierClient) ResolveDispute(ctx context.Context, id string, req ResolveRequest) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/admin/disputes/"+id+"/resolve", nil, req)
}

// DisputeActivity fetches the activity trail for a dispute.
func (c *AtelierClient) DisputeActivity(ctx context.Context, id string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/admin/disputes/"+id+"/activity", q, nil)
}

// GetStats returns open dispute counts and escrow exposure.
func (c *AtelierClient) GetStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/admin/disputes/stats", nil, nil)
}
