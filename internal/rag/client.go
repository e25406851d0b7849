package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout is the per-request timeout applied to every backend call.
const DefaultTimeout = 30 * time.Second

// Client wraps the RAG backend's HTTP API. Every call is a single probe:
// there is no retry or backoff, a failed request is the verdict for that
// invocation.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client with the default request timeout.
func NewClient(baseURL string, logger *zap.Logger) *Client {
	return NewClientWithTimeout(baseURL, logger, DefaultTimeout)
}

// NewClientWithTimeout creates a backend client with a custom request timeout.
func NewClientWithTimeout(baseURL string, logger *zap.Logger, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// BaseURL returns the backend base URL the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BackendError represents an error response from the RAG backend
type BackendError struct {
	StatusCode int    `json:"-"`
	Detail     string `json:"detail"`
}

func (e BackendError) Error() string {
	return fmt.Sprintf("backend error [%d]: %s", e.StatusCode, e.Detail)
}

// addRequest is the payload for POST /add
type addRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// searchRequest is the payload for POST /search
type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// searchResponse is the response from POST /search
type searchResponse struct {
	Documents []string `json:"documents"`
}

// makeRequest performs an HTTP request and converts non-2xx statuses into
// a typed BackendError
func (c *Client) makeRequest(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)

		var backendErr BackendError
		if json.Unmarshal(body, &backendErr) == nil && backendErr.Detail != "" {
			backendErr.StatusCode = resp.StatusCode
			return nil, backendErr
		}

		return nil, BackendError{StatusCode: resp.StatusCode, Detail: string(body)}
	}

	return resp, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.makeRequest(req)
}

// HealthCheck probes GET /health. It returns nil only on HTTP 200; any
// network error, timeout, or other status is reported as an error
// (fail-closed). Availability is never cached across calls.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health check returned status %d", resp.StatusCode)
	}

	return nil
}

// AddDocument submits one document body plus its metadata to POST /add.
// Success is reported only on an explicit 2xx status from the backend.
func (c *Client) AddDocument(ctx context.Context, text string, metadata map[string]any) error {
	resp, err := c.postJSON(ctx, "/add", addRequest{Text: text, Metadata: metadata})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("Document accepted by backend",
		zap.Int("text_length", len(text)),
		zap.Int("metadata_keys", len(metadata)))

	return nil
}

// Search issues a semantic query against POST /search and returns the
// ordered document snippets from the response.
func (c *Client) Search(ctx context.Context, query string, topK int) ([]string, error) {
	resp, err := c.postJSON(ctx, "/search", searchRequest{Query: query, TopK: topK})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	return searchResp.Documents, nil
}

// Stats fetches GET /stats. The statistics are opaque key/value data passed
// through for display.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats request: %w", err)
	}

	resp, err := c.makeRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var stats map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("failed to decode stats response: %w", err)
	}

	return stats, nil
}
