package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envAPIURL = "DOCPIPE_API_URL"

	defaultAPIURL = "http://localhost:8080"
)

type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClientWithCmd creates an APIClient with config cascade: flag → env → global config → default.
// If cmd is nil, skips flag checking.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	var baseURL string

	if cmd != nil {
		if flagURL, err := cmd.Flags().GetString("api-url"); err == nil && flagURL != "" {
			baseURL = flagURL
		}
	}

	if baseURL == "" {
		baseURL = os.Getenv(envAPIURL)
	}

	if baseURL == "" {
		globalConfig, err := LoadGlobalConfig()
		if err != nil {
			return nil, err
		}
		if globalConfig != nil {
			baseURL = globalConfig.APIURL
		}
	}

	if baseURL == "" {
		baseURL = defaultAPIURL
	}

	return NewAPIClientWithConfig(baseURL)
}

func NewAPIClient(cmd *cobra.Command) (*APIClient, error) {
	_ = godotenv.Load()
	return NewAPIClientWithCmd(cmd)
}

// NewAPIClientWithConfig creates an APIClient for an explicit base URL.
func NewAPIClientWithConfig(baseURL string) (*APIClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", baseURL)
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// APIResponse represents the standard API response format.
type APIResponse struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Get performs a GET request.
func (c *APIClient) Get(ctx context.Context, path string) (*APIResponse, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with JSON body.
func (c *APIClient) Post(ctx context.Context, path string, body interface{}) (*APIResponse, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *APIClient) do(ctx context.Context, method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    string(respBody),
			}
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       apiResp.Code,
			Message:    apiResp.Error,
		}
	}

	return &apiResp, nil
}

// Document mirrors the server's document representation.
type Document struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	SourceKey    string  `json:"source_key,omitempty"`
	ExtractFacts bool    `json:"extract_facts"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
	Status       *Status `json:"status,omitempty"`
}

// Status mirrors the status polling contract.
type Status struct {
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	Error       string `json:"error,omitempty"`
	ChunksCount int    `json:"chunks_count"`
	UpdatedAt   string `json:"updated_at"`
}

// Terminal reports whether the run has finished.
func (s *Status) Terminal() bool {
	return s.Status == "completed" || s.Status == "failed"
}

// DocumentPage is one page of a document listing.
type DocumentPage struct {
	Items   []Document `json:"items"`
	Cursor  string     `json:"cursor,omitempty"`
	HasMore bool       `json:"has_more"`
}

// SubmitRequest is the body of POST /documents.
type SubmitRequest struct {
	Title        string `json:"title,omitempty"`
	Text         string `json:"text,omitempty"`
	SourceKey    string `json:"source_key,omitempty"`
	ExtractFacts *bool  `json:"extract_facts,omitempty"`
}

func (c *APIClient) SubmitDocument(ctx context.Context, req SubmitRequest) (*Document, error) {
	resp, err := c.Post(ctx, "/documents", req)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &doc, nil
}

func (c *APIClient) GetStatus(ctx context.Context, documentID string) (*Status, error) {
	resp, err := c.Get(ctx, "/documents/"+url.PathEscape(documentID)+"/status")
	if err != nil {
		return nil, err
	}
	var status Status
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}
	return &status, nil
}

func (c *APIClient) RetryDocument(ctx context.Context, documentID string) (*Status, error) {
	resp, err := c.Post(ctx, "/documents/"+url.PathEscape(documentID)+"/retry", nil)
	if err != nil {
		return nil, err
	}
	var status Status
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse status: %w", err)
	}
	return &status, nil
}

func (c *APIClient) CancelDocument(ctx context.Context, documentID string) error {
	_, err := c.Post(ctx, "/documents/"+url.PathEscape(documentID)+"/cancel", nil)
	return err
}

func (c *APIClient) ListDocuments(ctx context.Context, cursor string, limit int) (*DocumentPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	path := "/documents"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	var page DocumentPage
	if err := json.Unmarshal(resp.Data, &page); err != nil {
		return nil, fmt.Errorf("failed to parse documents: %w", err)
	}
	return &page, nil
}

// UploadTarget is a presigned location for a source document.
type UploadTarget struct {
	SourceKey string `json:"source_key"`
	UploadURL string `json:"upload_url"`
	ExpiresAt string `json:"expires_at"`
}

func (c *APIClient) InitUpload(ctx context.Context, filename, contentType string) (*UploadTarget, error) {
	resp, err := c.Post(ctx, "/documents/uploads", map[string]string{
		"filename":     filename,
		"content_type": contentType,
	})
	if err != nil {
		return nil, err
	}
	var target UploadTarget
	if err := json.Unmarshal(resp.Data, &target); err != nil {
		return nil, fmt.Errorf("failed to parse upload target: %w", err)
	}
	return &target, nil
}

// UploadFile PUTs content to a presigned URL.
func (c *APIClient) UploadFile(ctx context.Context, uploadURL, contentType string, content []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// WatchStatus polls until the run is terminal or ctx is done. onUpdate is
// called whenever stage or progress changes.
func (c *APIClient) WatchStatus(ctx context.Context, documentID string, interval time.Duration, onUpdate func(*Status)) (*Status, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last Status
	for {
		status, err := c.GetStatus(ctx, documentID)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil && (status.Status != last.Status || status.Progress != last.Progress) {
			onUpdate(status)
		}
		last = *status
		if status.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
