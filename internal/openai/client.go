// Package openai implements the Batch API surface the pipeline depends on:
// file upload, batch creation, status lookup, listing, cancellation, and
// result download. Every operation returns an explicit error, either a
// *TransportError or an *APIError, that the caller must inspect.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Batch job statuses as reported by the service.
const (
	StatusValidating = "validating"
	StatusInProgress = "in_progress"
	StatusFinalizing = "finalizing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelling = "cancelling"
)

// IsActiveStatus reports whether status occupies service-side capacity.
func IsActiveStatus(status string) bool {
	switch status {
	case StatusValidating, StatusInProgress, StatusFinalizing, StatusCancelling:
		return true
	}
	return false
}

// BatchError is one entry of a failed batch's error list.
type BatchError struct {
	Message string `json:"message"`
}

// Batch is the service's batch job record, reduced to the fields the
// pipeline reads.
type Batch struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	InputFileID  string `json:"input_file_id"`
	OutputFileID string `json:"output_file_id"`
	Errors       struct {
		Data []BatchError `json:"data"`
	} `json:"errors"`
}

// ErrorMessages flattens the batch's error list into plain strings.
func (b *Batch) ErrorMessages() []string {
	msgs := make([]string, 0, len(b.Errors.Data))
	for _, e := range b.Errors.Data {
		msgs = append(msgs, e.Message)
	}
	return msgs
}

// Config carries the client settings, resolved once at startup and immutable
// afterwards.
type Config struct {
	APIKey  string        `mapstructure:"api_key" json:"api_key"`
	BaseURL string        `mapstructure:"base_url" json:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
}

// Client talks to the Batch API over HTTP.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewClient builds a Client from cfg, applying the default endpoint and a
// 120 second transport timeout when unset.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// UploadFile uploads the file at path for batch processing and returns the
// file id the service assigned.
func (c *Client) UploadFile(ctx context.Context, path string) (string, error) {
	const op = "upload file"

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := mw.WriteField("purpose", "batch"); err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(httpReq, op, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateBatch creates a batch job over the uploaded input file with a
// 24-hour completion window and returns the job id.
func (c *Client) CreateBatch(ctx context.Context, fileID string) (string, error) {
	const op = "create batch"

	body := map[string]any{
		"input_file_id":     fileID,
		"endpoint":          "/v1/chat/completions",
		"completion_window": "24h",
		"metadata":          map[string]string{"description": "Translation batch job"},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batches", bytes.NewReader(data))
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(httpReq, op, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// GetBatch returns the current record for the batch job id.
func (c *Client) GetBatch(ctx context.Context, id string) (*Batch, error) {
	const op = "get batch"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/batches/"+id, nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out Batch
	if err := c.do(httpReq, op, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBatches returns the caller's batch jobs as the service reports them.
func (c *Client) ListBatches(ctx context.Context) ([]Batch, error) {
	const op = "list batches"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/batches", nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	var out struct {
		Data []Batch `json:"data"`
	}
	if err := c.do(httpReq, op, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CancelBatch requests cancellation of the batch job id. It is a standalone
// operator action and is not wired into the polling loop.
func (c *Client) CancelBatch(ctx context.Context, id string) error {
	const op = "cancel batch"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/batches/"+id+"/cancel", nil)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(httpReq, op, &struct{}{})
}

// DownloadFile returns the raw content of the stored file id.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	const op = "download file"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/"+fileID+"/content", nil)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp, op)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	return data, nil
}

// do executes the request and decodes a JSON response body into out.
func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp, op)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// apiError turns a non-success response into an *APIError, salvaging the
// structured message when the body carries one.
func (c *Client) apiError(resp *http.Response, op string) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errResp)
	return &APIError{Op: op, StatusCode: resp.StatusCode, Message: errResp.Error.Message}
}
