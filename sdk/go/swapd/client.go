// Package swapd is a small Go client for the swapd REST API.
package swapd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// A swap waits for consensus, so it is longer than a plain API round trip.
const DefaultHTTPTimeout = 90 * time.Second

// Job statuses reported by the server.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// Client wraps the HTTP interactions with a swapd server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Tool describes a callable tool published by the server.
type Tool struct {
	Method      string          `json:"method"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Plugin      string          `json:"plugin"`
}

// CallOptions carries the per-call execution context.
type CallOptions struct {
	Mode      string `json:"mode,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

// Result is the uniform tool result. A failed swap is still a Result, not an error.
type Result struct {
	Payload   json.RawMessage `json:"payload"`
	Succeeded bool            `json:"succeeded"`
	Code      string          `json:"code,omitempty"`
}

// JobSubmission describes an asynchronous tool call. ID is optional and makes
// the submission idempotent when set.
type JobSubmission struct {
	ID     string `json:"id,omitempty"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
	CallOptions
}

// Job is the server side view of an asynchronous call.
type Job struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	Mode      string          `json:"mode,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
	Status    string          `json:"status"`
	ErrorCode string          `json:"error_code,omitempty"`
	LastError string          `json:"last_error,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt int64           `json:"created_at"`
	UpdatedAt int64           `json:"updated_at"`
}

// Finished reports whether the job reached a terminal status.
func (j Job) Finished() bool {
	return j.Status == JobSucceeded || j.Status == JobFailed
}

// JobStats aggregates job counts.
type JobStats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// JobFilter narrows ListJobs and JobStats.
type JobFilter struct {
	Limit     int
	Offset    int
	Statuses  []string
	Method    string
	Ascending bool
}

func (f JobFilter) query() url.Values {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	for _, s := range f.Statuses {
		q.Add("status", s)
	}
	if f.Method != "" {
		q.Set("method", f.Method)
	}
	if f.Ascending {
		q.Set("order", "asc")
	}
	return q
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("swapd api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("swapd api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient creates a client for the server at rawURL. When httpClient is nil a
// client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Tools lists the tools the server publishes.
func (c *Client) Tools(ctx context.Context) ([]Tool, error) {
	var out struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tools", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// Invoke calls a tool synchronously.
func (c *Client) Invoke(ctx context.Context, method string, params any, opts CallOptions) (Result, error) {
	body := struct {
		Params any `json:"params,omitempty"`
		CallOptions
	}{Params: params, CallOptions: opts}
	var result Result
	if err := c.do(ctx, http.MethodPost, "/api/v1/tools/"+url.PathEscape(method), nil, body, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// SubmitJob queues an asynchronous tool call.
func (c *Client) SubmitJob(ctx context.Context, submission JobSubmission) (Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", nil, submission, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// GetJob fetches a job by id.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, nil, &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// ListJobs returns jobs matching filter.
func (c *Client) ListJobs(ctx context.Context, filter JobFilter) ([]Job, error) {
	var out struct {
		Jobs []Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs", filter.query(), nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// JobStats returns aggregated counts for jobs matching filter.
func (c *Client) JobStats(ctx context.Context, filter JobFilter) (JobStats, error) {
	var stats JobStats
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs/stats", filter.query(), nil, &stats); err != nil {
		return JobStats{}, err
	}
	return stats, nil
}

// WaitForJob polls until the job finishes or ctx is done.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return Job{}, err
		}
		if job.Finished() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, payload, out any) error {
	u := c.baseURL.ResolveReference(&url.URL{Path: path.Join(c.baseURL.Path, endpoint)})
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
