// Package client is a typed HTTP client for the optimization backend API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"optiflow/internal/models"
)

const (
	// DefaultBaseURL is used when no base URL is configured.
	DefaultBaseURL = "http://localhost:8080"
	apiPrefix      = "/api/v1"

	contentTypeJSON  = "application/json"
	userAgent        = "optiflow/0.1"
	maxErrorBodySize = 64 * 1024
	maxBodySize      = 16 << 20
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Options configures a Client. The zero value is usable.
type Options struct {
	// BaseURL is the backend root, without the /api/v1 prefix.
	BaseURL string
	// Headers are sent with every request, after the JSON defaults.
	Headers map[string]string
	// Timeout bounds each request when no HTTPClient is supplied. Zero means
	// no client-side timeout.
	Timeout time.Duration
	// HTTPClient replaces the default pooled client.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the backend's /api/v1 endpoints. It holds no mutable state
// and is safe for concurrent use.
type Client struct {
	baseURL string
	apiURL  string
	headers http.Header
	http    *http.Client
	logger  *slog.Logger
}

// New builds a Client from opts. It performs no I/O and never fails.
func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	headers := make(http.Header, len(opts.Headers)+3)
	headers.Set("Content-Type", contentTypeJSON)
	headers.Set("Accept", contentTypeJSON)
	headers.Set("User-Agent", userAgent)
	for k, v := range opts.Headers {
		headers.Set(k, v)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.Timeout)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: baseURL,
		apiURL:  baseURL + apiPrefix,
		headers: headers,
		http:    httpClient,
		logger:  logger,
	}
}

// BaseURL returns the backend root the client is bound to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks that the backend is reachable.
func (c *Client) Ping(ctx context.Context) (*models.PingResult, error) {
	var out models.PingResult
	if err := c.do(ctx, "ping", http.MethodGet, "/ping", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCompletion requests a text completion for req.Prompt.
func (c *Client) GetCompletion(ctx context.Context, req models.CompletionRequest) (*models.CompletionResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("completion: %w: %v", ErrInvalidRequest, err)
	}

	var out models.CompletionResult
	if err := c.do(ctx, "completion", http.MethodPost, "/completion", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Optimize submits an optimization job. The returned JobID is used with
// GetJobStatus to follow the job.
func (c *Client) Optimize(ctx context.Context, req models.OptimizeRequest) (*models.OptimizeResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("optimize: %w: %v", ErrInvalidRequest, err)
	}

	var out models.OptimizeResult
	if err := c.do(ctx, "optimize", http.MethodPost, "/optimize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJobStatus fetches the current state of a job. A 404 from the backend
// satisfies errors.Is(err, ErrJobNotFound).
func (c *Client) GetJobStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("job status: %w: job id must not be empty", ErrInvalidRequest)
	}

	var out models.JobStatus
	if err := c.do(ctx, "job status", http.MethodGet, "/job/"+escapeSegment(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// escapeSegment encodes id as a single path segment. Dot segments are
// encoded too so they cannot be resolved against the parent path.
func escapeSegment(id string) string {
	switch id {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, op, method, path string, payload, target any) error {
	req, err := c.newRequest(ctx, method, c.apiURL+path, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("backend request failed", "op", op, "method", method, "path", path, "err", err)
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	c.logger.Debug("backend request",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseProtocolError(op, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("read response body: %w", err)}
	}

	if err := decodeJSON(body, target); err != nil {
		return &DecodeError{Op: op, Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	for k, v := range c.headers {
		req.Header[k] = append([]string(nil), v...)
	}
	return req, nil
}

func parseProtocolError(op string, resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if err != nil {
		body = nil
	}

	protoErr := &ProtocolError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       body,
	}

	var envelope models.ErrorBody
	if err := json.Unmarshal(body, &envelope); err == nil {
		protoErr.Message = envelope.Error
	}
	return protoErr
}

func decodeJSON(body []byte, target any) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty response body")
		}
		return err
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("response body must contain a single JSON object")
	}
	if err := validate.Struct(target); err != nil {
		return fmt.Errorf("missing required fields: %w", err)
	}
	return nil
}
