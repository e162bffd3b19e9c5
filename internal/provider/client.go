// Package provider talks to the external generation job queue. The queue is
// reliable about accepting work but sloppy about response shapes, so the
// client keeps transport concerns here and leaves payload interpretation to
// the normalization table in normalize.go.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"forge/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("provider: api key is required")

const maxErrorBody = 512

// SubmissionError reports a non-2xx response to a submit call. The upstream
// status and a truncated body are kept for diagnostics; the caller must not
// assume any partial submission succeeded.
type SubmissionError struct {
	Status int
	Body   string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("provider: submission rejected with status %d: %s", e.Status, e.Body)
}

// Options configures the job queue client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the generation job queue.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("provider: base url is required")
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Submit posts one generation request to the given endpoint path and returns
// the provider-assigned request id.
func (c *Client) Submit(ctx context.Context, endpoint string, params map[string]any) (string, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("provider: encode request: %w", err)
	}
	url := c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("provider: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &SubmissionError{Status: resp.StatusCode, Body: truncate(string(raw), maxErrorBody)}
	}

	requestID, ok := ExtractRequestID(raw)
	if !ok {
		return "", fmt.Errorf("provider: submission accepted but no request id in response: %s", truncate(string(raw), maxErrorBody))
	}
	c.logger.Debug().Str("endpoint", endpoint).Str("request_id", requestID).Msg("provider: submitted")
	return requestID, nil
}

// FetchStatus returns the raw status payload for a request id.
func (c *Client) FetchStatus(ctx context.Context, requestID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("%s/requests/%s/status", c.baseURL, requestID))
}

// FetchResult returns the raw result payload for a request id.
func (c *Client) FetchResult(ctx context.Context, requestID string) ([]byte, error) {
	return c.get(ctx, fmt.Sprintf("%s/requests/%s/result", c.baseURL, requestID))
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("provider: build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider: status %d: %s", resp.StatusCode, truncate(string(raw), maxErrorBody))
	}
	return raw, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
