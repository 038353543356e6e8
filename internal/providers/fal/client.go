// Package fal implements the FAL queue API transport shared by the
// background-removal and design-composition adapters.
package fal

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

	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/infra"
)

const defaultQueueURL = "https://queue.fal.run"

// Options configures the FAL queue client.
type Options struct {
	QueueURL     string
	HTTPClient   *http.Client
	Logger       *infra.Logger
	PollInterval time.Duration
	MaxPolls     int
	Timeout      time.Duration
}

// Client submits requests to the FAL queue and waits for their results.
// Credentials are threaded through each call rather than bound at
// construction, so per-request overrides need no client rebuilding.
type Client struct {
	queueURL     string
	httpClient   *http.Client
	logger       *infra.Logger
	pollInterval time.Duration
	maxPolls     int
}

// RunRequest describes a single model invocation.
type RunRequest struct {
	Model  string
	Input  map[string]any
	APIKey string
}

type submitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type statusResponse struct {
	Status string `json:"status"`
	Error  any    `json:"error,omitempty"`
}

// NewClient constructs a queue client with sane defaults.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	queueURL := strings.TrimRight(opts.QueueURL, "/")
	if queueURL == "" {
		queueURL = defaultQueueURL
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 60
	}
	logger := opts.Logger
	if logger == nil {
		discard := infra.Logger(zerolog.New(io.Discard))
		logger = &discard
	}
	return &Client{
		queueURL:     queueURL,
		httpClient:   httpClient,
		logger:       logger,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

// HTTPClient exposes the underlying client for result-URL fetches.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// Run submits the request, waits for completion and returns the decoded
// result document.
func (c *Client) Run(ctx context.Context, req RunRequest) (map[string]any, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return nil, domain.NewFailure(400, "fal: api key is required")
	}
	submitted, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("model", req.Model).
		Str("request_id", submitted.RequestID).
		Msg("fal: request queued")
	if err := c.wait(ctx, submitted, req.APIKey); err != nil {
		return nil, err
	}
	return c.result(ctx, submitted, req.APIKey)
}

func (c *Client) submit(ctx context.Context, req RunRequest) (*submitResponse, error) {
	body, err := json.Marshal(req.Input)
	if err != nil {
		return nil, fmt.Errorf("fal: encode input: %w", err)
	}
	endpoint := c.queueURL + "/" + strings.Trim(req.Model, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("fal: build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+req.APIKey)
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fal: submit: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fal: read submit response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, domain.NewFailure(resp.StatusCode, "fal: submit %s: %s", req.Model, strings.TrimSpace(string(raw)))
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("fal: decode submit response: %w", err)
	}
	if decoded.StatusURL == "" || decoded.ResponseURL == "" {
		return nil, fmt.Errorf("fal: submit response missing queue urls: %w", domain.ErrUnexpectedOutput)
	}
	return &decoded, nil
}

func (c *Client) wait(ctx context.Context, submitted *submitResponse, apiKey string) error {
	for attempt := 0; attempt < c.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
		status, err := c.status(ctx, submitted.StatusURL, apiKey)
		if err != nil {
			return err
		}
		switch status.Status {
		case "COMPLETED":
			return nil
		case "IN_QUEUE", "IN_PROGRESS":
			continue
		default:
			return domain.NewFailure(500, "fal: request %s ended with status %s", submitted.RequestID, status.Status)
		}
	}
	return domain.NewFailure(500, "fal: request %s timed out after %d polls", submitted.RequestID, c.maxPolls)
}

func (c *Client) status(ctx context.Context, statusURL, apiKey string) (*statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fal: build status request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal: poll status: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fal: read status: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, domain.NewFailure(resp.StatusCode, "fal: status poll failed: %s", strings.TrimSpace(string(raw)))
	}
	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("fal: decode status: %w", err)
	}
	return &decoded, nil
}

func (c *Client) result(ctx context.Context, submitted *submitResponse, apiKey string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, submitted.ResponseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fal: build result request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fal: fetch result: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fal: read result: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, domain.NewFailure(resp.StatusCode, "fal: result fetch failed: %s", strings.TrimSpace(string(raw)))
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Join(fmt.Errorf("fal: decode result: %w", err), domain.ErrUnexpectedOutput)
	}
	return decoded, nil
}
