package removal

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

	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/infra"
	"github.com/vemelin055/background-remover/internal/providers/payload"
)

const replicateDefaultURL = "https://api.replicate.com/v1"

// Replicate removes backgrounds through the Replicate predictions API.
// It is a fallback chain: the configured models are tried in order and the
// first success wins; when every candidate fails the last failure surfaces.
type Replicate struct {
	baseURL      string
	models       []string
	httpClient   *http.Client
	logger       *infra.Logger
	pollInterval time.Duration
	maxPolls     int
}

// ReplicateOptions extends ClientOptions with the ordered candidate models.
// A model containing a slash is addressed by slug, anything else is treated
// as a raw version identifier.
type ReplicateOptions struct {
	ClientOptions
	Models       []string
	PollInterval time.Duration
	MaxPolls     int
}

type predictionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  any    `json:"error"`
}

func NewReplicate(opts ReplicateOptions) *Replicate {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = replicateDefaultURL
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	maxPolls := opts.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 60
	}
	return &Replicate{
		baseURL:      baseURL,
		models:       opts.Models,
		httpClient:   opts.httpClient(30 * time.Second),
		logger:       opts.logger(),
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

func (r *Replicate) Remove(ctx context.Context, req Request) ([]byte, error) {
	if len(r.models) == 0 {
		return nil, domain.NewFailure(500, "replicate: no models configured")
	}
	var lastErr error
	for _, model := range r.models {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := r.tryModel(ctx, model, req)
		if err == nil {
			return out, nil
		}
		r.logger.Warn().Err(err).Str("model", model).Msg("replicate: candidate failed, trying next")
		lastErr = err
	}
	failure := domain.NewFailure(500, "replicate: all models failed: %v", lastErr)
	return nil, errors.Join(failure, lastErr)
}

func (r *Replicate) tryModel(ctx context.Context, model string, req Request) ([]byte, error) {
	prediction, err := r.createPrediction(ctx, model, req)
	if err != nil {
		return nil, err
	}
	for attempt := 0; attempt < r.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.pollInterval):
		}
		prediction, err = r.getPrediction(ctx, prediction.ID, req.APIKey)
		if err != nil {
			return nil, err
		}
		switch prediction.Status {
		case "succeeded":
			return payload.Resolve(ctx, r.httpClient, prediction.Output)
		case "failed", "canceled":
			return nil, domain.NewFailure(500, "replicate: %s processing failed: %v", model, prediction.Error)
		}
	}
	return nil, domain.NewFailure(500, "replicate: %s processing timeout", model)
}

func (r *Replicate) createPrediction(ctx context.Context, model string, req Request) (*predictionResponse, error) {
	input := map[string]any{"image": payload.DataURL("image/jpeg", req.Image)}
	var endpoint string
	body := map[string]any{"input": input}
	if strings.Contains(model, "/") {
		endpoint = fmt.Sprintf("%s/models/%s/predictions", r.baseURL, model)
	} else {
		endpoint = r.baseURL + "/predictions"
		body["version"] = model
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("replicate: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("replicate: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Token "+req.APIKey)
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("replicate: create prediction: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate: read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, domain.NewFailure(resp.StatusCode, "Replicate API error: %s", strings.TrimSpace(string(data)))
	}
	var decoded predictionResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("replicate: decode prediction: %w", err)
	}
	if decoded.ID == "" {
		return nil, fmt.Errorf("replicate: prediction id missing: %w", domain.ErrUnexpectedOutput)
	}
	return &decoded, nil
}

func (r *Replicate) getPrediction(ctx context.Context, id, apiKey string) (*predictionResponse, error) {
	endpoint := r.baseURL + "/predictions/" + id
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("replicate: build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Token "+apiKey)
	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("replicate: poll prediction: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("replicate: read status: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFailure(resp.StatusCode, "Replicate status error: %s", strings.TrimSpace(string(data)))
	}
	var decoded predictionResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("replicate: decode status: %w", err)
	}
	return &decoded, nil
}

var _ Remover = (*Replicate)(nil)
