package removal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/infra"
)

const clipdropDefaultURL = "https://clipdrop-api.co/remove-background/v1"

// Clipdrop calls the Clipdrop background-removal API.
type Clipdrop struct {
	endpoint   string
	httpClient *http.Client
	logger     *infra.Logger
}

func NewClipdrop(opts ClientOptions) *Clipdrop {
	endpoint := strings.TrimSpace(opts.BaseURL)
	if endpoint == "" {
		endpoint = clipdropDefaultURL
	}
	return &Clipdrop{
		endpoint:   endpoint,
		httpClient: opts.httpClient(30 * time.Second),
		logger:     opts.logger(),
	}
}

func (c *Clipdrop) Remove(ctx context.Context, req Request) ([]byte, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("image_file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("clipdrop: build form: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, fmt.Errorf("clipdrop: write image: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("clipdrop: close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("clipdrop: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("x-api-key", req.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("clipdrop: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("clipdrop: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFailure(resp.StatusCode, "Clipdrop API error: %s", strings.TrimSpace(string(raw)))
	}
	c.logger.Debug().Int("bytes", len(raw)).Msg("clipdrop: background removed")
	return raw, nil
}

var _ Remover = (*Clipdrop)(nil)
