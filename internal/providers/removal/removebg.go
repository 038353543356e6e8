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

const removeBgDefaultURL = "https://api.remove.bg/v1.0/removebg"

// RemoveBg calls the remove.bg API.
type RemoveBg struct {
	endpoint   string
	httpClient *http.Client
	logger     *infra.Logger
}

func NewRemoveBg(opts ClientOptions) *RemoveBg {
	endpoint := strings.TrimSpace(opts.BaseURL)
	if endpoint == "" {
		endpoint = removeBgDefaultURL
	}
	return &RemoveBg{
		endpoint:   endpoint,
		httpClient: opts.httpClient(30 * time.Second),
		logger:     opts.logger(),
	}
}

func (r *RemoveBg) Remove(ctx context.Context, req Request) ([]byte, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("image_file", "image.jpg")
	if err != nil {
		return nil, fmt.Errorf("removebg: build form: %w", err)
	}
	if _, err := part.Write(req.Image); err != nil {
		return nil, fmt.Errorf("removebg: write image: %w", err)
	}
	if err := mw.WriteField("size", "auto"); err != nil {
		return nil, fmt.Errorf("removebg: write field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("removebg: close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("removebg: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("X-Api-Key", req.APIKey)

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("removebg: http request: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("removebg: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewFailure(resp.StatusCode, "Remove.bg API error: %s", strings.TrimSpace(string(raw)))
	}
	r.logger.Debug().Int("bytes", len(raw)).Msg("removebg: background removed")
	return raw, nil
}

var _ Remover = (*RemoveBg)(nil)
