// Package payload normalizes the output shapes returned by generative image
// APIs into raw image bytes. A call is considered successful when it yields
// directly readable bytes, a list whose first element yields readable bytes,
// or a URL that fetches with HTTP 200. Anything else is an unexpected shape.
package payload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vemelin055/background-remover/internal/domain"
)

// Resolve turns a decoded JSON output value into image bytes.
func Resolve(ctx context.Context, client *http.Client, value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return fromString(ctx, client, v)
	case []byte:
		if len(v) > 0 {
			return v, nil
		}
	case []any:
		if len(v) > 0 {
			return Resolve(ctx, client, v[0])
		}
	case map[string]any:
		for _, key := range []string{"image", "url", "output", "images"} {
			if inner, ok := v[key]; ok {
				return Resolve(ctx, client, inner)
			}
		}
	}
	return nil, fmt.Errorf("payload: %w: %T", domain.ErrUnexpectedOutput, value)
}

func fromString(ctx context.Context, client *http.Client, s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("payload: empty value: %w", domain.ErrUnexpectedOutput)
	case strings.HasPrefix(s, "data:"):
		return fromDataURL(s)
	case strings.HasPrefix(s, "http://"), strings.HasPrefix(s, "https://"):
		return Fetch(ctx, client, s)
	}
	return nil, fmt.Errorf("payload: %w: unrecognized string value", domain.ErrUnexpectedOutput)
}

func fromDataURL(s string) ([]byte, error) {
	idx := strings.Index(s, ",")
	if idx < 0 {
		return nil, fmt.Errorf("payload: malformed data url: %w", domain.ErrUnexpectedOutput)
	}
	data, err := base64.StdEncoding.DecodeString(s[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("payload: decode data url: %w", errors.Join(domain.ErrUnexpectedOutput, err))
	}
	return data, nil
}

// Fetch downloads a result URL; any status other than 200 is a failure.
func Fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("payload: build fetch request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payload: fetch result: %w", errors.Join(domain.ErrDownloadFailed, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payload: fetch status %d: %w", resp.StatusCode, domain.ErrDownloadFailed)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("payload: read result: %w", errors.Join(domain.ErrDownloadFailed, err))
	}
	return data, nil
}

// DataURL encodes image bytes as a base64 data URL for APIs that accept
// inline image inputs.
func DataURL(mime string, data []byte) string {
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}
