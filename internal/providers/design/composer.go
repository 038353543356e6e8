// Package design adapts a generative image-editing model that blends a
// product cutout onto a branded background per a text instruction.
package design

import (
	"context"
	"fmt"
	"strings"

	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/providers/fal"
	"github.com/vemelin055/background-remover/internal/providers/payload"
)

// ComposeRequest carries the ordered inputs of one design composite: the
// branded background first, then the foreground cutout with its background
// already removed.
type ComposeRequest struct {
	Background  []byte
	Foreground  []byte
	Instruction string
	APIKey      string
}

// Composer invokes a FAL-hosted image-editing model.
type Composer struct {
	client *fal.Client
	model  string
}

func NewComposer(client *fal.Client, model string) *Composer {
	return &Composer{client: client, model: model}
}

// Compose returns the blended image bytes or a typed failure. Callers treat
// it as best-effort: a failure degrades to "no design produced".
func (c *Composer) Compose(ctx context.Context, req ComposeRequest) ([]byte, error) {
	if len(req.Background) == 0 || len(req.Foreground) == 0 {
		return nil, domain.NewFailure(400, "design: background and foreground images are required")
	}
	instruction := strings.TrimSpace(req.Instruction)
	if instruction == "" {
		instruction = DefaultInstruction()
	}
	result, err := c.client.Run(ctx, fal.RunRequest{
		Model: c.model,
		Input: map[string]any{
			"image_urls": []any{
				payload.DataURL("image/png", req.Background),
				payload.DataURL("image/png", req.Foreground),
			},
			"prompt": instruction,
		},
		APIKey: req.APIKey,
	})
	if err != nil {
		return nil, err
	}
	for _, key := range []string{"images", "image", "output"} {
		if value, ok := result[key]; ok && value != nil {
			return payload.Resolve(ctx, c.client.HTTPClient(), value)
		}
	}
	return nil, fmt.Errorf("design: no image in result: %w", domain.ErrUnexpectedOutput)
}
