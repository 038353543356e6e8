package removal

import (
	"context"
	"fmt"
	"strings"

	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/providers/fal"
	"github.com/vemelin055/background-remover/internal/providers/payload"
)

// Fal removes backgrounds through a FAL-hosted model. With ObjectRemoval set
// the adapter targets the object-removal model instead and forwards the
// caller's instruction describing what to erase.
type Fal struct {
	client        *fal.Client
	model         string
	objectRemoval bool
}

func NewFal(client *fal.Client, model string) *Fal {
	return &Fal{client: client, model: model}
}

func NewFalObjectRemoval(client *fal.Client, model string) *Fal {
	return &Fal{client: client, model: model, objectRemoval: true}
}

func (f *Fal) Remove(ctx context.Context, req Request) ([]byte, error) {
	input := map[string]any{
		"image_url": payload.DataURL("image/jpeg", req.Image),
	}
	if f.objectRemoval {
		if instruction := strings.TrimSpace(req.Instruction); instruction != "" {
			input["prompt"] = instruction
		}
	}
	result, err := f.client.Run(ctx, fal.RunRequest{
		Model:  f.model,
		Input:  input,
		APIKey: req.APIKey,
	})
	if err != nil {
		return nil, err
	}
	out, err := extractFalImage(ctx, f, result)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func extractFalImage(ctx context.Context, f *Fal, result map[string]any) ([]byte, error) {
	for _, key := range []string{"image", "output", "images"} {
		if value, ok := result[key]; ok && value != nil {
			return payload.Resolve(ctx, f.client.HTTPClient(), value)
		}
	}
	return nil, fmt.Errorf("FAL: no image in result: %w", domain.ErrUnexpectedOutput)
}

var _ Remover = (*Fal)(nil)
