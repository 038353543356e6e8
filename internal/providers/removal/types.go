// Package removal hosts the background-removal adapters. Every variant takes
// raw image bytes and returns PNG bytes with an alpha channel, or a typed
// failure from the domain taxonomy.
package removal

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vemelin055/background-remover/internal/infra"
)

// Request carries the inputs of one background-removal call. The credential
// is threaded explicitly; adapters never read keys from the environment.
// Instruction is ignored by most variants and accepted for interface
// uniformity.
type Request struct {
	Image       []byte
	APIKey      string
	Instruction string
}

// Remover is the contract implemented by all background-removal variants.
type Remover interface {
	Remove(ctx context.Context, req Request) ([]byte, error)
}

// ClientOptions configures a vendor adapter.
type ClientOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
	Timeout    time.Duration
}

func (o ClientOptions) httpClient(fallbackTimeout time.Duration) *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = fallbackTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (o ClientOptions) logger() *infra.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	discard := infra.Logger(zerolog.New(io.Discard))
	return &discard
}
