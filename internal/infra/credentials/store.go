package credentials

import (
	"strings"

	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/infra"
)

// Model variant names accepted by the processing endpoints.
const (
	VariantRemoveBg         = "removebg"
	VariantClipdrop         = "clipdrop"
	VariantReplicate        = "replicate"
	VariantFal              = "fal"
	VariantFalObjectRemoval = "fal-object-removal"
)

// envKeys names the environment variable backing each variant, so error
// messages can tell the caller exactly what to set.
var envKeys = map[string]string{
	VariantRemoveBg:         "REMOVEBG_API_KEY",
	VariantClipdrop:         "CLIPDROP_API_KEY",
	VariantReplicate:        "REPLICATE_API_KEY",
	VariantFal:              "FAL_KEY",
	VariantFalObjectRemoval: "FAL_KEY",
}

// Store resolves vendor credentials. An explicit caller-supplied override
// always wins over the configured process-wide value; no credential is ever
// written back into the process environment.
type Store struct {
	cfg *infra.Config
}

func NewStore(cfg *infra.Config) *Store {
	return &Store{cfg: cfg}
}

// ModelKey resolves the background-removal credential for a model variant.
// A missing credential is a caller-visible failure naming the variable to set.
func (s *Store) ModelKey(variant, override string) (string, error) {
	if key := strings.TrimSpace(override); key != "" {
		return key, nil
	}
	var key string
	switch variant {
	case VariantRemoveBg:
		key = s.cfg.RemoveBgAPIKey
	case VariantClipdrop:
		key = s.cfg.ClipdropAPIKey
	case VariantReplicate:
		key = s.cfg.ReplicateAPIKey
	case VariantFal, VariantFalObjectRemoval:
		key = s.cfg.FalAPIKey
	default:
		return "", domain.NewFailure(400, "unknown model %q", variant)
	}
	if key = strings.TrimSpace(key); key == "" {
		return "", domain.NewFailure(400, "API key not provided: pass apiKey or set %s", envKeys[variant])
	}
	return key, nil
}

// FalKey resolves the FAL credential used by the design compositor.
func (s *Store) FalKey(override string) (string, error) {
	return s.ModelKey(VariantFal, override)
}

// StorageToken resolves the Yandex Disk OAuth token.
func (s *Store) StorageToken(override string) (string, error) {
	if token := strings.TrimSpace(override); token != "" {
		return token, nil
	}
	if token := strings.TrimSpace(s.cfg.YandexDiskToken); token != "" {
		return token, nil
	}
	return "", domain.NewFailure(401, "not authenticated: pass token or set YANDEX_DISK_TOKEN")
}
