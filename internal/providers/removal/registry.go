package removal

import (
	"sort"

	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/infra"
	"github.com/vemelin055/background-remover/internal/infra/credentials"
	"github.com/vemelin055/background-remover/internal/providers/fal"
)

// Registry maps model variant names to their adapters.
type Registry struct {
	removers map[string]Remover
}

// NewRegistry wires every supported variant from configuration.
func NewRegistry(cfg *infra.Config, logger *infra.Logger) *Registry {
	opts := ClientOptions{Logger: logger, Timeout: cfg.MetadataTimeout}
	falClient := fal.NewClient(fal.Options{Logger: logger, Timeout: cfg.PayloadTimeout})
	return &Registry{removers: map[string]Remover{
		credentials.VariantRemoveBg: NewRemoveBg(opts),
		credentials.VariantClipdrop: NewClipdrop(opts),
		credentials.VariantReplicate: NewReplicate(ReplicateOptions{
			ClientOptions: opts,
			Models:        cfg.ReplicateModels,
		}),
		credentials.VariantFal:              NewFal(falClient, cfg.FalRemovalModel),
		credentials.VariantFalObjectRemoval: NewFalObjectRemoval(falClient, cfg.FalObjectRemovalModel),
	}}
}

// Remover resolves a variant name; unknown names are caller-visible failures.
func (r *Registry) Remover(variant string) (Remover, error) {
	remover, ok := r.removers[variant]
	if !ok {
		return nil, domain.NewFailure(400, "unknown model %q", variant)
	}
	return remover, nil
}

// Variants lists the registered variant names in stable order.
func (r *Registry) Variants() []string {
	names := make([]string, 0, len(r.removers))
	for name := range r.removers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
