package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vemelin055/background-remover/internal/batch"
	"github.com/vemelin055/background-remover/internal/disk"
	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/infra"
	"github.com/vemelin055/background-remover/internal/infra/credentials"
	"github.com/vemelin055/background-remover/internal/providers/design"
	"github.com/vemelin055/background-remover/internal/providers/fal"
	"github.com/vemelin055/background-remover/internal/providers/removal"
)

// DiskClient is the slice of the Yandex Disk client the handlers depend on.
type DiskClient interface {
	batch.Storage
	AccountInfo(ctx context.Context) (*disk.AccountInfo, error)
}

// Designer mirrors batch.Designer for direct handler use.
type Designer interface {
	Compose(ctx context.Context, req design.ComposeRequest) ([]byte, error)
}

// RemoverResolver resolves a model variant name to its adapter.
type RemoverResolver interface {
	Remover(variant string) (removal.Remover, error)
}

// App is the handler container; dependencies are injected so tests can swap
// the disk client and model adapters for fakes.
type App struct {
	Config      *infra.Config
	Logger      *infra.Logger
	Credentials *credentials.Store
	Removers    RemoverResolver
	Designer    Designer

	// NewDisk builds a disk client bound to a resolved OAuth token.
	NewDisk func(token string) (DiskClient, error)
}

func NewApp(cfg *infra.Config, logger *infra.Logger) *App {
	falClient := fal.NewClient(fal.Options{Logger: logger, Timeout: cfg.PayloadTimeout})
	return &App{
		Config:      cfg,
		Logger:      logger,
		Credentials: credentials.NewStore(cfg),
		Removers:    removal.NewRegistry(cfg, logger),
		Designer:    design.NewComposer(falClient, cfg.FalDesignModel),
		NewDisk: func(token string) (DiskClient, error) {
			return disk.New(disk.Options{
				Token:           token,
				MetadataTimeout: cfg.MetadataTimeout,
				PayloadTimeout:  cfg.PayloadTimeout,
				Logger:          logger,
			})
		},
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]any{"error": kind, "detail": message})
}

// failure maps a taxonomy error to its HTTP status and a structured body.
func (a *App) failure(w http.ResponseWriter, err error) {
	status := domain.HTTPStatus(err)
	message := err.Error()
	if f, ok := domain.FailureFrom(err); ok {
		message = f.Message
	}
	a.error(w, status, http.StatusText(status), message)
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
