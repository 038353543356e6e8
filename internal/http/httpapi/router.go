package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vemelin055/background-remover/internal/http/handlers"
	"github.com/vemelin055/background-remover/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(*app.Logger),
		middleware.CORS(app.Config.AllowedOrigins),
		middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/process", app.Process)
		r.Post("/place-template", app.PlaceTemplate)
		r.Post("/batch-process-folders", app.BatchProcessFolders)

		r.Route("/yandex", func(r chi.Router) {
			r.Get("/check", app.DiskCheck)
			r.Get("/folders", app.DiskFolders)
			r.Get("/files", app.DiskFiles)
			r.Get("/structure", app.DiskStructure)
			r.Get("/account-info", app.DiskAccountInfo)
			r.Get("/download", app.DiskDownload)
			r.Post("/upload", app.DiskUpload)
			r.Post("/create-folder", app.DiskCreateFolder)
			r.Get("/folder-zip", app.DiskFolderZip)
		})
	})

	return r
}
