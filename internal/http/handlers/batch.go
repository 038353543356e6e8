package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/vemelin055/background-remover/internal/batch"
	"github.com/vemelin055/background-remover/internal/disk"
	"github.com/vemelin055/background-remover/internal/infra/credentials"
)

// BatchProcessFolders runs the folder pipeline and streams progress as
// server-sent events. Run-level setup failures (credentials, base listing)
// surface as plain HTTP errors before any event is written; past that point
// failures are data inside the stream and the final complete event always
// arrives.
func (a *App) BatchProcessFolders(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid form payload")
		return
	}

	token, err := a.Credentials.StorageToken(r.FormValue("token"))
	if err != nil {
		a.failure(w, err)
		return
	}

	variant := r.FormValue("model")
	remover, err := a.Removers.Remover(variant)
	if err != nil {
		a.failure(w, err)
		return
	}
	modelKey, err := a.Credentials.ModelKey(variant, r.FormValue("apiKey"))
	if err != nil {
		a.failure(w, err)
		return
	}
	// The design branch is best-effort: a missing FAL key simply records a
	// design error per folder instead of blocking the run.
	designKey := modelKey
	if variant != credentials.VariantFal && variant != credentials.VariantFalObjectRemoval {
		designKey, _ = a.Credentials.FalKey("")
	}

	params := batch.RunParams{
		ModelAPIKey:  modelKey,
		DesignAPIKey: designKey,
		Instruction:  r.FormValue("prompt"),
		CanvasWidth:  formInt(r, "width", a.Config.DefaultCanvasWidth),
		CanvasHeight: formInt(r, "height", a.Config.DefaultCanvasHeight),
		OutputRoot:   strings.TrimSpace(r.FormValue("output")),
	}
	if publicURL := strings.TrimSpace(r.FormValue("public_url")); publicURL != "" {
		key, err := disk.ParsePublicKey(publicURL)
		if err != nil {
			a.failure(w, err)
			return
		}
		params.PublicKey = key
	} else if basePath := strings.TrimSpace(r.FormValue("path")); basePath != "" {
		params.BasePath = basePath
	} else {
		a.error(w, http.StatusBadRequest, "bad_request", "path or public_url is required")
		return
	}

	client, err := a.NewDisk(token)
	if err != nil {
		a.failure(w, err)
		return
	}

	orchestrator := batch.NewOrchestrator(batch.Options{
		Storage:  client,
		Remover:  remover,
		Designer: a.Designer,
		Logger:   a.Logger,
		Prices: batch.Prices{
			BackgroundRemoval: a.Config.BackgroundRemovalPrice,
			DesignEdit:        a.Config.DesignEditPrice,
		},
		FolderFileLimit:       a.Config.FolderFileLimit,
		DesignBackgroundPaths: a.Config.DesignBackgroundPaths,
	})

	flusher, canFlush := w.(http.Flusher)
	streaming := false
	emit := func(ev batch.Event) {
		if !streaming {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.WriteHeader(http.StatusOK)
			streaming = true
		}
		data, err := json.Marshal(ev)
		if err != nil {
			a.Logger.Error().Err(err).Msg("batch: encode event")
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if canFlush {
			flusher.Flush()
		}
	}

	summary, err := orchestrator.Run(r.Context(), params, emit)
	if err != nil {
		// Nothing was emitted: the base listing failed, so the upstream
		// status can still travel as a plain HTTP error.
		if !streaming {
			a.failure(w, err)
		}
		return
	}
	a.Logger.Info().
		Str("run_id", summary.RunID).
		Int("folders", summary.Totals.FoldersProcessed).
		Float64("cost", summary.Totals.TotalCost).
		Msg("batch: run complete")
}
