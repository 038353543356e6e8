package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/vemelin055/background-remover/internal/compositor"
	"github.com/vemelin055/background-remover/internal/providers/removal"
)

const maxUploadBytes = 32 << 20

// Process removes the background from a single uploaded image.
func (a *App) Process(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image file is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read image")
		return
	}

	variant := r.FormValue("model")
	remover, err := a.Removers.Remover(variant)
	if err != nil {
		a.failure(w, err)
		return
	}
	apiKey, err := a.Credentials.ModelKey(variant, r.FormValue("apiKey"))
	if err != nil {
		a.failure(w, err)
		return
	}

	processed, err := remover.Remove(r.Context(), removal.Request{
		Image:       image,
		APIKey:      apiKey,
		Instruction: r.FormValue("prompt"),
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("model", variant).Msg("process: removal failed")
		a.failure(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(processed)
}

// PlaceTemplate composites an uploaded image onto a sized canvas.
func (a *App) PlaceTemplate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, _, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image file is required")
		return
	}
	defer file.Close()
	image, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read image")
		return
	}

	width := formInt(r, "width", a.Config.DefaultCanvasWidth)
	height := formInt(r, "height", a.Config.DefaultCanvasHeight)
	policy := compositor.ParsePolicy(r.FormValue("policy"))

	out, err := compositor.Composite(image, width, height, policy)
	if err != nil {
		a.failure(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func formInt(r *http.Request, field string, fallback int) int {
	if v := r.FormValue(field); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
