package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/vemelin055/background-remover/internal/disk"
	"github.com/vemelin055/background-remover/pkg/zip"
)

func (a *App) diskClient(w http.ResponseWriter, token string) (DiskClient, bool) {
	resolved, err := a.Credentials.StorageToken(token)
	if err != nil {
		a.failure(w, err)
		return nil, false
	}
	client, err := a.NewDisk(resolved)
	if err != nil {
		a.failure(w, err)
		return nil, false
	}
	return client, true
}

// DiskCheck reports whether a usable storage token is available.
func (a *App) DiskCheck(w http.ResponseWriter, r *http.Request) {
	token, err := a.Credentials.StorageToken(r.URL.Query().Get("token"))
	if err != nil {
		a.json(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	client, err := a.NewDisk(token)
	if err != nil {
		a.json(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	if _, err := client.AccountInfo(r.Context()); err != nil {
		a.json(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	a.json(w, http.StatusOK, map[string]any{"authenticated": true})
}

// DiskFolders lists the top-level folders of the disk.
func (a *App) DiskFolders(w http.ResponseWriter, r *http.Request) {
	client, ok := a.diskClient(w, r.URL.Query().Get("token"))
	if !ok {
		return
	}
	items, err := client.List(r.Context(), "/")
	if err != nil {
		a.failure(w, err)
		return
	}
	folders := make([]map[string]string, 0, len(items))
	for _, item := range items {
		if item.IsDir() {
			folders = append(folders, map[string]string{"name": item.Name, "path": item.Path})
		}
	}
	a.json(w, http.StatusOK, map[string]any{"folders": folders})
}

// DiskFiles lists the images directly inside a folder.
func (a *App) DiskFiles(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "path is required")
		return
	}
	client, ok := a.diskClient(w, r.URL.Query().Get("token"))
	if !ok {
		return
	}
	items, err := client.List(r.Context(), path)
	if err != nil {
		a.failure(w, err)
		return
	}
	files := make([]disk.Resource, 0, len(items))
	for _, item := range items {
		if item.IsImage() {
			files = append(files, item)
		}
	}
	a.json(w, http.StatusOK, map[string]any{"files": files})
}

// DiskStructure returns one lazily loaded level of folders and images.
func (a *App) DiskStructure(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	client, ok := a.diskClient(w, r.URL.Query().Get("token"))
	if !ok {
		return
	}
	items, err := client.List(r.Context(), path)
	if err != nil {
		// Mirror the listing contract of the original frontend: an
		// unreadable path yields an empty structure, not an error page.
		a.json(w, http.StatusOK, map[string]any{"path": path, "structure": []any{}})
		return
	}
	structure := make([]map[string]any, 0, len(items))
	for _, item := range items {
		switch {
		case item.IsDir():
			structure = append(structure, map[string]any{
				"name": item.Name, "path": item.Path, "type": "dir", "has_children": true,
			})
		case item.IsImage():
			structure = append(structure, map[string]any{
				"name": item.Name, "path": item.Path, "type": "file",
				"mime_type": item.MIMEType, "size": item.Size,
			})
		}
	}
	a.json(w, http.StatusOK, map[string]any{"path": path, "structure": structure})
}

// DiskAccountInfo returns the account behind the configured token.
func (a *App) DiskAccountInfo(w http.ResponseWriter, r *http.Request) {
	client, ok := a.diskClient(w, r.URL.Query().Get("token"))
	if !ok {
		return
	}
	info, err := client.AccountInfo(r.Context())
	if err != nil {
		a.failure(w, err)
		return
	}
	const gb = 1 << 30
	a.json(w, http.StatusOK, map[string]any{
		"login":          info.Login,
		"display_name":   info.DisplayName,
		"total_space_gb": float64(info.TotalSpace) / gb,
		"used_space_gb":  float64(info.UsedSpace) / gb,
		"free_space_gb":  float64(info.TotalSpace-info.UsedSpace) / gb,
	})
}

// DiskDownload streams one file from the disk.
func (a *App) DiskDownload(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "path is required")
		return
	}
	client, ok := a.diskClient(w, r.URL.Query().Get("token"))
	if !ok {
		return
	}
	href, err := client.DownloadLink(r.Context(), path)
	if err != nil {
		a.failure(w, err)
		return
	}
	data, mime, err := client.Download(r.Context(), href)
	if err != nil {
		a.failure(w, err)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// DiskUpload stores an uploaded file at the given disk path.
func (a *App) DiskUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	path := r.FormValue("path")
	if path == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "path is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read file")
		return
	}
	client, ok := a.diskClient(w, r.FormValue("token"))
	if !ok {
		return
	}
	mime := header.Header.Get("Content-Type")
	if err := client.Upload(r.Context(), path, data, mime); err != nil {
		a.failure(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "path": path})
}

// DiskCreateFolder creates a folder; an existing folder is success.
func (a *App) DiskCreateFolder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid form payload")
		return
	}
	path := r.FormValue("path")
	if path == "" {
		path = r.URL.Query().Get("path")
	}
	if path == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "path is required")
		return
	}
	client, ok := a.diskClient(w, r.FormValue("token"))
	if !ok {
		return
	}
	if err := client.CreateDir(r.Context(), path); err != nil {
		a.failure(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"success": true, "path": path})
}

// DiskFolderZip downloads every image of a folder into one archive.
func (a *App) DiskFolderZip(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "path is required")
		return
	}
	client, ok := a.diskClient(w, r.URL.Query().Get("token"))
	if !ok {
		return
	}
	items, err := client.List(r.Context(), path)
	if err != nil {
		a.failure(w, err)
		return
	}
	var assets []zip.Asset
	for _, item := range items {
		if !item.IsImage() {
			continue
		}
		href, err := client.DownloadLink(r.Context(), item.Path)
		if err != nil {
			a.Logger.Warn().Err(err).Str("file", item.Name).Msg("zip: skip file")
			continue
		}
		data, mime, err := client.Download(r.Context(), href)
		if err != nil {
			a.Logger.Warn().Err(err).Str("file", item.Name).Msg("zip: skip file")
			continue
		}
		assets = append(assets, zip.Asset{Filename: item.Name, MIME: mime, Data: data})
	}
	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zip", zip.SafeName(path)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
