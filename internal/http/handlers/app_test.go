package handlers

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vemelin055/background-remover/internal/disk"
	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/infra"
	"github.com/vemelin055/background-remover/internal/infra/credentials"
	"github.com/vemelin055/background-remover/internal/providers/removal"
)

type removerFunc func(ctx context.Context, req removal.Request) ([]byte, error)

func (f removerFunc) Remove(ctx context.Context, req removal.Request) ([]byte, error) {
	return f(ctx, req)
}

type fakeResolver map[string]removal.Remover

func (f fakeResolver) Remover(variant string) (removal.Remover, error) {
	if r, ok := f[variant]; ok {
		return r, nil
	}
	return nil, domain.NewFailure(400, "unknown model %q", variant)
}

type fakeDisk struct {
	listings map[string][]disk.Resource
	listErr  map[string]error
	payloads map[string][]byte
	uploads  map[string][]byte
}

func newFakeDisk() *fakeDisk {
	return &fakeDisk{
		listings: map[string][]disk.Resource{},
		listErr:  map[string]error{},
		payloads: map[string][]byte{},
		uploads:  map[string][]byte{},
	}
}

func (d *fakeDisk) addFolder(base, name string, files ...string) {
	folderPath := base + "/" + name
	d.listings[base] = append(d.listings[base], disk.Resource{Name: name, Path: folderPath, Type: "dir"})
	for _, file := range files {
		filePath := folderPath + "/" + file
		d.listings[folderPath] = append(d.listings[folderPath], disk.Resource{
			Name: file, Path: filePath, Type: "file", MIMEType: "image/jpeg",
		})
		d.payloads["href://"+filePath] = []byte("raw:" + file)
	}
}

func (d *fakeDisk) List(ctx context.Context, diskPath string) ([]disk.Resource, error) {
	if err := d.listErr[diskPath]; err != nil {
		return nil, err
	}
	return d.listings[diskPath], nil
}

func (d *fakeDisk) ListPublic(ctx context.Context, publicKey, subPath string) ([]disk.Resource, error) {
	return d.List(ctx, subPath)
}

func (d *fakeDisk) DownloadLink(ctx context.Context, diskPath string) (string, error) {
	return "href://" + diskPath, nil
}

func (d *fakeDisk) PublicDownloadLink(ctx context.Context, publicKey, subPath string) (string, error) {
	return "href://" + subPath, nil
}

func (d *fakeDisk) Download(ctx context.Context, href string) ([]byte, string, error) {
	data, ok := d.payloads[href]
	if !ok {
		return nil, "", fmt.Errorf("no payload for %s", href)
	}
	return data, "image/jpeg", nil
}

func (d *fakeDisk) Upload(ctx context.Context, diskPath string, data []byte, mime string) error {
	d.uploads[diskPath] = data
	return nil
}

func (d *fakeDisk) CreateDir(ctx context.Context, diskPath string) error { return nil }

func (d *fakeDisk) AccountInfo(ctx context.Context) (*disk.AccountInfo, error) {
	return &disk.AccountInfo{Login: "tester", TotalSpace: 1 << 30}, nil
}

func testConfig() *infra.Config {
	return &infra.Config{
		DefaultCanvasWidth:     300,
		DefaultCanvasHeight:    300,
		FolderFileLimit:        5,
		BackgroundRemovalPrice: 0.018,
		DesignEditPrice:        0.14,
	}
}

func newTestApp(cfg *infra.Config, d *fakeDisk, removers fakeResolver) *App {
	logger := infra.Logger(zerolog.New(io.Discard))
	return &App{
		Config:      cfg,
		Logger:      &logger,
		Credentials: credentials.NewStore(cfg),
		Removers:    removers,
		NewDisk: func(token string) (DiskClient, error) {
			return d, nil
		},
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, imageData []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if imageData != nil {
		part, err := mw.CreateFormFile("image", "photo.jpg")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(imageData); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, mw.FormDataContentType()
}
