package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vemelin055/background-remover/internal/disk"
	"github.com/vemelin055/background-remover/internal/domain"
	"github.com/vemelin055/background-remover/internal/infra"
	"github.com/vemelin055/background-remover/internal/providers/design"
	"github.com/vemelin055/background-remover/internal/providers/removal"
)

type fakeStorage struct {
	listings map[string][]disk.Resource
	listErr  map[string]error
	payloads map[string][]byte
	uploads  map[string][]byte
	created  []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		listings: map[string][]disk.Resource{},
		listErr:  map[string]error{},
		payloads: map[string][]byte{},
		uploads:  map[string][]byte{},
	}
}

// addFolder registers a folder under base with image files inside it.
func (s *fakeStorage) addFolder(base, name string, files ...string) {
	folderPath := strings.TrimRight(base, "/") + "/" + name
	s.listings[base] = append(s.listings[base], disk.Resource{Name: name, Path: folderPath, Type: "dir"})
	for _, file := range files {
		filePath := folderPath + "/" + file
		s.listings[folderPath] = append(s.listings[folderPath], disk.Resource{
			Name: file, Path: filePath, Type: "file", MIMEType: "image/jpeg",
		})
		s.payloads["href://"+filePath] = []byte("img:" + name + "/" + file)
	}
}

func (s *fakeStorage) List(ctx context.Context, diskPath string) ([]disk.Resource, error) {
	if err := s.listErr[diskPath]; err != nil {
		return nil, err
	}
	return s.listings[diskPath], nil
}

func (s *fakeStorage) ListPublic(ctx context.Context, publicKey, subPath string) ([]disk.Resource, error) {
	return s.List(ctx, subPath)
}

func (s *fakeStorage) DownloadLink(ctx context.Context, diskPath string) (string, error) {
	return "href://" + diskPath, nil
}

func (s *fakeStorage) PublicDownloadLink(ctx context.Context, publicKey, subPath string) (string, error) {
	return "href://" + subPath, nil
}

func (s *fakeStorage) Download(ctx context.Context, href string) ([]byte, string, error) {
	data, ok := s.payloads[href]
	if !ok {
		return nil, "", fmt.Errorf("no payload for %s", href)
	}
	return data, "image/jpeg", nil
}

func (s *fakeStorage) Upload(ctx context.Context, diskPath string, data []byte, mime string) error {
	s.uploads[diskPath] = data
	return nil
}

func (s *fakeStorage) CreateDir(ctx context.Context, diskPath string) error {
	s.created = append(s.created, diskPath)
	return nil
}

type fakeRemover struct {
	output []byte
	failOn map[string]bool
	calls  int
}

func (f *fakeRemover) Remove(ctx context.Context, req removal.Request) ([]byte, error) {
	f.calls++
	if f.failOn[string(req.Image)] {
		return nil, errors.New("model rejected image")
	}
	return f.output, nil
}

type fakeDesigner struct {
	err   error
	calls int
}

func (f *fakeDesigner) Compose(ctx context.Context, req design.ComposeRequest) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("design-bytes"), nil
}

func cutoutPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode cutout: %v", err)
	}
	return buf.Bytes()
}

func backgroundPath(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bg.png")
	if err := os.WriteFile(p, []byte("background"), 0o644); err != nil {
		t.Fatalf("write background: %v", err)
	}
	return p
}

type fixture struct {
	storage  *fakeStorage
	remover  *fakeRemover
	designer *fakeDesigner
	orch     *Orchestrator
	events   []Event
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	logger := infra.Logger(zerolog.New(io.Discard))
	f := &fixture{
		storage:  newFakeStorage(),
		remover:  &fakeRemover{output: cutoutPNG(t), failOn: map[string]bool{}},
		designer: &fakeDesigner{},
	}
	opts := Options{
		Storage:               f.storage,
		Remover:               f.remover,
		Designer:              f.designer,
		Logger:                &logger,
		Prices:                Prices{BackgroundRemoval: 0.018, DesignEdit: 0.14},
		FolderFileLimit:       5,
		DesignBackgroundPaths: []string{backgroundPath(t)},
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.orch = NewOrchestrator(opts)
	return f
}

func (f *fixture) run(t *testing.T, params RunParams) *Summary {
	t.Helper()
	summary, err := f.orch.Run(context.Background(), params, func(ev Event) { f.events = append(f.events, ev) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return summary
}

func (f *fixture) eventTypes() []EventType {
	types := make([]EventType, len(f.events))
	for i, ev := range f.events {
		types[i] = ev.Type
	}
	return types
}

func TestRunProcessesFoldersSequentially(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.addFolder("/base", "alpha", "f1.jpg", "f2.jpg", "f3.jpg", "f4.jpg", "f5.jpg")
	f.storage.addFolder("/base", "beta", "g1.jpg", "g2.jpg", "g3.jpg", "g4.jpg", "g5.jpg")

	params := RunParams{BasePath: "/base", CanvasWidth: 300, CanvasHeight: 300}
	summary := f.run(t, params)

	if summary.RunID == "" {
		t.Error("run id is empty")
	}
	if len(summary.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(summary.Results))
	}
	for _, result := range summary.Results {
		if result.FilesProcessed != 5 {
			t.Errorf("folder %s: files processed = %d, want 5", result.Folder, result.FilesProcessed)
		}
		if !result.DesignCreated {
			t.Errorf("folder %s: design not created", result.Folder)
		}
		if len(result.Errors) != 0 {
			t.Errorf("folder %s: errors = %v", result.Folder, result.Errors)
		}
	}

	totals := summary.Totals
	if totals.FoldersProcessed != 2 || totals.BackgroundRemovals != 10 || totals.DesignsCreated != 2 {
		t.Fatalf("totals = %+v", totals)
	}
	if math.Abs(totals.TotalCost-0.46) > 1e-9 {
		t.Fatalf("total cost = %v, want 0.46", totals.TotalCost)
	}

	if _, ok := f.storage.uploads["/base/alpha_Обработанный/f1_processed.png"]; !ok {
		t.Error("processed upload for alpha/f1 missing")
	}
	if string(f.storage.uploads["/base/alpha_Обработанный/f1_design.png"]) != "design-bytes" {
		t.Error("design upload for alpha missing")
	}
	if len(f.storage.uploads) != 12 {
		t.Errorf("uploads = %d, want 12 (10 processed + 2 designs)", len(f.storage.uploads))
	}

	types := f.eventTypes()
	if types[0] != EventStart {
		t.Errorf("first event = %s, want start", types[0])
	}
	if types[len(types)-1] != EventComplete {
		t.Errorf("last event = %s, want complete", types[len(types)-1])
	}
	last := f.events[len(f.events)-1]
	if last.Totals == nil || len(last.Results) != 2 {
		t.Error("complete event carries no summary")
	}
	if f.events[0].FolderCount != 2 {
		t.Errorf("start folder count = %d", f.events[0].FolderCount)
	}
}

func TestRunCapsFilesPerFolder(t *testing.T) {
	f := newFixture(t, nil)
	// Listed out of order on purpose: the cap applies after sorting by name.
	f.storage.addFolder("/base", "alpha", "f7.jpg", "f3.jpg", "f1.jpg", "f5.jpg", "f2.jpg", "f6.jpg", "f4.jpg")

	summary := f.run(t, RunParams{BasePath: "/base", CanvasWidth: 300, CanvasHeight: 300})

	if got := summary.Results[0].FilesProcessed; got != 5 {
		t.Fatalf("files processed = %d, want 5", got)
	}
	if f.remover.calls != 5 {
		t.Errorf("remover calls = %d, want 5", f.remover.calls)
	}
	for _, name := range []string{"f1", "f2", "f3", "f4", "f5"} {
		if _, ok := f.storage.uploads["/base/alpha_Обработанный/"+name+"_processed.png"]; !ok {
			t.Errorf("%s not processed", name)
		}
	}
	for _, name := range []string{"f6", "f7"} {
		if _, ok := f.storage.uploads["/base/alpha_Обработанный/"+name+"_processed.png"]; ok {
			t.Errorf("%s processed past the limit", name)
		}
	}
}

func TestRunEmptyFolder(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.addFolder("/base", "empty")

	summary := f.run(t, RunParams{BasePath: "/base"})

	result := summary.Results[0]
	if result.FilesProcessed != 0 || len(result.Errors) != 0 || result.DesignCreated {
		t.Fatalf("result = %+v", result)
	}
	types := f.eventTypes()
	if types[len(types)-2] != EventFolderComplete {
		t.Errorf("event before complete = %s, want folder_complete", types[len(types)-2])
	}
}

func TestRunFileFailureDoesNotStopFolder(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.addFolder("/base", "alpha", "f1.jpg", "f2.jpg", "f3.jpg", "f4.jpg", "f5.jpg")
	f.remover.failOn["img:alpha/f3.jpg"] = true

	summary := f.run(t, RunParams{BasePath: "/base", CanvasWidth: 300, CanvasHeight: 300})

	result := summary.Results[0]
	if result.FilesProcessed != 4 {
		t.Errorf("files processed = %d, want 4", result.FilesProcessed)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "f3.jpg") {
		t.Errorf("errors = %v", result.Errors)
	}
	if !result.DesignCreated {
		t.Error("design should still come from the first file")
	}
	if summary.Totals.BackgroundRemovals != 4 {
		t.Errorf("removals billed = %d, want 4", summary.Totals.BackgroundRemovals)
	}
}

func TestRunFirstFileFailureSkipsDesign(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.addFolder("/base", "alpha", "f1.jpg", "f2.jpg")
	f.remover.failOn["img:alpha/f1.jpg"] = true

	summary := f.run(t, RunParams{BasePath: "/base", CanvasWidth: 300, CanvasHeight: 300})

	if summary.Results[0].DesignCreated {
		t.Error("design created without a first-file cutout")
	}
	if f.designer.calls != 0 {
		t.Errorf("designer calls = %d, want 0", f.designer.calls)
	}
}

func TestRunBaseListingFailureEmitsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.listErr["/base"] = errors.Join(domain.NewFailure(404, "disk: not found"), domain.ErrUpstreamNotFound)

	_, err := f.orch.Run(context.Background(), RunParams{BasePath: "/base"}, func(ev Event) { f.events = append(f.events, ev) })
	if !errors.Is(err, domain.ErrUpstreamNotFound) {
		t.Fatalf("err = %v, want ErrUpstreamNotFound", err)
	}
	if len(f.events) != 0 {
		t.Fatalf("events = %v, want none", f.eventTypes())
	}
}

func TestRunFolderListingFailureIsIsolated(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.addFolder("/base", "alpha")
	f.storage.addFolder("/base", "beta", "g1.jpg")
	f.storage.listErr["/base/alpha"] = errors.New("share revoked")

	summary := f.run(t, RunParams{BasePath: "/base", CanvasWidth: 300, CanvasHeight: 300})

	if len(summary.Results) != 2 {
		t.Fatalf("results = %d, want one per attempted folder", len(summary.Results))
	}
	alpha, beta := summary.Results[0], summary.Results[1]
	if len(alpha.Errors) != 1 || alpha.FilesProcessed != 0 {
		t.Errorf("alpha = %+v", alpha)
	}
	if beta.FilesProcessed != 1 {
		t.Errorf("beta = %+v", beta)
	}
	var sawFolderError bool
	for _, ev := range f.events {
		if ev.Type == EventFolderError && ev.Folder == "alpha" {
			sawFolderError = true
		}
	}
	if !sawFolderError {
		t.Error("no folder_error event for alpha")
	}
	if f.eventTypes()[len(f.events)-1] != EventComplete {
		t.Error("complete event missing after folder failure")
	}
}

func TestRunSkipsOutputFolders(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.addFolder("/base", "alpha", "f1.jpg")
	f.storage.addFolder("/base", "alpha"+OutputFolderSuffix, "f1_processed.png")

	summary := f.run(t, RunParams{BasePath: "/base", CanvasWidth: 300, CanvasHeight: 300})

	if len(summary.Results) != 1 || summary.Results[0].Folder != "alpha" {
		t.Fatalf("results = %+v", summary.Results)
	}
}

func TestRunPublicShareWritesUnderOutputRoot(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.addFolder("", "alpha", "f1.jpg")

	summary := f.run(t, RunParams{PublicKey: "share-key", CanvasWidth: 300, CanvasHeight: 300})

	if summary.Results[0].FilesProcessed != 1 {
		t.Fatalf("results = %+v", summary.Results)
	}
	wantDir := "/" + DefaultPublicOutputRoot + "/alpha" + OutputFolderSuffix
	if _, ok := f.storage.uploads[wantDir+"/f1_processed.png"]; !ok {
		t.Fatalf("uploads = %v, want output under %s", keys(f.storage.uploads), wantDir)
	}
	var createdRoot bool
	for _, p := range f.storage.created {
		if p == "/"+DefaultPublicOutputRoot {
			createdRoot = true
		}
	}
	if !createdRoot {
		t.Errorf("created dirs = %v, output root missing", f.storage.created)
	}
}

func TestRunDesignFailureIsBestEffort(t *testing.T) {
	f := newFixture(t, nil)
	f.storage.addFolder("/base", "alpha", "f1.jpg", "f2.jpg")
	f.designer.err = errors.New("model overloaded")

	summary := f.run(t, RunParams{BasePath: "/base", CanvasWidth: 300, CanvasHeight: 300})

	result := summary.Results[0]
	if result.FilesProcessed != 2 {
		t.Errorf("files processed = %d, want 2", result.FilesProcessed)
	}
	if result.DesignCreated {
		t.Error("design marked created despite failure")
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "design") {
		t.Errorf("errors = %v", result.Errors)
	}
	if summary.Totals.DesignsCreated != 0 {
		t.Errorf("designs billed = %d, want 0", summary.Totals.DesignsCreated)
	}
	if math.Abs(summary.Totals.TotalCost-2*0.018) > 1e-9 {
		t.Errorf("total cost = %v", summary.Totals.TotalCost)
	}
}

func TestRunMissingDesignBackgroundRecordsError(t *testing.T) {
	f := newFixture(t, func(opts *Options) {
		opts.DesignBackgroundPaths = []string{"/nonexistent/bg.png"}
	})
	f.storage.addFolder("/base", "alpha", "f1.jpg")

	summary := f.run(t, RunParams{BasePath: "/base", CanvasWidth: 300, CanvasHeight: 300})

	result := summary.Results[0]
	if result.DesignCreated || len(result.Errors) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if f.designer.calls != 0 {
		t.Errorf("designer calls = %d, want 0", f.designer.calls)
	}
}

func keys(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
