package batch

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/vemelin055/background-remover/internal/compositor"
	"github.com/vemelin055/background-remover/internal/disk"
	"github.com/vemelin055/background-remover/internal/infra"
	"github.com/vemelin055/background-remover/internal/providers/design"
	"github.com/vemelin055/background-remover/internal/providers/removal"
)

const (
	// OutputFolderSuffix marks per-folder output directories so processing
	// artifacts are never written back into the source tree.
	OutputFolderSuffix = "_Обработанный"
	// DefaultPublicOutputRoot is the top-level private directory that
	// receives outputs of public-share runs.
	DefaultPublicOutputRoot = "Обработанные фото"

	processedSuffix = "_processed.png"
	designSuffix    = "_design.png"
)

// Storage is the slice of the disk client the orchestrator depends on.
type Storage interface {
	List(ctx context.Context, diskPath string) ([]disk.Resource, error)
	ListPublic(ctx context.Context, publicKey, subPath string) ([]disk.Resource, error)
	DownloadLink(ctx context.Context, diskPath string) (string, error)
	PublicDownloadLink(ctx context.Context, publicKey, subPath string) (string, error)
	Download(ctx context.Context, href string) ([]byte, string, error)
	Upload(ctx context.Context, diskPath string, data []byte, mime string) error
	CreateDir(ctx context.Context, diskPath string) error
}

// Designer is the best-effort design compositor dependency.
type Designer interface {
	Compose(ctx context.Context, req design.ComposeRequest) ([]byte, error)
}

// RunParams describes one batch run. Exactly one of BasePath or PublicKey is
// set; the choice selects the listing/download API variant for the whole run.
type RunParams struct {
	BasePath  string
	PublicKey string

	ModelAPIKey  string
	DesignAPIKey string
	Instruction  string

	CanvasWidth  int
	CanvasHeight int

	// OutputRoot optionally overrides where outputs are nested. Empty means
	// sibling `<folder>_Обработанный` directories for private runs and the
	// default output root for public-share runs.
	OutputRoot string
}

// Summary is the final state of a completed run.
type Summary struct {
	RunID   string
	Results []FolderResult
	Totals  Totals
}

// Options wires an Orchestrator.
type Options struct {
	Storage               Storage
	Remover               removal.Remover
	Designer              Designer
	Logger                *infra.Logger
	Prices                Prices
	FolderFileLimit       int
	DesignBackgroundPaths []string
}

// Orchestrator walks one level of remote folders and runs the sequential
// per-file pipeline: download, remove background, composite, upload, plus a
// best-effort design composite for the first file of each folder.
type Orchestrator struct {
	storage         Storage
	remover         removal.Remover
	designer        Designer
	logger          *infra.Logger
	prices          Prices
	fileLimit       int
	backgroundPaths []string
}

func NewOrchestrator(opts Options) *Orchestrator {
	fileLimit := opts.FolderFileLimit
	if fileLimit <= 0 {
		fileLimit = 5
	}
	return &Orchestrator{
		storage:         opts.Storage,
		remover:         opts.Remover,
		designer:        opts.Designer,
		logger:          opts.Logger,
		prices:          opts.Prices,
		fileLimit:       fileLimit,
		backgroundPaths: opts.DesignBackgroundPaths,
	}
}

// Run executes the batch pipeline, delivering ordered progress events through
// emit. The base folder listing happens before the first event so that
// run-level failures surface as a plain error with nothing emitted; once past
// it the run never fails. Later failures become data in the folder results,
// and the final complete event is always emitted.
func (o *Orchestrator) Run(ctx context.Context, params RunParams, emit EmitFunc) (*Summary, error) {
	folders, err := o.listFolders(ctx, params)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ledger := NewLedger(o.prices)
	emit(Event{
		Type:        EventStart,
		RunID:       runID,
		Message:     fmt.Sprintf("Starting batch processing of %d folders", len(folders)),
		FolderCount: len(folders),
	})

	if params.PublicKey != "" {
		// Best effort: per-folder creation below reports the real failure.
		if err := o.storage.CreateDir(ctx, "/"+o.publicOutputRoot(params)); err != nil {
			o.logger.Warn().Err(err).Msg("batch: create output root")
		}
	}

	results := make([]FolderResult, 0, len(folders))
	for i, folder := range folders {
		if ctx.Err() != nil {
			break
		}
		emit(Event{
			Type:        EventFolderStart,
			Message:     fmt.Sprintf("Processing folder %s (%d/%d)", folder.Name, i+1, len(folders)),
			Folder:      folder.Name,
			FolderIndex: i,
			FolderCount: len(folders),
		})
		result, err := o.processFolder(ctx, params, folder, i, ledger, emit)
		if err != nil {
			// The folder was still attempted: record it with the failure
			// and keep going.
			result = &FolderResult{
				Folder: folder.Name,
				Path:   folder.Path,
				Errors: []string{err.Error()},
			}
			o.logger.Error().Err(err).Str("folder", folder.Name).Msg("batch: folder failed")
			emit(Event{
				Type:        EventFolderError,
				Message:     fmt.Sprintf("Folder %s failed: %v", folder.Name, err),
				Folder:      folder.Name,
				FolderIndex: i,
				Error:       err.Error(),
			})
		} else {
			emit(Event{
				Type:           EventFolderComplete,
				Message:        fmt.Sprintf("Folder %s complete: %d files processed", folder.Name, result.FilesProcessed),
				Folder:         folder.Name,
				FolderIndex:    i,
				FilesProcessed: result.FilesProcessed,
				DesignCreated:  result.DesignCreated,
			})
		}
		results = append(results, *result)
	}

	totals := Totals{
		FoldersProcessed:   len(results),
		BackgroundRemovals: ledger.BackgroundRemovals(),
		DesignsCreated:     ledger.DesignEdits(),
		TotalCost:          ledger.Total(),
	}
	emit(Event{
		Type:    EventComplete,
		RunID:   runID,
		Message: fmt.Sprintf("Batch complete: %d folders, total cost $%.3f", totals.FoldersProcessed, totals.TotalCost),
		Results: results,
		Totals:  &totals,
	})
	return &Summary{RunID: runID, Results: results, Totals: totals}, nil
}

func (o *Orchestrator) listFolders(ctx context.Context, params RunParams) ([]disk.Resource, error) {
	var items []disk.Resource
	var err error
	if params.PublicKey != "" {
		items, err = o.storage.ListPublic(ctx, params.PublicKey, "")
	} else {
		items, err = o.storage.List(ctx, params.BasePath)
	}
	if err != nil {
		return nil, err
	}
	folders := items[:0:0]
	for _, item := range items {
		if item.IsDir() && !strings.HasSuffix(item.Name, OutputFolderSuffix) {
			folders = append(folders, item)
		}
	}
	return folders, nil
}

func (o *Orchestrator) processFolder(ctx context.Context, params RunParams, folder disk.Resource, folderIndex int, ledger *Ledger, emit EmitFunc) (*FolderResult, error) {
	result := &FolderResult{Folder: folder.Name, Path: folder.Path}

	outputDir := o.outputDir(params, folder.Name)
	if err := o.storage.CreateDir(ctx, outputDir); err != nil {
		return nil, fmt.Errorf("create output folder: %w", err)
	}

	files, err := o.listImages(ctx, params, folder)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		return result, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	if len(files) > o.fileLimit {
		files = files[:o.fileLimit]
	} else if len(files) < o.fileLimit {
		o.logger.Warn().
			Str("folder", folder.Name).
			Int("files", len(files)).
			Int("limit", o.fileLimit).
			Msg("batch: folder has fewer images than the per-folder limit")
	}

	for i, file := range files {
		if ctx.Err() != nil {
			break
		}
		emit(Event{
			Type:        EventFileStart,
			Message:     fmt.Sprintf("Processing %s (%d/%d)", file.Name, i+1, len(files)),
			Folder:      folder.Name,
			FolderIndex: folderIndex,
			File:        file.Name,
			FileIndex:   i,
			FileCount:   len(files),
		})
		if err := o.processFile(ctx, params, folder, file, i, outputDir, ledger, result, emit); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file.Name, err))
			o.logger.Warn().Err(err).Str("file", file.Name).Msg("batch: file failed")
			continue
		}
		result.FilesProcessed++
		emit(Event{
			Type:      EventFileComplete,
			Message:   fmt.Sprintf("Finished %s", file.Name),
			Folder:    folder.Name,
			File:      file.Name,
			FileIndex: i,
		})
	}
	return result, nil
}

func (o *Orchestrator) listImages(ctx context.Context, params RunParams, folder disk.Resource) ([]disk.Resource, error) {
	var items []disk.Resource
	var err error
	if params.PublicKey != "" {
		items, err = o.storage.ListPublic(ctx, params.PublicKey, folder.Path)
	} else {
		items, err = o.storage.List(ctx, folder.Path)
	}
	if err != nil {
		return nil, err
	}
	images := items[:0:0]
	for _, item := range items {
		if item.IsImage() {
			images = append(images, item)
		}
	}
	return images, nil
}

func (o *Orchestrator) processFile(ctx context.Context, params RunParams, folder, file disk.Resource, fileIndex int, outputDir string, ledger *Ledger, result *FolderResult, emit EmitFunc) error {
	data, _, err := o.download(ctx, params, file)
	if err != nil {
		return err
	}

	emit(Event{
		Type:    EventProcessing,
		Message: fmt.Sprintf("Removing background from %s", file.Name),
		Folder:  folder.Name,
		File:    file.Name,
	})
	cutout, err := o.remover.Remove(ctx, removal.Request{
		Image:       data,
		APIKey:      params.ModelAPIKey,
		Instruction: params.Instruction,
	})
	if err != nil {
		return err
	}
	// One billable removal per successful call, however many fallback
	// candidates were tried inside the adapter.
	ledger.AddBackgroundRemoval()

	composited, err := compositor.Composite(cutout, params.CanvasWidth, params.CanvasHeight, compositor.PolicyFit)
	if err != nil {
		return err
	}

	emit(Event{
		Type:    EventSaving,
		Message: fmt.Sprintf("Uploading %s", file.Name),
		Folder:  folder.Name,
		File:    file.Name,
	})
	base := baseName(file.Name)
	if err := o.storage.Upload(ctx, joinPath(outputDir, base+processedSuffix), composited, "image/png"); err != nil {
		return err
	}

	if fileIndex == 0 {
		o.composeDesign(ctx, params, folder, file, cutout, outputDir, ledger, result, emit)
	}
	return nil
}

// composeDesign runs the best-effort design branch for the first file of a
// folder. Its failures never fail the file or the folder; they are recorded
// in the folder's error list.
func (o *Orchestrator) composeDesign(ctx context.Context, params RunParams, folder, file disk.Resource, cutout []byte, outputDir string, ledger *Ledger, result *FolderResult, emit EmitFunc) {
	if o.designer == nil {
		return
	}
	emit(Event{
		Type:    EventDesignStart,
		Message: fmt.Sprintf("Creating design composite for %s", file.Name),
		Folder:  folder.Name,
		File:    file.Name,
	})
	record := func(err error) {
		result.Errors = append(result.Errors, fmt.Sprintf("design %s: %v", file.Name, err))
		o.logger.Warn().Err(err).Str("file", file.Name).Msg("batch: design composite failed")
	}
	background, err := o.designBackground()
	if err != nil {
		record(err)
		return
	}
	composed, err := o.designer.Compose(ctx, design.ComposeRequest{
		Background:  background,
		Foreground:  cutout,
		Instruction: params.Instruction,
		APIKey:      params.DesignAPIKey,
	})
	if err != nil {
		record(err)
		return
	}
	ledger.AddDesignEdit()
	base := baseName(file.Name)
	if err := o.storage.Upload(ctx, joinPath(outputDir, base+designSuffix), composed, "image/png"); err != nil {
		record(err)
		return
	}
	result.DesignCreated = true
	emit(Event{
		Type:          EventDesignComplete,
		Message:       fmt.Sprintf("Design composite created for %s", file.Name),
		Folder:        folder.Name,
		File:          file.Name,
		DesignCreated: true,
	})
}

func (o *Orchestrator) download(ctx context.Context, params RunParams, file disk.Resource) ([]byte, string, error) {
	var href string
	var err error
	if params.PublicKey != "" {
		href, err = o.storage.PublicDownloadLink(ctx, params.PublicKey, file.Path)
	} else {
		href, err = o.storage.DownloadLink(ctx, file.Path)
	}
	if err != nil {
		return nil, "", err
	}
	return o.storage.Download(ctx, href)
}

func (o *Orchestrator) outputDir(params RunParams, folderName string) string {
	name := norm.NFC.String(folderName + OutputFolderSuffix)
	if params.PublicKey != "" {
		return joinPath("/"+o.publicOutputRoot(params), name)
	}
	if params.OutputRoot != "" {
		return joinPath(joinPath(params.BasePath, params.OutputRoot), name)
	}
	return joinPath(params.BasePath, name)
}

func (o *Orchestrator) publicOutputRoot(params RunParams) string {
	if params.OutputRoot != "" {
		return params.OutputRoot
	}
	return DefaultPublicOutputRoot
}

// designBackground resolves the fixed branded background asset: the first
// existing path among the configured candidates wins.
func (o *Orchestrator) designBackground() ([]byte, error) {
	for _, candidate := range o.backgroundPaths {
		data, err := os.ReadFile(candidate)
		if err == nil {
			return data, nil
		}
	}
	return nil, fmt.Errorf("no design background asset found in %v", o.backgroundPaths)
}

func baseName(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

func joinPath(dir, name string) string {
	return strings.TrimRight(dir, "/") + "/" + strings.TrimLeft(name, "/")
}
