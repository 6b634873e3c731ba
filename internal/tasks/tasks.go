// package tasks implements batch image processing against the imgx backend.
//
// The core abstraction is Processor, which validates inputs, enforces the membership allowance,
// uploads files through a rate-limited worker pool, and records every outcome.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/services"
	"github.com/desertthunder/imgx/internal/shared"
)

// ImageClient is the subset of [services.ImageService] the processor needs.
type ImageClient interface {
	Process(ctx context.Context, filename string, content []byte, opts services.ImageOptions) (*services.ImageResult, error)
	Download(ctx context.Context, ref string) ([]byte, error)
}

// HistoryRecorder persists processed entries.
type HistoryRecorder interface {
	Create(entry *models.HistoryEntry) error
}

// FileResult is the outcome for one input file.
type FileResult struct {
	Path   string
	Entry  *models.HistoryEntry
	Result *services.ImageResult
	Output string // local copy of the processed image, when downloaded
	Err    error
}

// Succeeded reports whether the backend processed the file.
func (r FileResult) Succeeded() bool {
	return r.Err == nil && r.Result != nil
}

// BatchResult aggregates a batch run.
type BatchResult struct {
	Operation    models.Operation
	Total        int
	Succeeded    int
	Failed       int
	Results      []FileResult
	ManifestPath string
	Elapsed      time.Duration
}

// Entries returns the history entries in input order.
func (b *BatchResult) Entries() []*models.HistoryEntry {
	out := make([]*models.HistoryEntry, 0, len(b.Results))
	for _, r := range b.Results {
		if r.Entry != nil {
			out = append(out, r.Entry)
		}
	}
	return out
}

// Processor runs image operations over many files.
type Processor struct {
	images  ImageClient
	history HistoryRecorder
	logger  *log.Logger
}

// NewProcessor creates a Processor. history may be nil to skip recording.
func NewProcessor(images ImageClient, history HistoryRecorder, logger *log.Logger) *Processor {
	if logger == nil {
		logger = shared.NewLogger(io.Discard)
	}
	return &Processor{
		images:  images,
		history: history,
		logger:  shared.WithLogger(logger, "component", "tasks"),
	}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (p *Processor) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// ExpandInputs resolves paths into image files. Directories contribute their direct
// children with a known image extension; files are taken as given.
func ExpandInputs(paths []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}

	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidInput, p, err)
		}
		if !info.IsDir() {
			add(p)
			continue
		}

		dirEntries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", p, err)
		}
		for _, de := range dirEntries {
			if de.IsDir() || !IsImageFile(de.Name()) {
				continue
			}
			add(filepath.Join(p, de.Name()))
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no image files found", shared.ErrMissingArgument)
	}
	return out, nil
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".avif": true,
	".bmp": true, ".gif": true, ".tif": true, ".tiff": true, ".heic": true,
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// OutputName picks the local file name for a processed image.
func OutputName(source string, r *services.ImageResult) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	ext := filepath.Ext(source)
	if r != nil && r.Format != "" {
		ext = "." + services.NormalizeFormat(r.Format)
	}
	return base + ext
}

// outputNames hands out local file names that are unique within one batch.
// Keys are compared case-insensitively so "X.webp" and "x.webp" never share a file.
type outputNames struct {
	mu    sync.Mutex
	taken map[string]bool
}

func newOutputNames() *outputNames {
	return &outputNames{taken: map[string]bool{}}
}

// claim reserves name, or name with a "-N" suffix before the extension when it is taken.
func (n *outputNames) claim(name string) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 2; n.taken[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
	n.taken[strings.ToLower(candidate)] = true
	return candidate
}
