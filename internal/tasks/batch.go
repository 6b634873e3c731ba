package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/imgx/internal/formatter"
	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/services"
	"github.com/desertthunder/imgx/internal/shared"
	"golang.org/x/time/rate"
)

const (
	defaultWorkers = 3
	maxWorkers     = 8
	defaultRate    = 2.0
)

// BatchOpts contains configuration for a batch run.
type BatchOpts struct {
	Options    services.ImageOptions // Operation and its parameters
	SubjectID  string                // Recorded on history entries
	Membership *models.Membership    // Allowance to check before uploading; nil skips the check
	NumWorkers int                   // Concurrent uploads (default: 3, max: 8)
	RateLimit  float64               // Uploads per second (default: 2)
	OutputDir  string                // Download processed images here when set
	Format     string                // Manifest format: json, csv, markdown, txt
	Manifest   string                // Manifest path; empty skips writing one
}

// batchRun is the state shared by the workers of one [Processor.Run].
type batchRun struct {
	opts    BatchOpts
	limiter *rate.Limiter
	names   *outputNames
	prog    chan<- ProgressUpdate
}

type batchJob struct {
	index int
	total int
	path  string
}

type batchOutcome struct {
	index  int
	result FileResult
}

// Run processes every path with opts.Options.
//
// Files are uploaded by a worker pool that shares one rate limiter. A failed file does not stop
// the batch; its error is kept on its [FileResult]. History entries are recorded in completion
// order from a single goroutine. Results are returned in input order.
func (p *Processor) Run(ctx context.Context, prog chan<- ProgressUpdate, paths []string, opts BatchOpts) (*BatchResult, error) {
	if opts.Options == nil {
		return nil, fmt.Errorf("%w: no operation given", shared.ErrMissingArgument)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no input files", shared.ErrMissingArgument)
	}
	if err := opts.Options.Validate(); err != nil {
		return nil, err
	}
	if m := opts.Membership; m != nil && !m.Allow(len(paths)) {
		return nil, fmt.Errorf("%w: %d files requested, %d remaining today on the %s plan",
			shared.ErrQuotaExceeded, len(paths), m.Remaining(), m.Tier)
	}

	if opts.NumWorkers <= 0 {
		opts.NumWorkers = defaultWorkers
	}
	opts.NumWorkers = min(opts.NumWorkers, maxWorkers, len(paths))
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRate
	}

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	start := time.Now()
	op := opts.Options.Operation()
	result := &BatchResult{
		Operation: op,
		Total:     len(paths),
		Results:   make([]FileResult, len(paths)),
	}
	logger := p.logger.With("operation", op, "files", len(paths))
	logger.Info("batch started", "workers", opts.NumWorkers, "rate", opts.RateLimit)

	p.sendProgress(prog, validateUpdate(len(paths)))

	run := &batchRun{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		names:   newOutputNames(),
		prog:    prog,
	}
	jobs := make(chan batchJob, len(paths))
	outcomes := make(chan batchOutcome, len(paths))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go p.worker(ctx, &wg, run, jobs, outcomes)
	}

	for i, path := range paths {
		jobs <- batchJob{index: i, total: len(paths), path: path}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	completed := 0
	for out := range outcomes {
		completed++
		r := out.result

		if r.Entry != nil && p.history != nil {
			if err := p.history.Create(r.Entry); err != nil {
				logger.Warn("failed to record history", "file", r.Path, "err", err)
			}
		}

		if r.Succeeded() {
			result.Succeeded++
			p.sendProgress(prog, fileCompletedUpdate(completed, len(paths), r))
		} else {
			result.Failed++
			p.sendProgress(prog, fileFailedUpdate(completed, len(paths), r))
		}
		result.Results[out.index] = r
	}

	result.Elapsed = time.Since(start)
	logger.Info("batch finished", "succeeded", result.Succeeded, "failed", result.Failed, "elapsed", result.Elapsed)

	if opts.Manifest != "" {
		if err := formatter.WriteManifest(result.Entries(), opts.Format, opts.Manifest); err != nil {
			return result, fmt.Errorf("batch completed but failed to write manifest: %w", err)
		}
		result.ManifestPath = opts.Manifest
	}

	p.sendProgress(prog, completeUpdate(result))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// worker processes jobs until the channel closes. Cancelled jobs are still reported so every
// input has a result.
func (p *Processor) worker(ctx context.Context, wg *sync.WaitGroup, run *batchRun, jobs <-chan batchJob, outcomes chan<- batchOutcome) {
	defer wg.Done()

	for job := range jobs {
		if err := run.limiter.Wait(ctx); err != nil {
			outcomes <- batchOutcome{index: job.index, result: FileResult{Path: job.path, Err: err}}
			continue
		}

		p.sendProgress(run.prog, uploadingUpdate(job.index+1, job.total, job.path))
		outcomes <- batchOutcome{index: job.index, result: p.processFile(ctx, job.path, run)}
	}
}

// processFile uploads a single file and, if asked, saves the processed copy.
func (p *Processor) processFile(ctx context.Context, path string, run *batchRun) FileResult {
	r := FileResult{Path: path}
	opts := run.opts

	content, err := shared.VerifyAndReadFile(path)
	if err != nil {
		r.Err = err
		return r
	}

	op := opts.Options.Operation()
	entry := models.NewHistoryEntry(opts.SubjectID, op, filepath.Base(path), int64(len(content)))
	r.Entry = entry

	start := time.Now()
	res, err := p.images.Process(ctx, filepath.Base(path), content, opts.Options)
	entry.SetDuration(time.Since(start))
	if err != nil {
		entry.SetErrorMessage(err.Error())
		r.Err = err
		return r
	}

	entry.SetResult(res.ID, res.ProcessedURL, res.Size)
	entry.SetDimensions(res.Width, res.Height)
	r.Result = res

	if opts.OutputDir != "" && res.ProcessedURL != "" {
		out, err := p.save(ctx, opts.OutputDir, run.names.claim(OutputName(path, res)), res)
		if err != nil {
			p.logger.Warn("processed but could not download", "file", path, "err", err)
		} else {
			r.Output = out
			p.sendProgress(run.prog, downloadUpdate(1, 1, out))
		}
	}
	return r
}

// save writes the processed copy of res to dir/name. name must already be claimed for this run.
func (p *Processor) save(ctx context.Context, dir, name string, res *services.ImageResult) (string, error) {
	data, err := p.images.Download(ctx, res.ProcessedURL)
	if err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", errors.New("empty download")
	}

	out := filepath.Join(dir, name)
	if err := os.WriteFile(out, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", out, err)
	}
	return out, nil
}
