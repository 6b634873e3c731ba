package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/imgx/internal/formatter"
	"github.com/desertthunder/imgx/internal/services"
	"github.com/desertthunder/imgx/internal/shared"
	"github.com/desertthunder/imgx/internal/tasks"
	"github.com/desertthunder/imgx/internal/ui"
	"github.com/urfave/cli/v3"
)

// ImageConvert converts every input to --to.
func (r *Runner) ImageConvert(ctx context.Context, cmd *cli.Command) error {
	return r.runBatch(ctx, cmd, services.ConvertOptions{
		Format:  cmd.String("to"),
		Quality: int(cmd.Int("quality")),
		Width:   int(cmd.Int("width")),
		Height:  int(cmd.Int("height")),
	})
}

// ImageCompress compresses every input.
func (r *Runner) ImageCompress(ctx context.Context, cmd *cli.Command) error {
	return r.runBatch(ctx, cmd, services.CompressOptions{
		Quality:   int(cmd.Int("quality")),
		MaxWidth:  int(cmd.Int("max-width")),
		MaxHeight: int(cmd.Int("max-height")),
	})
}

// ImageCrop crops every input to the same rectangle.
func (r *Runner) ImageCrop(ctx context.Context, cmd *cli.Command) error {
	return r.runBatch(ctx, cmd, services.CropOptions{
		X:      int(cmd.Int("x")),
		Y:      int(cmd.Int("y")),
		Width:  int(cmd.Int("width")),
		Height: int(cmd.Int("height")),
	})
}

// ImageResize resizes every input.
func (r *Runner) ImageResize(ctx context.Context, cmd *cli.Command) error {
	return r.runBatch(ctx, cmd, services.ResizeOptions{
		Width:               int(cmd.Int("width")),
		Height:              int(cmd.Int("height")),
		MaintainAspectRatio: cmd.Bool("keep-aspect"),
	})
}

// batchOpts resolves flags against the [batch] config section.
func (r *Runner) batchOpts(cmd *cli.Command, opts services.ImageOptions) (tasks.BatchOpts, error) {
	format := cmd.String("format")
	if !formatter.ValidFormat(format) {
		return tasks.BatchOpts{}, fmt.Errorf("%w: format %q", shared.ErrInvalidFlag, format)
	}

	workers := int(cmd.Int("workers"))
	if workers <= 0 {
		workers = r.config.Batch.Workers
	}
	rate := cmd.Float("rate")
	if rate <= 0 {
		rate = r.config.Batch.Rate
	}

	return tasks.BatchOpts{
		Options:    opts,
		NumWorkers: workers,
		RateLimit:  rate,
		OutputDir:  cmd.String("out"),
		Format:     format,
		Manifest:   cmd.String("manifest"),
	}, nil
}

func (r *Runner) runBatch(ctx context.Context, cmd *cli.Command, opts services.ImageOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	bopts, err := r.batchOpts(cmd, opts)
	if err != nil {
		return err
	}
	paths, err := tasks.ExpandInputs(cmd.Args().Slice())
	if err != nil {
		return err
	}
	if err := r.init(ctx); err != nil {
		return err
	}

	s := r.currentSession(ctx)
	membership := r.membershipFor(ctx, s)
	bopts.Membership = &membership
	if s != nil {
		bopts.SubjectID = s.SubjectID
	} else {
		r.logger.Debug("processing as guest")
	}

	run := func(ctx context.Context, prog chan<- tasks.ProgressUpdate) (*tasks.BatchResult, error) {
		// built here so it picks up the file logger in interactive mode
		processor := tasks.NewProcessor(r.svc.Images, r.history, r.logger)
		return processor.Run(ctx, prog, paths, bopts)
	}

	var result *tasks.BatchResult
	if cmd.Bool("interactive") {
		result, err = r.runInteractive(ctx, fmt.Sprintf("%s %d files", opts.Operation(), len(paths)), run)
	} else {
		result, err = r.runPlain(ctx, run)
	}
	if result != nil && s != nil {
		r.recordUsage(ctx, s, result.Succeeded)
	}
	if err != nil {
		return err
	}

	if !cmd.Bool("interactive") {
		if err := formatter.Render(r.output, bopts.Format, result.Entries()); err != nil {
			return err
		}
		r.writeSummary(result)
	}
	if result.Failed > 0 && result.Succeeded == 0 {
		return fmt.Errorf("%w: all %d files failed", shared.ErrAPIRequest, result.Failed)
	}
	return nil
}

// runPlain streams progress messages to the logger while the batch runs.
func (r *Runner) runPlain(ctx context.Context, run ui.RunFunc) (*tasks.BatchResult, error) {
	prog := make(chan tasks.ProgressUpdate, 50)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range prog {
			if update.Phase == tasks.Upload && update.Data != nil {
				r.logger.Info(update.Message)
			} else {
				r.logger.Debug(update.Message, "phase", update.Phase)
			}
		}
	}()

	result, err := run(ctx, prog)
	close(prog)
	wg.Wait()
	return result, err
}

func (r *Runner) writeSummary(result *tasks.BatchResult) {
	summary := fmt.Sprintf("%d succeeded, %d failed in %s", result.Succeeded, result.Failed, result.Elapsed.Round(time.Millisecond))
	if result.Failed > 0 {
		r.writePlain("\n%s\n", ui.Styles.Warn("%s", summary))
	} else {
		r.writePlain("\n%s\n", ui.Styles.OK("%s", summary))
	}
	if result.ManifestPath != "" {
		r.writePlain("%s\n", ui.Styles.Field("Manifest", result.ManifestPath))
	}
}
