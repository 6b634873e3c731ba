package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/imgx/internal/formatter"
	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/shared"
	"github.com/desertthunder/imgx/internal/ui"
	"github.com/urfave/cli/v3"
)

// historyEntries applies the shared filter flags. Without --all only the signed-in
// account's entries, or guest entries, are returned.
func (r *Runner) historyEntries(ctx context.Context, cmd *cli.Command) ([]*models.HistoryEntry, error) {
	if err := r.init(ctx); err != nil {
		return nil, err
	}

	criteria := map[string]any{"limit": int(cmd.Int("limit"))}
	if op := cmd.String("op"); op != "" {
		if !models.Operation(op).Valid() {
			return nil, fmt.Errorf("%w: unknown operation %q", shared.ErrInvalidFlag, op)
		}
		criteria["operation"] = models.Operation(op)
	}
	if cmd.Bool("failed") {
		criteria["failed"] = true
	}
	if !cmd.Bool("all") {
		subject := models.GuestSubject
		if s := r.currentSession(ctx); s != nil {
			subject = s.SubjectID
		}
		criteria["subject_id"] = subject
	}

	return r.history.List(criteria)
}

// HistoryList prints recent entries.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	format := cmd.String("format")
	if !formatter.ValidFormat(format) {
		return fmt.Errorf("%w: format %q", shared.ErrInvalidFlag, format)
	}

	entries, err := r.historyEntries(ctx, cmd)
	if err != nil {
		return err
	}
	if len(entries) == 0 && formatter.Extension(format) == ".txt" {
		return r.writePlain("No history yet.\n")
	}
	return formatter.Render(r.output, format, entries)
}

// HistoryExport writes entries to --output.
func (r *Runner) HistoryExport(ctx context.Context, cmd *cli.Command) error {
	format, path := cmd.String("format"), cmd.String("output")
	if !formatter.ValidFormat(format) {
		return fmt.Errorf("%w: format %q", shared.ErrInvalidFlag, format)
	}

	entries, err := r.historyEntries(ctx, cmd)
	if err != nil {
		return err
	}
	if err := formatter.WriteManifest(entries, format, path); err != nil {
		return err
	}

	r.logger.Info("history exported", "path", path, "entries", len(entries))
	return r.writePlain("%s\n", ui.Styles.OK("Exported %d entries to %s", len(entries), path))
}

// HistoryDelete soft-deletes one entry.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: entry id", shared.ErrMissingArgument)
	}
	if err := r.init(ctx); err != nil {
		return err
	}
	if err := r.history.Delete(id); err != nil {
		return err
	}
	return r.writePlain("%s\n", ui.Styles.OK("Deleted %s", id))
}
