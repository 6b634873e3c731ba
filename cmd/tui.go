package main

import (
	"context"
	"fmt"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/imgx/internal/shared"
	"github.com/desertthunder/imgx/internal/tasks"
	"github.com/desertthunder/imgx/internal/ui"
	"github.com/urfave/cli/v3"
)

// tuiLogPath receives logs while a TUI owns the terminal.
var tuiLogPath = filepath.Join("tmp", "imgx-tui.log")

// TUI launches the interactive history browser.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	entries, err := r.historyEntries(ctx, cmd)
	if err != nil {
		return err
	}

	restore, err := r.logToFile()
	if err != nil {
		return err
	}
	defer restore()

	model := ui.NewHistoryModel(ctx, "Processing History", entries)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

// runInteractive runs a batch behind the progress view and returns its result.
func (r *Runner) runInteractive(ctx context.Context, title string, run ui.RunFunc) (*tasks.BatchResult, error) {
	restore, err := r.logToFile()
	if err != nil {
		return nil, err
	}
	defer restore()

	// quitting the TUI early stops the batch
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := ui.NewBatchModel(runCtx, title, run)
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	if result == nil && err == nil {
		return nil, fmt.Errorf("%w: batch interrupted", context.Canceled)
	}
	return result, err
}

// logToFile redirects logging to [tuiLogPath] and returns a func that restores it.
func (r *Runner) logToFile() (func(), error) {
	fileLogger, f, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())

	previous := r.logger
	r.SetLogger(fileLogger)
	return func() {
		r.SetLogger(previous)
		f.Close()
	}, nil
}
