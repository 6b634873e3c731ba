package tasks

import (
	"fmt"
	"path/filepath"

	"github.com/desertthunder/imgx/internal/shared"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Validate Phase = iota
	Upload
	Download
	Record
	Complete
)

func (p Phase) String() string {
	switch p {
	case Validate:
		return "validate"
	case Upload:
		return "upload"
	case Download:
		return "download"
	case Record:
		return "record"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func validateUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Validate,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Checking %d files...", total),
	}
}

func uploadingUpdate(step, total int, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Upload,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] Uploading: %s...", step, total, filepath.Base(path)),
	}
}

func fileCompletedUpdate(step, total int, r FileResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Upload,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, filepath.Base(r.Path), shared.FormatSize(r.Result.Size)),
		Data:    r,
	}
}

func fileFailedUpdate(step, total int, r FileResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Upload,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, filepath.Base(r.Path), r.Err),
		Data:    r,
	}
}

func downloadUpdate(step, total int, output string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Download,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("Saved %s", output),
	}
}

func completeUpdate(result *BatchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Complete,
		Step:    result.Total,
		Total:   result.Total,
		Message: fmt.Sprintf("Done: %d succeeded, %d failed", result.Succeeded, result.Failed),
		Data:    result,
	}
}
