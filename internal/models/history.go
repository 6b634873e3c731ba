package models

import (
	"fmt"
	"time"
)

// Operation is an image processing endpoint.
type Operation string

const (
	OpConvert  Operation = "convert"
	OpCompress Operation = "compress"
	OpCrop     Operation = "crop"
	OpResize   Operation = "resize"
)

// Valid reports whether o is a known operation.
func (o Operation) Valid() bool {
	switch o {
	case OpConvert, OpCompress, OpCrop, OpResize:
		return true
	}
	return false
}

// GuestSubject owns entries processed without a session.
const GuestSubject = "guest"

// HistoryEntry records one processed file, successful or not.
type HistoryEntry struct {
	id         string
	sequence   int
	subjectID  string
	operation  Operation
	sourceName string
	sourceSize int64
	resultID   string
	resultURL  string
	resultSize int64
	width      int
	height     int
	duration   time.Duration
	err        string
	createdAt  time.Time
	deletedAt  *time.Time
}

// NewHistoryEntry creates an entry for a source file about to be processed.
// An empty subjectID records the entry as [GuestSubject].
func NewHistoryEntry(subjectID string, op Operation, sourceName string, sourceSize int64) *HistoryEntry {
	if subjectID == "" {
		subjectID = GuestSubject
	}
	return &HistoryEntry{
		subjectID:  subjectID,
		operation:  op,
		sourceName: sourceName,
		sourceSize: sourceSize,
		createdAt:  time.Now(),
	}
}

func (h *HistoryEntry) ID() string { return h.id }
func (h *HistoryEntry) Sequence() int { return h.sequence }
func (h *HistoryEntry) SubjectID() string { return h.subjectID }
func (h *HistoryEntry) Operation() Operation { return h.operation }
func (h *HistoryEntry) SourceName() string { return h.sourceName }
func (h *HistoryEntry) SourceSize() int64 { return h.sourceSize }
func (h *HistoryEntry) ResultID() string { return h.resultID }
func (h *HistoryEntry) ResultURL() string { return h.resultURL }
func (h *HistoryEntry) ResultSize() int64 { return h.resultSize }
func (h *HistoryEntry) Dimensions() (int, int) { return h.width, h.height }
func (h *HistoryEntry) Duration() time.Duration { return h.duration }
func (h *HistoryEntry) ErrorMessage() string { return h.err }
func (h *HistoryEntry) CreatedAt() time.Time { return h.createdAt }
func (h *HistoryEntry) DeletedAt() *time.Time { return h.deletedAt }

// Failed reports whether the backend rejected the file.
func (h *HistoryEntry) Failed() bool { return h.err != "" }

func (h *HistoryEntry) SetID(id string) { h.id = id }
func (h *HistoryEntry) SetSequence(seq int) { h.sequence = seq }
func (h *HistoryEntry) SetCreatedAt(t time.Time) { h.createdAt = t }
func (h *HistoryEntry) SetDeletedAt(t *time.Time) { h.deletedAt = t }
func (h *HistoryEntry) SetDuration(d time.Duration) { h.duration = d }
func (h *HistoryEntry) SetErrorMessage(msg string) { h.err = msg }
func (h *HistoryEntry) SetDimensions(width, height int) {
	h.width, h.height = width, height
}

// SetResult records what the backend produced.
func (h *HistoryEntry) SetResult(id, url string, size int64) {
	h.resultID, h.resultURL, h.resultSize = id, url, size
}

// Validate checks the fields required before an entry is stored.
func (h *HistoryEntry) Validate() error {
	if h.id == "" {
		return fmt.Errorf("%w: history id is required", ErrInvalidModel)
	}
	if h.subjectID == "" {
		return fmt.Errorf("%w: subject id is required", ErrInvalidModel)
	}
	if !h.operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidModel, h.operation)
	}
	if h.sourceName == "" {
		return fmt.Errorf("%w: source name is required", ErrInvalidModel)
	}
	return nil
}
