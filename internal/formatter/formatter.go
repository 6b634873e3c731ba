// package formatter renders processing history to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/shared"
)

// Formats lists the accepted values for --format.
var Formats = []string{"json", "csv", "markdown", "txt"}

// ValidFormat reports whether f is one of [Formats]. "md" and "text" are accepted aliases.
func ValidFormat(f string) bool {
	switch normalize(f) {
	case "json", "csv", "markdown", "txt":
		return true
	}
	return false
}

func normalize(f string) string {
	switch f = strings.ToLower(f); f {
	case "md":
		return "markdown"
	case "text":
		return "txt"
	case "":
		return "json"
	}
	return f
}

// Extension returns the file extension for format f.
func Extension(f string) string {
	switch normalize(f) {
	case "csv":
		return ".csv"
	case "markdown":
		return ".md"
	case "txt":
		return ".txt"
	default:
		return ".json"
	}
}

// Record is the exported view of a [models.HistoryEntry].
type Record struct {
	ID         string    `json:"id"`
	Sequence   int       `json:"sequence"`
	Operation  string    `json:"operation"`
	Source     string    `json:"source"`
	SourceSize int64     `json:"sourceSize"`
	ResultID   string    `json:"resultId,omitempty"`
	ResultURL  string    `json:"resultUrl,omitempty"`
	ResultSize int64     `json:"resultSize,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
	DurationMS int64     `json:"durationMs"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ToRecord flattens an entry for export.
func ToRecord(h *models.HistoryEntry) Record {
	w, ht := h.Dimensions()
	return Record{
		ID:         h.ID(),
		Sequence:   h.Sequence(),
		Operation:  string(h.Operation()),
		Source:     h.SourceName(),
		SourceSize: h.SourceSize(),
		ResultID:   h.ResultID(),
		ResultURL:  h.ResultURL(),
		ResultSize: h.ResultSize(),
		Width:      w,
		Height:     ht,
		DurationMS: h.Duration().Milliseconds(),
		Error:      h.ErrorMessage(),
		CreatedAt:  h.CreatedAt(),
	}
}

// ToJSON converts entries to an indented JSON array.
func ToJSON(entries []*models.HistoryEntry) ([]byte, error) {
	records := make([]Record, 0, len(entries))
	for _, e := range entries {
		records = append(records, ToRecord(e))
	}
	return shared.MarshalJSON(records, true)
}

// ToCSV converts entries to CSV with a header row.
func ToCSV(entries []*models.HistoryEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Sequence", "Operation", "Source", "SourceSize", "ResultID", "ResultURL", "ResultSize", "Width", "Height", "DurationMS", "Error", "CreatedAt"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range entries {
		r := ToRecord(e)
		record := []string{
			strconv.Itoa(r.Sequence),
			r.Operation,
			r.Source,
			strconv.FormatInt(r.SourceSize, 10),
			r.ResultID,
			r.ResultURL,
			strconv.FormatInt(r.ResultSize, 10),
			strconv.Itoa(r.Width),
			strconv.Itoa(r.Height),
			strconv.FormatInt(r.DurationMS, 10),
			r.Error,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown converts entries to a Markdown report with a summary and a table.
func ToMarkdown(title string, entries []*models.HistoryEntry) ([]byte, error) {
	var buf bytes.Buffer

	if title == "" {
		title = "Processing History"
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)

	ok, failed, saved := summarize(entries)
	fmt.Fprintf(&buf, "**Files**: %d (%d succeeded, %d failed)\n", len(entries), ok, failed)
	fmt.Fprintf(&buf, "**Saved**: %s\n\n", shared.FormatSize(saved))

	buf.WriteString("| # | Operation | Source | Size | Result | Status |\n")
	buf.WriteString("|---|-----------|--------|------|--------|--------|\n")
	for i, e := range entries {
		status := "ok"
		if e.Failed() {
			status = "failed: " + escapeCell(e.ErrorMessage())
		}
		result := "-"
		if e.ResultURL() != "" {
			result = fmt.Sprintf("[%s](%s)", shared.FormatSize(e.ResultSize()), e.ResultURL())
		}
		fmt.Fprintf(&buf, "| %d | %s | %s | %s | %s | %s |\n",
			i+1, e.Operation(), escapeCell(e.SourceName()), shared.FormatSize(e.SourceSize()), result, status)
	}

	return buf.Bytes(), nil
}

// ToText converts entries to one line each.
func ToText(entries []*models.HistoryEntry) ([]byte, error) {
	var buf bytes.Buffer

	ok, failed, _ := summarize(entries)
	fmt.Fprintf(&buf, "Files: %d (%d succeeded, %d failed)\n\n", len(entries), ok, failed)

	for i, e := range entries {
		if e.Failed() {
			fmt.Fprintf(&buf, "%d. %s %s: %s\n", i+1, e.Operation(), e.SourceName(), e.ErrorMessage())
			continue
		}
		fmt.Fprintf(&buf, "%d. %s %s -> %s (%s)\n", i+1, e.Operation(), e.SourceName(), e.ResultURL(), shared.FormatSize(e.ResultSize()))
	}

	return buf.Bytes(), nil
}

// Render writes entries to w in the given format.
func Render(w io.Writer, format string, entries []*models.HistoryEntry) error {
	var (
		data []byte
		err  error
	)
	switch normalize(format) {
	case "csv":
		data, err = ToCSV(entries)
	case "markdown":
		data, err = ToMarkdown("", entries)
	case "txt":
		data, err = ToText(entries)
	case "json":
		data, err = ToJSON(entries)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidFlag, format)
	}
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}

// WriteManifest renders entries to path, creating or truncating it.
func WriteManifest(entries []*models.HistoryEntry, format, path string) error {
	var buf bytes.Buffer
	if err := Render(&buf, format, entries); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// summarize counts outcomes and the bytes saved by successful entries.
func summarize(entries []*models.HistoryEntry) (ok, failed int, saved int64) {
	for _, e := range entries {
		if e.Failed() {
			failed++
			continue
		}
		ok++
		if d := e.SourceSize() - e.ResultSize(); d > 0 && e.ResultSize() > 0 {
			saved += d
		}
	}
	return ok, failed, saved
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
