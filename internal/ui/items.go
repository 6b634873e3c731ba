package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/shared"
	"github.com/desertthunder/imgx/internal/tasks"
)

var _ list.DefaultItem = entryItem{}

// entryItem wraps [models.HistoryEntry] to implement [list.DefaultItem].
type entryItem struct {
	entry *models.HistoryEntry
}

func (i entryItem) FilterValue() string {
	return string(i.entry.Operation()) + " " + i.entry.SourceName()
}

func (i entryItem) Title() string {
	mark := "✓"
	if i.entry.Failed() {
		mark = "✗"
	}
	return fmt.Sprintf("%s %s", mark, filepath.Base(i.entry.SourceName()))
}

func (i entryItem) Description() string {
	if i.entry.Failed() {
		return fmt.Sprintf("%s • %s", i.entry.Operation(), i.entry.ErrorMessage())
	}
	return fmt.Sprintf("%s • %s → %s", i.entry.Operation(),
		shared.FormatSize(i.entry.SourceSize()), shared.FormatSize(i.entry.ResultSize()))
}

func entryItems(entries []*models.HistoryEntry) []list.Item {
	items := make([]list.Item, 0, len(entries))
	for _, e := range entries {
		if e != nil {
			items = append(items, entryItem{entry: e})
		}
	}
	return items
}

// resultEntries turns batch results into entries, synthesizing one for files that
// failed before an entry was created.
func resultEntries(op models.Operation, results []tasks.FileResult) []*models.HistoryEntry {
	out := make([]*models.HistoryEntry, 0, len(results))
	for _, r := range results {
		if r.Entry != nil {
			out = append(out, r.Entry)
			continue
		}
		e := models.NewHistoryEntry("", op, r.Path, 0)
		if r.Err != nil {
			e.SetErrorMessage(r.Err.Error())
		}
		out = append(out, e)
	}
	return out
}

func renderEntry(e *models.HistoryEntry) string {
	var b strings.Builder
	line := func(label string, v any) {
		b.WriteString(Styles.Field(label, v))
		b.WriteString("\n")
	}

	line("Source", e.SourceName())
	line("Operation", e.Operation())
	line("Size", shared.FormatSize(e.SourceSize()))
	if e.Failed() {
		line("Error", e.ErrorMessage())
	} else {
		line("Result", e.ResultURL())
		line("New size", shared.FormatSize(e.ResultSize()))
		if w, h := e.Dimensions(); w > 0 && h > 0 {
			line("Dimensions", fmt.Sprintf("%dx%d", w, h))
		}
		line("Took", e.Duration().Round(time.Millisecond))
	}
	if !e.CreatedAt().IsZero() {
		line("At", e.CreatedAt().Local().Format(time.DateTime))
	}
	return b.String()
}
