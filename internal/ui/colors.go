package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Styles is the palette shared by command output and the TUI.
var Styles = NewPalette("#7D56F4", "#04B575", "#FF4D4D", "#FFA500", "#626262")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	label lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		label: NewBold(h).Width(12),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

func (p *Palette) Title(s string) string { return p.title.Render(s) }
func (p *Palette) Help(s string) string  { return p.help.Render(s) }

// OK renders a success line with a check mark.
func (p *Palette) OK(format string, args ...any) string {
	return p.ok.Render("✓ " + fmt.Sprintf(format, args...))
}

// Err renders a failure line with a cross.
func (p *Palette) Err(format string, args ...any) string {
	return p.err.Render("✗ " + fmt.Sprintf(format, args...))
}

// Warn renders a warning line.
func (p *Palette) Warn(format string, args ...any) string {
	return p.warn.Render("⚠ " + fmt.Sprintf(format, args...))
}

// Field renders an aligned "label value" pair.
func (p *Palette) Field(label string, value any) string {
	return p.label.Render(label) + fmt.Sprint(value)
}
