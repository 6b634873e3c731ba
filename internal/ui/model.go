package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ProgressView ViewState = iota
	ListView
	DetailView
)

// RunFunc starts a batch and reports progress on prog. The model closes prog when it returns.
type RunFunc func(ctx context.Context, prog chan<- tasks.ProgressUpdate) (*tasks.BatchResult, error)

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	view     ViewState
	title    string
	run      RunFunc
	progress chan tasks.ProgressUpdate
	done     chan batchDoneMsg
	last     tasks.ProgressUpdate
	spinner  spinner.Model
	list     list.Model
	selected *models.HistoryEntry
	result   *tasks.BatchResult
	err      error
	width    int
	height   int
	help     help.Model
	keys     keyMap
}

// NewBatchModel creates a model that runs a batch and then lists its results.
func NewBatchModel(ctx context.Context, title string, run RunFunc) *Model {
	m := newModel(ctx, title)
	m.run = run
	m.view = ProgressView
	return m
}

// NewHistoryModel creates a model that browses existing history entries.
func NewHistoryModel(ctx context.Context, title string, entries []*models.HistoryEntry) *Model {
	m := newModel(ctx, title)
	m.view = ListView
	m.setEntries(entries)
	return m
}

func newModel(ctx context.Context, title string) *Model {
	m := &Model{
		ctx:     ctx,
		title:   title,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
	m.setEntries(nil)
	return m
}

// Result returns the finished batch, if one ran.
func (m *Model) Result() (*tasks.BatchResult, error) {
	return m.result, m.err
}

// Init starts the spinner and the batch when there is one to run.
func (m *Model) Init() tea.Cmd {
	if m.run == nil {
		return nil
	}
	return tea.Batch(m.spinner.Tick, m.start())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(max(msg.Width-4, 0), max(msg.Height-4, 0))
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case spinner.TickMsg:
		if m.view != ProgressView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.last = tasks.ProgressUpdate(msg)
		return m, m.waitForProgress()

	case batchDoneMsg:
		m.result, m.err = msg.result, msg.err
		m.progress, m.done = nil, nil
		if msg.result != nil {
			m.setEntries(resultEntries(msg.result.Operation, msg.result.Results))
		}
		m.view = ListView
		return m, nil
	}

	return m.updateList(msg)
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.view {
	case ProgressView:
		return m, nil
	case DetailView:
		switch {
		case key.Matches(msg, m.keys.back):
			m.view = ListView
			m.selected = nil
		case key.Matches(msg, m.keys.quit):
			return m, tea.Quit
		}
		return m, nil
	}

	if m.list.FilterState() == list.Filtering {
		return m.updateList(msg)
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.list.SelectedItem().(entryItem); ok {
			m.selected = item.entry
			m.view = DetailView
		}
		return m, nil
	}
	return m.updateList(msg)
}

func (m *Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.view != ListView {
		return m, nil
	}
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) setEntries(entries []*models.HistoryEntry) {
	m.list = list.New(entryItems(entries), list.NewDefaultDelegate(), max(m.width-4, 0), max(m.height-4, 0))
	m.list.Title = m.title
}

func (m *Model) start() tea.Cmd {
	m.progress = make(chan tasks.ProgressUpdate, 50)
	m.done = make(chan batchDoneMsg, 1)
	prog, done := m.progress, m.done

	go func() {
		result, err := m.run(m.ctx, prog)
		done <- batchDoneMsg{result: result, err: err}
		close(prog)
	}()

	return m.waitForProgress()
}

// waitForProgress reads one progress update, or the final result once the channel closes.
func (m *Model) waitForProgress() tea.Cmd {
	prog, done := m.progress, m.done
	return func() tea.Msg {
		if prog == nil {
			return batchDoneMsg{result: m.result, err: m.err}
		}
		update, ok := <-prog
		if !ok {
			return <-done
		}
		return progressMsg(update)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ProgressView:
		return m.renderProgress()
	case DetailView:
		return m.renderDetail()
	default:
		return m.renderList()
	}
}

func (m *Model) renderProgress() string {
	message := m.last.Message
	if message == "" {
		message = "Starting..."
	}
	return fmt.Sprintf("%s\n\n%s %s\n", Styles.Title(m.title), m.spinner.View(), message)
}

func (m *Model) renderList() string {
	header := ""
	switch {
	case m.err != nil:
		header = Styles.Err("Batch failed: %v", m.err) + "\n\n"
	case m.result != nil:
		summary := fmt.Sprintf("%d succeeded, %d failed in %s", m.result.Succeeded, m.result.Failed, m.result.Elapsed.Round(time.Millisecond))
		if m.result.Failed > 0 {
			header = Styles.Warn("%s", summary) + "\n\n"
		} else {
			header = Styles.OK("%s", summary) + "\n\n"
		}
	}
	return header + m.list.View()
}

func (m *Model) renderDetail() string {
	if m.selected == nil {
		return ""
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", Styles.Title(m.selected.SourceName()), renderEntry(m.selected), helpView)
}
