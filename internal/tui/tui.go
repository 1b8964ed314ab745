// Package tui implements the Bubble Tea terminal user interface for an
// interactive review session.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/revu/internal/diff"
	"github.com/sprite-ai/revu/internal/model"
	"github.com/sprite-ai/revu/internal/session"
)

// issueEntry is one selectable row: a finding plus its identity.
type issueEntry struct {
	Category string
	Issue    model.Issue
	Key      model.IssueKey
}

// opDoneMsg reports a finished remote operation.
type opDoneMsg struct {
	op  string
	err error
}

// Model is the top-level Bubble Tea model. It owns no workflow state; the
// controller does, and the model re-snapshots after every operation.
type Model struct {
	ctrl *session.Controller
	snap session.Session

	// UI state
	width  int
	height int

	cursor  int // selected row in the issue list
	scroll  int // issue list scroll position
	entries []issueEntry

	spin spinner.Model
	busy bool

	status   string // transient message in the status bar
	statusIsErr bool

	showHelp     bool
	showDiff     bool
	showFeedback bool

	diffLines []string // rendered diff of the last fix
}

// New creates a TUI model driving the given controller.
func New(ctrl *session.Controller) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorPurple)

	// Init kicks off the first analysis, so the model starts busy.
	m := Model{ctrl: ctrl, spin: sp, busy: true, status: "analyzing..."}
	m.refresh()
	return m
}

// refresh re-reads the controller state and rebuilds the issue rows.
func (m *Model) refresh() {
	m.snap = m.ctrl.Snapshot()

	m.entries = nil
	if res := m.snap.CurrentResult; res != nil {
		for _, cat := range res.Categories() {
			for _, iss := range res.IssuesByCategory[cat] {
				m.entries = append(m.entries, issueEntry{
					Category: cat,
					Issue:    iss,
					Key:      model.Key(cat, iss),
				})
			}
		}
	}
	if m.cursor >= len(m.entries) {
		m.cursor = len(m.entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	// Analysis starts as soon as the session opens.
	return tea.Batch(m.spin.Tick, m.analyzeCmd())
}

func (m Model) analyzeCmd() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return opDoneMsg{op: "analyze", err: ctrl.Analyze(context.Background())}
	}
}

func (m Model) fixCmd(selectedOnly bool) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return opDoneMsg{op: "fix", err: ctrl.Fix(context.Background(), selectedOnly)}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case opDoneMsg:
		m.busy = false
		m.refresh()
		if msg.err != nil {
			m.status = msg.err.Error()
			m.statusIsErr = true
			return m, nil
		}
		m.statusIsErr = false
		switch msg.op {
		case "analyze":
			m.status = fmt.Sprintf("analysis complete: %d unique issues", m.snap.CurrentResult.TotalUniqueIssues)
		case "fix":
			m.updateDiff()
			d := m.ctrl.Delta()
			if d.Measured {
				m.status = fmt.Sprintf("fix applied: %+.1f points, %d issues resolved", d.ScoreImprovement, d.IssuesFixed)
			} else {
				m.status = "fix applied"
			}
			m.showDiff = len(m.diffLines) > 0
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keys.Quit) {
		return m, tea.Quit
	}
	if m.busy {
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}

	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, keys.Toggle):
		if len(m.entries) == 0 {
			break
		}
		if err := m.ctrl.ToggleSelection(m.entries[m.cursor].Key); err != nil {
			m.status = err.Error()
			m.statusIsErr = true
			break
		}
		m.refresh()
		m.status = ""

	case key.Matches(msg, keys.Analyze):
		m.busy = true
		m.status = "analyzing..."
		m.statusIsErr = false
		m.showDiff = false
		m.showFeedback = false
		return m, tea.Batch(m.spin.Tick, m.analyzeCmd())

	case key.Matches(msg, keys.Fix):
		if m.snap.SelectedCount() == 0 {
			m.status = session.ErrNoIssuesSelected.Error()
			m.statusIsErr = true
			break
		}
		m.busy = true
		m.status = "fixing selected issues..."
		m.statusIsErr = false
		return m, tea.Batch(m.spin.Tick, m.fixCmd(true))

	case key.Matches(msg, keys.FixAll):
		m.busy = true
		m.status = "fixing all issues..."
		m.statusIsErr = false
		return m, tea.Batch(m.spin.Tick, m.fixCmd(false))

	case key.Matches(msg, keys.Diff):
		if len(m.diffLines) > 0 {
			m.showDiff = !m.showDiff
			m.showFeedback = false
		}

	case key.Matches(msg, keys.Feedback):
		if m.snap.FixResult != nil {
			m.showFeedback = !m.showFeedback
			m.showDiff = false
		}
	}

	return m, nil
}

// updateDiff renders the before/after diff of the last fix. Needs git in
// PATH; skipped quietly without it.
func (m *Model) updateDiff() {
	m.diffLines = nil
	if m.snap.PreFixCode == "" || m.snap.PreFixCode == m.snap.SourceCode {
		return
	}
	name := "code"
	if len(m.snap.Manifest) == 1 {
		name = m.snap.Manifest[0]
	}
	f, err := diff.Compare(name, m.snap.PreFixCode, m.snap.SourceCode)
	if err != nil || f == nil {
		return
	}
	m.diffLines = splitDiffLines(f.Raw)
}

// Run starts an interactive review session over the controller.
func Run(ctrl *session.Controller) error {
	p := tea.NewProgram(New(ctrl), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
