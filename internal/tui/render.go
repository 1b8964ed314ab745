package tui

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/revu/internal/aggregate"
	"github.com/sprite-ai/revu/internal/diff"
	"github.com/sprite-ai/revu/internal/score"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	listWidth := m.width * 3 / 5
	sideWidth := m.width - listWidth - 1

	contentHeight := m.height - 2 // status bar

	var right string
	switch {
	case m.showDiff:
		right = m.renderDiffView(sideWidth, contentHeight)
	case m.showFeedback:
		right = m.renderFeedback(sideWidth, contentHeight)
	default:
		scorePanel := m.renderScorePanel(sideWidth)
		detail := m.renderDetail(sideWidth, contentHeight-lipgloss.Height(scorePanel))
		right = lipgloss.JoinVertical(lipgloss.Left, scorePanel, detail)
	}

	list := m.renderIssueList(listWidth, contentHeight)
	main := lipgloss.JoinHorizontal(lipgloss.Top, list, " ", right)

	return lipgloss.JoinVertical(lipgloss.Left, main, m.renderStatusBar())
}

func (m Model) renderIssueList(width, height int) string {
	innerHeight := height - 2 // borders
	innerWidth := width - 4   // borders + padding

	if len(m.entries) == 0 {
		msg := "No issues."
		if m.snap.CurrentResult == nil {
			msg = "No analysis yet. Press a to analyze."
		}
		if m.busy {
			msg = m.spin.View() + " " + m.status
		}
		return issueListStyle.Width(width).Height(innerHeight).Render(msg)
	}

	// Build display rows: a header per category, then its findings.
	type row struct {
		text    string
		isEntry bool
		entry   int
	}
	var rows []row
	cursorRow := 0
	lastCat := ""
	for i, e := range m.entries {
		if e.Category != lastCat {
			lastCat = e.Category
			rows = append(rows, row{text: categoryHeaderStyle.Render(strings.ToUpper(e.Category))})
		}
		if i == m.cursor {
			cursorRow = len(rows)
		}
		rows = append(rows, row{isEntry: true, entry: i})
	}

	// Keep the cursor in view.
	start := m.scroll
	if cursorRow < start {
		start = cursorRow
	}
	if cursorRow >= start+innerHeight {
		start = cursorRow - innerHeight + 1
	}

	var b strings.Builder
	end := start + innerHeight
	if end > len(rows) {
		end = len(rows)
	}
	for i := start; i < end; i++ {
		r := rows[i]
		if !r.isEntry {
			b.WriteString(r.text)
		} else {
			b.WriteString(m.renderIssueRow(r.entry, innerWidth))
		}
		if i < end-1 {
			b.WriteByte('\n')
		}
	}

	return issueListStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) renderIssueRow(i, width int) string {
	e := m.entries[i]

	mark := "[ ]"
	if m.snap.Selected(e.Key) {
		mark = "[x]"
	}

	loc := "    -"
	if e.Issue.Line > 0 {
		loc = fmt.Sprintf("%5d", e.Issue.Line)
	}

	sev := severityStyle(string(e.Issue.Severity)).Render(fmt.Sprintf("%-8s", e.Issue.Severity))

	desc := e.Issue.Description
	maxDesc := width - 22
	if maxDesc > 0 && len(desc) > maxDesc {
		desc = desc[:maxDesc-1] + "…"
	}

	line := fmt.Sprintf("%s %s %s %s", mark, loc, sev, desc)
	if i == m.cursor {
		return issueItemCursorStyle.Render(line)
	}
	return issueItemStyle.Render(line)
}

func (m Model) renderScorePanel(width int) string {
	var b strings.Builder
	b.WriteString(panelHeaderStyle.Render("Score"))
	b.WriteByte('\n')

	res := m.snap.CurrentResult
	if res == nil {
		b.WriteString(helpBarStyle.Render("no analysis yet"))
		return scorePanelStyle.Width(width).Render(b.String())
	}

	b.WriteString(fmt.Sprintf("%s  %s\n",
		scoreStyle(res.OverallScore).Render(fmt.Sprintf("%.1f/100", res.OverallScore)),
		score.Interpret(res.OverallScore)))

	for _, cat := range res.Categories() {
		if s, ok := res.CategoryScores[cat]; ok {
			b.WriteString(fmt.Sprintf("  %-12s %5.1f\n", cat, s))
		}
	}
	b.WriteString(fmt.Sprintf("issues: %d unique, %d selected", res.TotalUniqueIssues, m.snap.SelectedCount()))

	if d := m.ctrl.Delta(); d.Measured {
		style := deltaUpStyle
		if d.ScoreImprovement < 0 {
			style = deltaDownStyle
		}
		b.WriteByte('\n')
		b.WriteString(style.Render(fmt.Sprintf("%+.1f points", d.ScoreImprovement)))
		b.WriteString(fmt.Sprintf("  fixed %d, remaining %d", d.IssuesFixed, d.IssuesRemaining))
	}

	return scorePanelStyle.Width(width).Render(b.String())
}

func (m Model) renderDetail(width, height int) string {
	innerHeight := height - 2
	if innerHeight < 1 {
		innerHeight = 1
	}

	if len(m.entries) == 0 {
		return detailStyle.Width(width).Height(innerHeight).Render("")
	}

	e := m.entries[m.cursor]
	var b strings.Builder
	b.WriteString(panelHeaderStyle.Render(e.Category))
	b.WriteByte('\n')

	if e.Issue.Line > 0 {
		unit, local := m.locate(e.Issue.Line)
		if unit != "" {
			b.WriteString(helpBarStyle.Render(fmt.Sprintf("%s:%d", unit, local)))
		} else {
			b.WriteString(helpBarStyle.Render(fmt.Sprintf("line %d", e.Issue.Line)))
		}
		b.WriteByte('\n')
		if snippet := m.renderSnippet(e.Issue.Line); snippet != "" {
			b.WriteString(snippet)
			b.WriteByte('\n')
		}
	}

	b.WriteString(wrap(e.Issue.Description, width-4))
	if e.Issue.Suggestion != "" {
		b.WriteString("\n\n")
		b.WriteString(suggestionStyle.Render(wrap(e.Issue.Suggestion, width-4)))
	}
	if e.Issue.SourceAgent != "" {
		b.WriteString("\n\n")
		b.WriteString(helpBarStyle.Render("from " + e.Issue.SourceAgent))
	}

	return detailStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) renderDiffView(width, height int) string {
	innerHeight := height - 2

	var b strings.Builder
	b.WriteString(panelHeaderStyle.Render("Fix diff"))
	b.WriteByte('\n')

	visible := innerHeight - 2
	if visible < 1 {
		visible = 1
	}
	lines := m.diffLines
	if len(lines) > visible {
		lines = lines[:visible]
	}
	for i, line := range lines {
		b.WriteString(styleDiffLine(line, width-4))
		if i < len(lines)-1 {
			b.WriteByte('\n')
		}
	}

	return detailStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) renderFeedback(width, height int) string {
	innerHeight := height - 2

	var b strings.Builder
	b.WriteString(panelHeaderStyle.Render("Fix feedback"))
	b.WriteByte('\n')
	b.WriteString(formatFeedback(m.snap.FixResult.Feedback, width-4))

	return detailStyle.Width(width).Height(innerHeight).Render(b.String())
}

func (m Model) renderStatusBar() string {
	left := " " + string(m.snap.Phase)
	if m.busy {
		left = " " + m.spin.View() + " " + string(m.snap.Phase)
	}

	msg := m.status
	style := statusBarStyle
	if m.statusIsErr {
		style = statusErrorStyle
	}

	right := "? help  q quit "

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(msg) - lipgloss.Width(right) - 2
	if gap < 0 {
		gap = 0
	}
	return style.Width(m.width).Render(left + " " + msg + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder

	b.WriteString(panelHeaderStyle.Render("revu — Keyboard Shortcuts"))
	b.WriteString("\n\n")

	helpItems := []struct{ key, desc string }{
		{"↑/k", "Previous issue"},
		{"↓/j", "Next issue"},
		{"space/x", "Toggle issue selection"},
		{"a", "Analyze (or re-analyze) the code"},
		{"f", "Fix selected issues"},
		{"F", "Fix all issues"},
		{"d", "Show diff of the last fix"},
		{"v", "Show fix feedback"},
		{"?", "Toggle this help"},
		{"q", "Quit"},
	}

	for _, item := range helpItems {
		b.WriteString(fmt.Sprintf("  %s  %s\n",
			helpKeyStyle.Width(12).Render(item.key),
			item.desc,
		))
	}

	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press ? to close help"))

	return b.String()
}

// renderSnippet shows the source lines around a finding, syntax highlighted
// for the detected language.
func (m Model) renderSnippet(line int) string {
	lines := strings.Split(m.snap.SourceCode, "\n")
	if line < 1 || line > len(lines) {
		return ""
	}

	start := line - 3
	if start < 0 {
		start = 0
	}
	end := line + 2
	if end > len(lines) {
		end = len(lines)
	}

	highlighted := diff.HighlightSource(m.snap.Language, lines[start:end])

	var b strings.Builder
	for i, hl := range highlighted {
		n := start + i + 1
		marker := "  "
		if n == line {
			marker = "> "
		}
		b.WriteString(helpBarStyle.Render(fmt.Sprintf("%s%4d │ ", marker, n)))
		for _, tok := range hl.Tokens {
			if tok.Color != "" {
				b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(tok.Color)).Render(tok.Text))
			} else {
				b.WriteString(tok.Text)
			}
		}
		if i < len(highlighted)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// locate maps an aggregated-blob line back to its source unit.
func (m Model) locate(line int) (string, int) {
	if len(m.snap.Manifest) < 2 {
		if len(m.snap.Manifest) == 1 {
			return m.snap.Manifest[0], line
		}
		return "", line
	}
	return aggregate.Attribute(m.snap.SourceCode, line)
}

func styleDiffLine(line string, width int) string {
	if width > 0 && len(line) > width {
		line = line[:width]
	}
	switch {
	case strings.HasPrefix(line, "@@"):
		return diffHunkStyle.Render(line)
	case strings.HasPrefix(line, "+"):
		return diffAddedStyle.Render(line)
	case strings.HasPrefix(line, "-"):
		return diffDeletedStyle.Render(line)
	default:
		return diffContextStyle.Render(line)
	}
}

func splitDiffLines(raw string) []string {
	raw = strings.TrimRight(raw, "\n")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}

// formatFeedback pretty-prints the service's free-form feedback structure.
func formatFeedback(raw json.RawMessage, width int) string {
	if len(raw) == 0 {
		return helpBarStyle.Render("no feedback")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return wrap(s, width)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// wrap is a crude word wrapper for the detail pane.
func wrap(s string, width int) string {
	if width < 10 {
		return s
	}
	words := strings.Fields(s)
	var b strings.Builder
	lineLen := 0
	for i, w := range words {
		if lineLen > 0 && lineLen+1+len(w) > width {
			b.WriteByte('\n')
			lineLen = 0
		} else if i > 0 {
			b.WriteByte(' ')
			lineLen++
		}
		b.WriteString(w)
		lineLen += len(w)
	}
	return b.String()
}
