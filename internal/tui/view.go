package tui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/tinytelemetry/probe/internal/runner"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m *DashboardModel) View() string {
	snap := m.tracker.Snapshot()
	w := max(m.width, 40)

	sections := []string{
		m.renderHeader(snap, w),
		m.renderOverall(snap, w),
		m.renderFiles(snap, w),
	}
	if len(snap.Files) > 0 {
		sections = append(sections, renderOutcomeChart(snap.Files, m.selected, w))
	}
	if m.done && m.err != nil {
		sections = append(sections, errorStyle.Render("run failed: "+m.err.Error()))
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderHeader renders the title bar with elapsed time and run state.
func (m *DashboardModel) renderHeader(snap runner.Progress, width int) string {
	base := lipgloss.NewStyle().Background(ColorNavy).Foreground(ColorWhite)

	end := m.now()
	if m.done {
		end = m.finished
	}
	elapsed := end.Sub(m.started).Truncate(time.Second)

	var status string
	switch {
	case m.done && m.err != nil:
		status = "failed"
	case m.done:
		status = "done"
	case snap.Active:
		frame := spinnerFrames[m.now().UnixMilli()/spinnerInterval.Milliseconds()%int64(len(spinnerFrames))]
		status = frame + " " + snap.Current
	default:
		status = "waiting"
	}

	left := lipgloss.NewStyle().Inherit(base).Bold(true).Render(" probe: " + m.title)
	right := base.Render(fmt.Sprintf("%s  %s ", status, elapsed))
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + base.Render(strings.Repeat(" ", gap)) + right
}

// renderOverall renders the aggregate progress bar.
func (m *DashboardModel) renderOverall(snap runner.Progress, width int) string {
	total := 0
	for _, f := range snap.Files {
		total += f.Total
	}
	pct := 0.0
	if total > 0 {
		pct = float64(snap.Processed) / float64(total)
	}

	m.bar.Width = max(width-30, 10)
	counts := fmt.Sprintf(" %d/%d  ok %d  err %d", snap.Processed, total, snap.Succeeded, snap.Failed)
	return m.bar.ViewAs(pct) + counts
}

// renderFiles renders one line per input file.
func (m *DashboardModel) renderFiles(snap runner.Progress, width int) string {
	style := sectionStyle.Width(width - 2)
	title := chartTitleStyle.Render("Files")
	if len(snap.Files) == 0 {
		return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, helpStyle.Render("No files started")))
	}

	lines := []string{title}
	for i, f := range snap.Files {
		marker := "  "
		if i == m.selected {
			marker = "> "
		}
		state := stateStyle(f.State == runner.StateDone, f.State == runner.StateFailed).
			Render(fmt.Sprintf("%-11s", f.State))
		line := fmt.Sprintf("%s%s %s/%s  %d/%d  ok %d  err %d",
			marker, state, f.Case, filepath.Base(f.File), f.Processed, f.Total, f.Succeeded, f.Failed)
		if f.Error != "" && i == m.selected {
			line += "  " + errorStyle.Render(f.Error)
		}
		lines = append(lines, line)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
