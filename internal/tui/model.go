// Package tui renders live progress of a probe run in the terminal.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/probe/internal/runner"
)

const spinnerInterval = 120 * time.Millisecond

// DashboardModel is the Bubble Tea model for the run dashboard.
type DashboardModel struct {
	title   string
	tracker *runner.Tracker
	keys    KeyMap
	help    help.Model
	bar     progress.Model

	width    int
	height   int
	selected int

	started  time.Time
	finished time.Time
	done     bool
	aborted  bool
	err      error
	now      func() time.Time
}

// NewDashboard creates a dashboard titled with the run's name.
func NewDashboard(title string) *DashboardModel {
	return &DashboardModel{
		title:   title,
		tracker: runner.NewTracker(),
		keys:    DefaultKeyMap(),
		help:    help.New(),
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:   80,
		height:  24,
		started: time.Now(),
		now:     time.Now,
	}
}

func (m *DashboardModel) Init() tea.Cmd {
	return spinnerTick()
}

func (m *DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case EventMsg:
		m.tracker.Observe(runner.Event(msg))
		return m, nil

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.finished = m.now()
		return m, nil

	case SpinnerTickMsg:
		if m.done {
			return m, nil
		}
		return m, spinnerTick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *DashboardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.ForceQuit):
		m.aborted = !m.done
		return m, tea.Quit
	case key.Matches(msg, m.keys.Quit):
		m.aborted = !m.done
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.tracker.Snapshot().Files)-1 {
			m.selected++
		}
	}
	return m, nil
}

// Snapshot returns the progress folded so far.
func (m *DashboardModel) Snapshot() runner.Progress {
	return m.tracker.Snapshot()
}

// Aborted reports whether the view was closed before the run finished.
func (m *DashboardModel) Aborted() bool {
	return m.aborted
}

// Err returns the error reported with DoneMsg.
func (m *DashboardModel) Err() error {
	return m.err
}

func spinnerTick() tea.Cmd {
	return tea.Tick(spinnerInterval, func(_ time.Time) tea.Msg {
		return SpinnerTickMsg{}
	})
}
