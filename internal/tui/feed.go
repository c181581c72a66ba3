package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/probe/internal/runner"
)

// EventMsg carries one runner event into the dashboard.
type EventMsg runner.Event

// DoneMsg tells the dashboard the run has finished.
type DoneMsg struct {
	Err error
}

// SpinnerTickMsg triggers a re-render for the activity spinner.
type SpinnerTickMsg struct{}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Feed forwards runner events to a running program. It implements
// runner.Observer.
type Feed struct {
	to Sender
}

// NewFeed returns a Feed that sends to s.
func NewFeed(s Sender) *Feed {
	return &Feed{to: s}
}

// Observe implements runner.Observer.
func (f *Feed) Observe(e runner.Event) {
	f.to.Send(EventMsg(e))
}

// Done reports the end of the run.
func (f *Feed) Done(err error) {
	f.to.Send(DoneMsg{Err: err})
}
