package tui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/probe/internal/runner"
	"github.com/tinytelemetry/probe/internal/sink"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (r *recordingSender) Send(msg tea.Msg) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func event(file string, state runner.State, total, ok, failed int) EventMsg {
	return EventMsg{
		Case:   "smoke",
		File:   file,
		State:  state,
		Total:  total,
		Counts: sink.Counts{Processed: ok + failed, Succeeded: ok, Failed: failed},
		At:     time.Now(),
	}
}

func TestFeedForwardsEvents(t *testing.T) {
	s := &recordingSender{}
	f := NewFeed(s)
	var _ runner.Observer = f

	f.Observe(runner.Event{Case: "c", File: "a.csv", State: runner.StateLoading})
	f.Done(nil)

	if len(s.msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(s.msgs))
	}
	if ev, ok := s.msgs[0].(EventMsg); !ok || ev.File != "a.csv" {
		t.Fatalf("first message = %#v", s.msgs[0])
	}
	if _, ok := s.msgs[1].(DoneMsg); !ok {
		t.Fatalf("second message = %#v", s.msgs[1])
	}
}

func TestUpdateFoldsEvents(t *testing.T) {
	m := NewDashboard("smoke")
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m.Update(event("a.csv", runner.StateDispatching, 10, 3, 1))
	m.Update(event("b.csv", runner.StateLoading, 0, 0, 0))
	m.Update(event("a.csv", runner.StateDone, 10, 8, 2))

	snap := m.Snapshot()
	if len(snap.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(snap.Files))
	}
	if snap.Succeeded != 8 || snap.Failed != 2 {
		t.Fatalf("totals ok=%d err=%d, want 8 and 2", snap.Succeeded, snap.Failed)
	}
	if !snap.Active {
		t.Fatal("expected run to be active while b.csv is loading")
	}

	view := m.View()
	for _, want := range []string{"probe: smoke", "a.csv", "b.csv", "Outcomes per file"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}

func TestDoneStopsSpinnerAndShowsError(t *testing.T) {
	m := NewDashboard("smoke")
	m.Update(DoneMsg{Err: errors.New("case broken: missing column")})

	_, cmd := m.Update(SpinnerTickMsg{})
	if cmd != nil {
		t.Fatal("spinner should stop once the run is done")
	}
	if m.Err() == nil {
		t.Fatal("expected error to be kept")
	}
	if !strings.Contains(m.View(), "case broken") {
		t.Fatal("view should show the run error")
	}
}

func TestQuitBeforeDoneIsAbort(t *testing.T) {
	m := NewDashboard("smoke")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if !m.Aborted() {
		t.Fatal("quitting mid-run should count as abort")
	}

	m = NewDashboard("smoke")
	m.Update(DoneMsg{})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if m.Aborted() {
		t.Fatal("quitting after done is not an abort")
	}
}

func TestSelectionStaysInRange(t *testing.T) {
	m := NewDashboard("smoke")
	m.Update(event("a.csv", runner.StateDone, 1, 1, 0))
	m.Update(event("b.csv", runner.StateDone, 1, 1, 0))

	down := tea.KeyMsg{Type: tea.KeyDown}
	up := tea.KeyMsg{Type: tea.KeyUp}
	for range 5 {
		m.Update(down)
	}
	if m.selected != 1 {
		t.Fatalf("selected = %d, want 1", m.selected)
	}
	for range 5 {
		m.Update(up)
	}
	if m.selected != 0 {
		t.Fatalf("selected = %d, want 0", m.selected)
	}
}

func TestRenderOutcomeChartWindow(t *testing.T) {
	files := make([]runner.FileProgress, 30)
	for i := range files {
		files[i] = runner.FileProgress{File: "f.csv", Succeeded: i, Failed: 1}
	}
	out := renderOutcomeChart(files, 29, 60)
	if !strings.Contains(out, "[30] f.csv") {
		t.Fatalf("chart title should name the selected file:\n%s", out)
	}
}
