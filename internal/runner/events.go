package runner

import (
	"slices"
	"sync"
	"time"

	"github.com/tinytelemetry/probe/internal/sink"
)

// State is the lifecycle position of one input file.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateDispatching
	StateDraining
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event reports progress of one input file.
type Event struct {
	Case   string
	File   string
	RunID  string
	State  State
	Total  int // tasks planned for the file
	Counts sink.Counts
	Err    error
	At     time.Time
}

// Observer receives runner events. Observe is called from the runner's
// goroutine and must not block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// FileProgress is the latest known state of one input file.
type FileProgress struct {
	Case      string    `json:"case"`
	File      string    `json:"file"`
	RunID     string    `json:"run_id,omitempty"`
	State     State     `json:"state"`
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress is a point-in-time view of a whole run.
type Progress struct {
	Active    bool           `json:"active"`
	Current   string         `json:"current,omitempty"`
	Processed int            `json:"processed"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Files     []FileProgress `json:"files"`
}

// Tracker folds events into a Progress snapshot. It is safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	order []string
	files map[string]*FileProgress
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{files: make(map[string]*FileProgress)}
}

// Observe implements Observer.
func (t *Tracker) Observe(e Event) {
	key := e.Case + "\x00" + e.File
	t.mu.Lock()
	defer t.mu.Unlock()

	fp, ok := t.files[key]
	if !ok {
		fp = &FileProgress{Case: e.Case, File: e.File, StartedAt: e.At}
		t.files[key] = fp
		t.order = append(t.order, key)
	}
	fp.State = e.State
	if e.RunID != "" {
		fp.RunID = e.RunID
	}
	if e.Total > 0 {
		fp.Total = e.Total
	}
	fp.Processed = e.Counts.Processed
	fp.Succeeded = e.Counts.Succeeded
	fp.Failed = e.Counts.Failed
	if e.Err != nil {
		fp.Error = e.Err.Error()
	}
	fp.UpdatedAt = e.At
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p := Progress{Files: make([]FileProgress, 0, len(t.order))}
	for _, key := range t.order {
		fp := *t.files[key]
		p.Files = append(p.Files, fp)
		p.Processed += fp.Processed
		p.Succeeded += fp.Succeeded
		p.Failed += fp.Failed
		if fp.State != StateDone && fp.State != StateFailed {
			p.Active = true
			p.Current = fp.Case + ": " + fp.File
		}
	}
	return p
}

// Cases returns the case names seen so far, in order.
func (t *Tracker) Cases() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []string
	for _, key := range t.order {
		name := t.files[key].Case
		if !slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}
