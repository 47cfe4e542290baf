package supervisor

import (
	"sync"
	"time"
)

type State string

const (
	StatePending  State = "pending"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateBackoff  State = "backoff"
	StateExited   State = "exited"
	StateFailed   State = "failed"
	StateStopped  State = "stopped"
	StatePanicked State = "panicked"
)

// Status is a point-in-time view of one supervised process.
type Status struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Pid         int       `json:"pid,omitempty"`
	Attempts    int       `json:"attempts"`
	RetriesLeft int       `json:"retriesLeft"`
	ExitCode    *int      `json:"exitCode,omitempty"`
	AttemptID   string    `json:"attemptId,omitempty"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// statusTable tracks the status of every supervise chain.
type statusTable struct {
	mu      sync.Mutex
	entries []*Status
}

// tracker updates the status of a single chain.
type tracker struct {
	table *statusTable
	entry *Status
}

func (t *statusTable) track(name string, retriesLeft int) *tracker {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := &Status{
		Name:        name,
		State:       StatePending,
		RetriesLeft: retriesLeft,
		UpdatedAt:   time.Now(),
	}
	t.entries = append(t.entries, entry)

	return &tracker{table: t, entry: entry}
}

func (t *statusTable) snapshot() []Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Status, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}

	return out
}

// panicked marks every chain that is still active.
func (t *statusTable) panicked() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.entries {
		switch e.State {
		case StateExited, StateFailed, StateStopped:
		default:
			e.State = StatePanicked
			e.Pid = 0
			e.UpdatedAt = time.Now()
		}
	}
}

func (t *tracker) update(fn func(*Status)) {
	t.table.mu.Lock()
	defer t.table.mu.Unlock()

	fn(t.entry)
	t.entry.UpdatedAt = time.Now()
}

func (t *tracker) starting(attemptID string, retriesLeft int) {
	t.update(func(s *Status) {
		s.State = StateStarting
		s.Attempts++
		s.AttemptID = attemptID
		s.RetriesLeft = retriesLeft
	})
}

func (t *tracker) running(pid int) {
	t.update(func(s *Status) {
		s.State = StateRunning
		s.Pid = pid
	})
}

func (t *tracker) exited(code int) {
	t.update(func(s *Status) {
		s.Pid = 0
		s.ExitCode = &code
	})
}

func (t *tracker) set(state State, err error) {
	t.update(func(s *Status) {
		s.State = state
		s.Pid = 0
		if err != nil {
			s.Error = err.Error()
		}
	})
}
