// Package progress tracks where a wizard session is: the current step index,
// the completed steps, the step being re-edited and the navigation history.
// Transitions that are not legal in the current state are rejected without
// touching any state and report why.
package progress

import (
	"github.com/goliatone/go-formwizard/pkg/steps"
)

// Status is the coarse state of the machine.
type Status string

const (
	StatusActive   Status = "active"
	StatusEditing  Status = "editing"
	StatusComplete Status = "complete"
)

// RejectReason explains a rejected transition.
type RejectReason string

const (
	RejectNotCompleted RejectReason = "step not completed"
	RejectOutOfRange   RejectReason = "index out of range"
	RejectNoHistory    RejectReason = "history has a single entry"
	RejectNotFinished  RejectReason = "wizard not finished"
	RejectEmptyStepID  RejectReason = "empty step id"
)

// Result reports whether a transition was applied.
type Result struct {
	Applied bool         `json:"applied"`
	Reason  RejectReason `json:"reason,omitempty"`
}

func applied() Result {
	return Result{Applied: true}
}

func rejected(reason RejectReason) Result {
	return Result{Reason: reason}
}

// State is a copy of the machine's state.
type State struct {
	Completed []string `json:"completed"`
	Current   int      `json:"current"`
	Editing   string   `json:"editing,omitempty"`
	History   []int    `json:"history"`
	Status    Status   `json:"status"`
}

// Machine is the progress state machine for a plan of total steps. It is not
// safe for concurrent use; the owning session serialises access.
type Machine struct {
	total     int
	completed steps.Set
	current   int
	editing   string
	history   []int
}

// New returns a machine positioned on step 0 with history [0].
func New(total int) *Machine {
	if total < 0 {
		total = 0
	}
	return &Machine{
		total:     total,
		completed: steps.NewSet(),
		history:   []int{0},
	}
}

// Complete marks stepID done, clears editing when it matches, advances the
// current index by one and pushes it onto the history. Completing an already
// completed step leaves the set unchanged but still pushes.
func (m *Machine) Complete(stepID string) Result {
	if stepID == "" {
		return rejected(RejectEmptyStepID)
	}
	m.completed.Add(stepID)
	if m.editing == stepID {
		m.editing = ""
	}
	m.current++
	m.history = append(m.history, m.current)
	return applied()
}

// GoToStep re-opens a completed step for editing.
func (m *Machine) GoToStep(stepID string, idx int) Result {
	if !m.completed.Has(stepID) {
		return rejected(RejectNotCompleted)
	}
	if idx < 0 || idx >= m.total {
		return rejected(RejectOutOfRange)
	}
	m.editing = stepID
	m.current = idx
	m.history = append(m.history, idx)
	return applied()
}

// GoBack pops the history and returns to the previous entry.
func (m *Machine) GoBack() Result {
	if len(m.history) <= 1 {
		return rejected(RejectNoHistory)
	}
	m.history = m.history[:len(m.history)-1]
	m.current = m.history[len(m.history)-1]
	m.editing = ""
	return applied()
}

// Reset returns a finished wizard to its initial state. The caller clears the
// FK context in the same critical section.
func (m *Machine) Reset() Result {
	if !m.Finished() {
		return rejected(RejectNotFinished)
	}
	m.completed = steps.NewSet()
	m.current = 0
	m.editing = ""
	m.history = []int{0}
	return applied()
}

// Finished reports whether the current index is past the last step.
func (m *Machine) Finished() bool {
	return m.current >= m.total
}

// Status reports the coarse state.
func (m *Machine) Status() Status {
	switch {
	case m.Finished():
		return StatusComplete
	case m.editing != "":
		return StatusEditing
	default:
		return StatusActive
	}
}

// Current returns the current step index.
func (m *Machine) Current() int {
	return m.current
}

// Editing returns the step being re-edited, if any.
func (m *Machine) Editing() (string, bool) {
	return m.editing, m.editing != ""
}

// IsCompleted reports whether stepID was completed.
func (m *Machine) IsCompleted(stepID string) bool {
	return m.completed.Has(stepID)
}

// Completed returns a copy of the completed set.
func (m *Machine) Completed() steps.Set {
	return m.completed.Clone()
}

// Disabled reports whether stepID renders read-only: completed, not being
// edited and not the current step.
func (m *Machine) Disabled(stepID, currentStepID string) bool {
	return m.completed.Has(stepID) && m.editing != stepID && stepID != currentStepID
}

// Total returns the number of steps the machine was built for.
func (m *Machine) Total() int {
	return m.total
}

// Snapshot copies the state.
func (m *Machine) Snapshot() State {
	return State{
		Completed: m.completed.Sorted(),
		Current:   m.current,
		Editing:   m.editing,
		History:   append([]int(nil), m.history...),
		Status:    m.Status(),
	}
}
