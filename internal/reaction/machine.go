// Package reaction implements the reaction test state machine.
//
// The machine cycles Waiting -> Armed -> Active -> Waiting. It is not safe for
// concurrent use: every call is expected to come from one goroutine (the
// session event loop), which makes each transition and the scheduling it
// triggers atomic with respect to every other input.
package reaction

import (
	"time"

	"github.com/chav-jf/speedy-green-flash/internal/results"
)

// State of a reaction test.
type State int

const (
	Waiting State = iota
	Armed
	Active
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Armed:
		return "armed"
	case Active:
		return "active"
	default:
		return "unknown"
	}
}

// DelaySource decides when the stimulus fires for a cycle. Schedule must not
// block; the source reports back through Machine.OnStimulusSignal with the
// cycle id it was given. Schedule returns false when nothing will ever
// signal the cycle.
type DelaySource interface {
	Schedule(cycle uint64) bool
	Cancel()
}

// OutcomeKind classifies the result of RecordReaction.
type OutcomeKind int

const (
	// NoMeasurement means nothing was in progress.
	NoMeasurement OutcomeKind = iota
	// Completed means a sample was recorded.
	Completed
	// FalseStart means the reaction came while the stimulus was still pending.
	FalseStart
)

type Outcome struct {
	Kind   OutcomeKind
	Sample results.Sample
}

// Machine holds the state of the current test cycle.
type Machine struct {
	state    State
	cycle    uint64
	activeAt time.Time
	pending  DelaySource

	lastReaction *int64
	falseStart   bool

	results *results.Aggregator
	now     func() time.Time
}

// NewMachine creates a machine that appends completed samples to agg.
// A nil clock means time.Now.
func NewMachine(agg *results.Aggregator, clock func() time.Time) *Machine {
	if clock == nil {
		clock = time.Now
	}
	return &Machine{results: agg, now: clock}
}

func (m *Machine) State() State { return m.state }

// Cycle returns the id of the most recently started test cycle.
func (m *Machine) Cycle() uint64 { return m.cycle }

// LastReaction returns the reaction time of the last completed cycle, if it
// is still on display.
func (m *Machine) LastReaction() (int64, bool) {
	if m.lastReaction == nil {
		return 0, false
	}
	return *m.lastReaction, true
}

// FalseStarted reports whether the last cycle ended in a premature reaction.
func (m *Machine) FalseStarted() bool { return m.falseStart }

// StartTest arms a new cycle with src as its delay source. It returns false
// and does nothing unless the machine is Waiting.
func (m *Machine) StartTest(src DelaySource) bool {
	if m.state != Waiting {
		return false
	}
	m.cancelPending()

	m.cycle++
	m.lastReaction = nil
	m.falseStart = false
	m.state = Armed
	m.pending = src
	if src != nil && !src.Schedule(m.cycle) {
		m.pending = nil
	}
	return true
}

// Scheduled reports whether an Armed cycle has a source that will signal it.
func (m *Machine) Scheduled() bool {
	return m.state == Armed && m.pending != nil
}

// Reschedule hands the current Armed cycle to src, cancelling the previous
// source. The cycle id and the last-result state are unchanged.
func (m *Machine) Reschedule(src DelaySource) bool {
	if m.state != Armed || src == nil {
		return false
	}
	m.cancelPending()
	if src.Schedule(m.cycle) {
		m.pending = src
	}
	return m.pending != nil
}

// OnStimulusSignal moves an Armed machine to Active. Signals for any cycle
// other than the current one, or arriving outside Armed, are ignored.
func (m *Machine) OnStimulusSignal(cycle uint64) bool {
	if m.state != Armed || cycle != m.cycle {
		return false
	}
	m.state = Active
	m.activeAt = m.now()
	m.pending = nil
	return true
}

// RecordReaction handles the subject's response.
func (m *Machine) RecordReaction() Outcome {
	switch m.state {
	case Active:
		now := m.now()
		ms := now.Sub(m.activeAt).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		sample := results.Sample{Timestamp: now, ReactionTimeMs: ms}
		m.results.Append(sample)
		m.lastReaction = &ms
		m.state = Waiting
		m.cancelPending()
		return Outcome{Kind: Completed, Sample: sample}
	case Armed:
		m.cancelPending()
		m.lastReaction = nil
		m.falseStart = true
		m.state = Waiting
		return Outcome{Kind: FalseStart}
	default:
		return Outcome{Kind: NoMeasurement}
	}
}

// Reset clears all samples and returns to Waiting from any state.
func (m *Machine) Reset() {
	m.cancelPending()
	m.results.Reset()
	m.lastReaction = nil
	m.falseStart = false
	m.state = Waiting
}

func (m *Machine) cancelPending() {
	if m.pending != nil {
		m.pending.Cancel()
		m.pending = nil
	}
}
