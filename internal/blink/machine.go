// Package blink holds the authoritative tracking state of the engine.
package blink

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrIllegalTransition is returned when a lifecycle transition is not allowed
// from the current phase.
var ErrIllegalTransition = errors.New("illegal state transition")

// Phase is the coarse tracking mode.
type Phase int

const (
	PhaseInactive Phase = iota
	PhaseStarting
	PhaseActive
	PhasePaused
	PhaseStopping
)

func (p Phase) String() string {
	switch p {
	case PhaseInactive:
		return "inactive"
	case PhaseStarting:
		return "starting"
	case PhaseActive:
		return "active"
	case PhasePaused:
		return "paused"
	case PhaseStopping:
		return "stopping"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(b []byte) error {
	for c := PhaseInactive; c <= PhaseStopping; c++ {
		if c.String() == string(b) {
			*p = c
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// PauseReason says why tracking is paused. It is diagnostic only; consumers
// see a paused engine as eyes closed.
type PauseReason int

const (
	ReasonNone PauseReason = iota
	ReasonNoFace
	ReasonMultipleFaces
	ReasonEyesNotVisible
	ReasonLowConfidence
	ReasonDetectionFailed
	ReasonCaptureFailed
)

func (r PauseReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoFace:
		return "no_face"
	case ReasonMultipleFaces:
		return "multiple_faces"
	case ReasonEyesNotVisible:
		return "eyes_not_visible"
	case ReasonLowConfidence:
		return "low_confidence"
	case ReasonDetectionFailed:
		return "detection_failed"
	case ReasonCaptureFailed:
		return "capture_failed"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r PauseReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *PauseReason) UnmarshalText(b []byte) error {
	for c := ReasonNone; c <= ReasonCaptureFailed; c++ {
		if c.String() == string(b) {
			*r = c
			return nil
		}
	}
	return fmt.Errorf("unknown pause reason %q", b)
}

// State is one tracking state. EyeOpen is only meaningful while Active and
// Reason only while Paused.
type State struct {
	Phase   Phase       `json:"phase"`
	EyeOpen bool        `json:"eye_open"`
	Reason  PauseReason `json:"reason"`
}

func (s State) String() string {
	switch s.Phase {
	case PhaseActive:
		return fmt.Sprintf("active(eyeOpen=%t)", s.EyeOpen)
	case PhasePaused:
		return fmt.Sprintf("paused(%s)", s.Reason)
	default:
		return s.Phase.String()
	}
}

// Transition is an applied state change.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Observation is the per-frame input to the machine: either a usable frame
// with a smoothed verdict or the reason the frame was unusable.
type Observation struct {
	Usable  bool
	EyeOpen bool
	Reason  PauseReason
}

// Stats counts applied transitions.
type Stats struct {
	Transitions uint64 `json:"transitions"`
	EyeChanges  uint64 `json:"eye_changes"`
	Pauses      uint64 `json:"pauses"`
}

// Machine is the tracking state machine. Transitions are the only way to
// change state; listeners see them in the order they were applied.
type Machine struct {
	mu        sync.Mutex
	state     State
	stats     Stats
	listeners []func(Transition)
	now       func() time.Time

	// emitMu is taken before mu is released so listeners run in
	// transition order.
	emitMu sync.Mutex
}

// NewMachine returns a machine in the Inactive phase.
func NewMachine() *Machine {
	return &Machine{now: time.Now}
}

// OnTransition registers fn to be called after every transition. Listeners
// run synchronously and must not call transition methods.
func (m *Machine) OnTransition(fn func(Transition)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Stats returns the transition counters.
func (m *Machine) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// IsEyeOpen is true only while Active with open eyes.
func (m *Machine) IsEyeOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase == PhaseActive && m.state.EyeOpen
}

// IsActive reports whether a tracking session is running, paused or not.
func (m *Machine) IsActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase == PhaseActive || m.state.Phase == PhasePaused
}

// Start moves Inactive to Starting.
func (m *Machine) Start() error {
	return m.lifecycle(State{Phase: PhaseStarting}, PhaseInactive)
}

// Confirm moves Starting to Active with eyes closed once capture runs.
func (m *Machine) Confirm() error {
	return m.lifecycle(State{Phase: PhaseActive}, PhaseStarting)
}

// Abort returns Starting to Inactive after a failed start.
func (m *Machine) Abort() error {
	return m.lifecycle(State{Phase: PhaseInactive}, PhaseStarting)
}

// BeginStop moves Active or Paused to Stopping.
func (m *Machine) BeginStop() error {
	return m.lifecycle(State{Phase: PhaseStopping}, PhaseActive, PhasePaused)
}

// Finish moves Stopping to Inactive.
func (m *Machine) Finish() error {
	return m.lifecycle(State{Phase: PhaseInactive}, PhaseStopping)
}

func (m *Machine) lifecycle(to State, from ...Phase) error {
	m.mu.Lock()
	for _, p := range from {
		if m.state.Phase == p {
			m.apply(to)
			return nil
		}
	}
	cur := m.state
	m.mu.Unlock()
	return fmt.Errorf("%w: %s to %s", ErrIllegalTransition, cur, to)
}

// Observe applies one processed frame. It is ignored outside Active and
// Paused. A usable frame always resumes a paused machine as closed; within
// Active only a change of verdict is a transition. It reports whether the
// state changed.
func (m *Machine) Observe(o Observation) bool {
	m.mu.Lock()
	cur := m.state

	var to State
	switch cur.Phase {
	case PhaseActive:
		if o.Usable {
			if o.EyeOpen == cur.EyeOpen {
				m.mu.Unlock()
				return false
			}
			to = State{Phase: PhaseActive, EyeOpen: o.EyeOpen}
		} else {
			to = State{Phase: PhasePaused, Reason: pauseReason(o.Reason)}
		}
	case PhasePaused:
		if o.Usable {
			to = State{Phase: PhaseActive}
		} else {
			to = State{Phase: PhasePaused, Reason: pauseReason(o.Reason)}
			if to == cur {
				m.mu.Unlock()
				return false
			}
		}
	default:
		m.mu.Unlock()
		return false
	}

	m.apply(to)
	return true
}

// Pause forces Active or Paused into Paused with reason. It reports whether
// the state changed.
func (m *Machine) Pause(reason PauseReason) bool {
	return m.Observe(Observation{Reason: reason})
}

func pauseReason(r PauseReason) PauseReason {
	if r == ReasonNone {
		return ReasonDetectionFailed
	}
	return r
}

// apply must be called with mu held; it releases it.
func (m *Machine) apply(to State) {
	t := Transition{From: m.state, To: to, At: m.now()}
	m.state = to
	m.stats.Transitions++
	if t.From.Phase == PhaseActive && to.Phase == PhaseActive {
		m.stats.EyeChanges++
	}
	if to.Phase == PhasePaused && t.From.Phase != PhasePaused {
		m.stats.Pauses++
	}
	listeners := m.listeners

	m.emitMu.Lock()
	m.mu.Unlock()
	defer m.emitMu.Unlock()

	for _, fn := range listeners {
		fn(t)
	}
}
