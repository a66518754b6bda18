// Package engine runs the blink-detection pipeline: capture, admission,
// landmark detection, eye openness, smoothing and the tracking state
// machine, and serializes its start, stop and termination.
package engine

import (
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/blinkwatch/internal/admission"
	"github.com/ayusman/blinkwatch/internal/blink"
	"github.com/ayusman/blinkwatch/internal/eye"
	"github.com/ayusman/blinkwatch/internal/frame"
	"github.com/ayusman/blinkwatch/internal/governor"
	"github.com/ayusman/blinkwatch/internal/landmark"
	"github.com/ayusman/blinkwatch/internal/permissions"
	"github.com/ayusman/blinkwatch/internal/prefs"
	"github.com/ayusman/blinkwatch/internal/signal"
	"github.com/ayusman/blinkwatch/internal/smoothing"
)

// Lifecycle errors.
var (
	// ErrTerminated is returned by Start after PrepareForTermination.
	ErrTerminated = errors.New("engine terminated")
	// ErrBusy is returned by Start while a stop is in flight.
	ErrBusy = errors.New("engine operation in flight")
	// ErrStartInterrupted is returned by Start when Stop was requested while
	// it ran; the session was started and then stopped.
	ErrStartInterrupted = errors.New("start interrupted by stop")
)

// Config holds the engine's collaborators and tunables.
type Config struct {
	Source      frame.Source
	Analyzer    landmark.Analyzer
	Permissions permissions.Provider
	Preferences prefs.Provider

	// Journal records sessions. Optional.
	Journal Journal
	// Power and Memory feed the governor. Nil means mains power and no
	// memory pressure.
	Power  governor.PowerSource
	Memory governor.MemoryMonitor
	// Estimator replaces the EAR classifier. Optional.
	Estimator eye.Estimator
	// SceneChange forces a full face search when it returns true. Optional.
	SceneChange func(*frame.Sample) bool

	Governor        governor.Config
	Detector        landmark.Config
	SmoothingWindow int
	// SignalWindow coalesces rising edges of the public signals.
	SignalWindow time.Duration
	// PermissionTimeout bounds the wait for an access request.
	PermissionTimeout time.Duration
}

// DefaultConfig returns the default tunables. Collaborators must be set by
// the caller.
func DefaultConfig() Config {
	return Config{
		Governor:          governor.DefaultConfig(),
		Detector:          landmark.DefaultConfig(),
		SmoothingWindow:   smoothing.DefaultCapacity,
		SignalWindow:      signal.DefaultWindow,
		PermissionTimeout: time.Minute,
	}
}

type opState int

const (
	opIdle opState = iota
	opStarting
	opRunning
	opStopping
	opTerminated
)

func (s opState) String() string {
	switch s {
	case opIdle:
		return "idle"
	case opStarting:
		return "starting"
	case opRunning:
		return "running"
	case opStopping:
		return "stopping"
	case opTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Engine is the blink-detection engine.
type Engine struct {
	config Config

	machine   *blink.Machine
	governor  *governor.Governor
	pool      *admission.Pool
	admission *admission.Admission
	detector  *landmark.Detector
	estimator eye.Estimator
	smoother  *smoothing.Window

	eyeOpen     *signal.Bool
	active      *signal.Bool
	transitions *signal.Feed[blink.Transition]

	blinkThreshold atomic.Int64
	prefsCancel    func()

	// mu guards the lifecycle fields below. Only one operation is ever in
	// flight; opDone is closed when it completes.
	mu          sync.Mutex
	op          opState
	opDone      chan struct{}
	stopPending bool
	procStop    chan struct{}
	procDone    chan struct{}
	session     *session

	// Owned by the processing goroutine.
	lastReason blink.PauseReason

	statusMu   sync.Mutex
	lastMetric *eye.Metric
	lastErr    error
	permission permissions.Status
	frames     atomic.Uint64
}

// New creates an engine. Source, Analyzer, Permissions and Preferences are
// required.
func New(config Config) *Engine {
	def := DefaultConfig()
	if config.SmoothingWindow < 1 {
		config.SmoothingWindow = def.SmoothingWindow
	}
	if config.SignalWindow < 0 {
		config.SignalWindow = 0
	}
	if config.PermissionTimeout <= 0 {
		config.PermissionTimeout = def.PermissionTimeout
	}

	e := &Engine{
		config:      config,
		machine:     blink.NewMachine(),
		governor:    governor.New(config.Governor, config.Power, config.Memory),
		detector:    landmark.NewDetector(config.Analyzer, config.Detector),
		smoother:    smoothing.New(config.SmoothingWindow),
		eyeOpen:     signal.NewBool(config.SignalWindow),
		active:      signal.NewBool(config.SignalWindow),
		transitions: signal.NewFeed[blink.Transition](),
	}

	e.pool = admission.NewPool(e.governor.Profile().PoolCapacity)
	e.pool.Close()
	e.admission = admission.New(admission.StrideFunc(func() int {
		return e.governor.Profile().FrameSkip
	}), e.pool)

	if config.SceneChange != nil {
		e.detector.SetSceneChangeHint(config.SceneChange)
	}

	snap := config.Preferences.Snapshot()
	e.estimator = config.Estimator
	if e.estimator == nil {
		e.estimator = eye.NewEARClassifier(snap.Sensitivity.Threshold())
	}
	e.applyPreferences(snap)
	e.prefsCancel = config.Preferences.Subscribe(e.applyPreferences)

	e.machine.OnTransition(e.onTransition)

	if r, ok := config.Source.(frame.FailureReporter); ok {
		r.OnFailure(e.CaptureFailed)
	}
	return e
}

// applyPreferences hot-swaps thresholds without touching capture.
func (e *Engine) applyPreferences(s prefs.Snapshot) {
	if t, ok := e.estimator.(interface{ SetThreshold(float64) }); ok {
		t.SetThreshold(s.Sensitivity.Threshold())
	}
	e.blinkThreshold.Store(int64(s.BlinkThreshold))
	log.Printf("Preferences applied: sensitivity=%s blink_threshold=%s", s.Sensitivity, s.BlinkThreshold)
}

func (e *Engine) onTransition(t blink.Transition) {
	e.eyeOpen.Set(t.To.Phase == blink.PhaseActive && t.To.EyeOpen)
	e.active.Set(t.To.Phase == blink.PhaseActive || t.To.Phase == blink.PhasePaused)
	e.transitions.Publish(t)

	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()
	if sess != nil {
		sess.record(t)
	}
}

// IsEyeOpen is the debounced public eye signal. A paused engine reports
// false.
func (e *Engine) IsEyeOpen() bool {
	return e.eyeOpen.Value()
}

// IsActive reports whether a tracking session is running.
func (e *Engine) IsActive() bool {
	return e.active.Value()
}

// State returns the undebounced tracking state.
func (e *Engine) State() blink.State {
	return e.machine.State()
}

// BlinkThreshold is how long eyes must stay open before consumers fade.
func (e *Engine) BlinkThreshold() time.Duration {
	return time.Duration(e.blinkThreshold.Load())
}

// SubscribeEyeOpen returns a bounded channel of eye signal changes,
// starting with the current value.
func (e *Engine) SubscribeEyeOpen(size int) (<-chan bool, func()) {
	return e.eyeOpen.Subscribe(size)
}

// SubscribeActive returns a bounded channel of activity changes, starting
// with the current value.
func (e *Engine) SubscribeActive(size int) (<-chan bool, func()) {
	return e.active.Subscribe(size)
}

// SubscribeTransitions returns a bounded channel of state transitions.
func (e *Engine) SubscribeTransitions(size int) (<-chan blink.Transition, func()) {
	return e.transitions.Subscribe(size)
}

// Status is a diagnostic snapshot.
type Status struct {
	State      blink.State        `json:"state"`
	EyeOpen    bool               `json:"eye_open"`
	Active     bool               `json:"active"`
	Operation  string             `json:"operation"`
	SessionID  string             `json:"session_id,omitempty"`
	Permission permissions.Status `json:"permission"`
	Profile    governor.Profile   `json:"profile"`
	Admission  admission.Stats    `json:"admission"`
	Detector   landmark.Stats     `json:"detector"`
	Machine    blink.Stats        `json:"machine"`
	Frames     uint64             `json:"frames"`
	LastMetric *eye.Metric        `json:"last_metric,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
}

// Status returns a diagnostic snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	op := e.op
	var id string
	if e.session != nil {
		id = e.session.id
	}
	e.mu.Unlock()

	st := Status{
		State:     e.machine.State(),
		EyeOpen:   e.eyeOpen.Value(),
		Active:    e.active.Value(),
		Operation: op.String(),
		SessionID: id,
		Profile:   e.governor.Profile(),
		Admission: e.admission.Stats(),
		Detector:  e.detector.Stats(),
		Machine:   e.machine.Stats(),
		Frames:    e.frames.Load(),
	}

	e.statusMu.Lock()
	st.Permission = e.permission
	if e.lastMetric != nil {
		m := *e.lastMetric
		st.LastMetric = &m
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	e.statusMu.Unlock()
	return st
}

func (e *Engine) setLastError(err error) {
	e.statusMu.Lock()
	defer e.statusMu.Unlock()
	e.lastErr = err
}
