package engine

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/blinkwatch/internal/admission"
	"github.com/ayusman/blinkwatch/internal/blink"
	"github.com/ayusman/blinkwatch/internal/landmark"
	"github.com/ayusman/blinkwatch/internal/store"
)

// Journal records tracking sessions. Failures are logged and never stop
// tracking.
type Journal interface {
	Begin(id string, at time.Time) error
	Record(id string, t blink.Transition) error
	Finish(id string, at time.Time, reason string, summary json.RawMessage) error
}

// StoreJournal writes sessions to the sqlite store.
type StoreJournal struct {
	repo *store.SessionRepository
}

// NewStoreJournal returns a journal backed by repo.
func NewStoreJournal(repo *store.SessionRepository) *StoreJournal {
	return &StoreJournal{repo: repo}
}

// Begin implements Journal.
func (j *StoreJournal) Begin(id string, at time.Time) error {
	return j.repo.Begin(id, at)
}

// Record implements Journal.
func (j *StoreJournal) Record(id string, t blink.Transition) error {
	return j.repo.AddEvent(id, t.At, t.From.String(), t.To.String())
}

// Finish implements Journal.
func (j *StoreJournal) Finish(id string, at time.Time, reason string, summary json.RawMessage) error {
	return j.repo.Finish(id, at, reason, summary)
}

// Summary is the per-session statistics block stored with a finished
// session.
type Summary struct {
	Duration  string          `json:"duration"`
	Frames    uint64          `json:"frames"`
	Admission admission.Stats `json:"admission"`
	Detector  landmark.Stats  `json:"detector"`
	Machine   blink.Stats     `json:"machine"`
}

// session is one Start..Stop run.
type session struct {
	id      string
	started time.Time
	journal Journal

	frames    uint64
	admission admission.Stats
	detector  landmark.Stats
	machine   blink.Stats
}

func newSession(journal Journal, e *Engine) *session {
	s := &session{
		id:        uuid.NewString(),
		started:   time.Now(),
		journal:   journal,
		frames:    e.frames.Load(),
		admission: e.admission.Stats(),
		detector:  e.detector.Stats(),
		machine:   e.machine.Stats(),
	}
	if journal != nil {
		if err := journal.Begin(s.id, s.started); err != nil {
			log.Printf("Warning: failed to record session start: %v", err)
		}
	}
	return s
}

func (s *session) record(t blink.Transition) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Record(s.id, t); err != nil {
		log.Printf("Warning: failed to record transition %s -> %s: %v", t.From, t.To, err)
	}
}

func (s *session) finish(e *Engine, reason string) Summary {
	d := detectorSince(e.detector.Stats(), s.detector)
	m := e.machine.Stats()
	sum := Summary{
		Duration:  time.Since(s.started).Round(time.Millisecond).String(),
		Frames:    e.frames.Load() - s.frames,
		Admission: e.admission.Stats().Since(s.admission),
		Detector:  d,
		Machine: blink.Stats{
			Transitions: m.Transitions - s.machine.Transitions,
			EyeChanges:  m.EyeChanges - s.machine.EyeChanges,
			Pauses:      m.Pauses - s.machine.Pauses,
		},
	}

	if s.journal != nil {
		raw, err := json.Marshal(sum)
		if err != nil {
			log.Printf("Warning: failed to encode session summary: %v", err)
		}
		if err := s.journal.Finish(s.id, time.Now(), reason, raw); err != nil {
			log.Printf("Warning: failed to record session end: %v", err)
		}
	}
	return sum
}

func detectorSince(cur, base landmark.Stats) landmark.Stats {
	return landmark.Stats{
		Frames:        cur.Frames - base.Frames,
		FullPasses:    cur.FullPasses - base.FullPasses,
		CachedPasses:  cur.CachedPasses - base.CachedPasses,
		Invalidations: cur.Invalidations - base.Invalidations,
		Errors:        cur.Errors - base.Errors,
	}
}
