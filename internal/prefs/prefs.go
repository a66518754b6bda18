// Package prefs provides the user preferences the engine reads and watches.
package prefs

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/blinkwatch/internal/eye"
)

// Setting keys in the settings store.
const (
	KeySensitivity    = "sensitivity"
	KeyBlinkThreshold = "blink_threshold"
)

// DefaultBlinkThreshold is how long eyes must stay open before a fade.
const DefaultBlinkThreshold = 5 * time.Second

// ErrInvalid is returned for preferences that fail validation.
var ErrInvalid = errors.New("invalid preferences")

// Snapshot is a read-only copy of the preferences.
type Snapshot struct {
	Sensitivity    eye.Sensitivity `json:"sensitivity"`
	BlinkThreshold time.Duration   `json:"blink_threshold"`
}

// Default returns the default preferences.
func Default() Snapshot {
	return Snapshot{
		Sensitivity:    eye.SensitivityMedium,
		BlinkThreshold: DefaultBlinkThreshold,
	}
}

// Validate checks the snapshot.
func (s Snapshot) Validate() error {
	if s.Sensitivity < eye.SensitivityLow || s.Sensitivity > eye.SensitivityHigh {
		return fmt.Errorf("%w: sensitivity %d", ErrInvalid, int(s.Sensitivity))
	}
	if s.BlinkThreshold <= 0 || s.BlinkThreshold > time.Hour {
		return fmt.Errorf("%w: blink threshold %v", ErrInvalid, s.BlinkThreshold)
	}
	return nil
}

// Provider serves preference snapshots and change notifications.
type Provider interface {
	Snapshot() Snapshot
	// Subscribe calls fn with every new snapshot until cancel is called.
	Subscribe(fn func(Snapshot)) (cancel func())
}

// Updater is a Provider whose preferences can be changed.
type Updater interface {
	Provider
	Update(s Snapshot) error
}

// notifier fans snapshots out to subscribers.
type notifier struct {
	mu     sync.Mutex
	subs   map[int]func(Snapshot)
	nextID int
}

func (n *notifier) subscribe(fn func(Snapshot)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.subs == nil {
		n.subs = make(map[int]func(Snapshot))
	}
	id := n.nextID
	n.nextID++
	n.subs[id] = fn
	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subs, id)
	}
}

func (n *notifier) notify(s Snapshot) {
	n.mu.Lock()
	fns := make([]func(Snapshot), 0, len(n.subs))
	for _, fn := range n.subs {
		fns = append(fns, fn)
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}

// Static is an in-memory Updater.
type Static struct {
	mu   sync.Mutex
	snap Snapshot
	n    notifier
}

// NewStatic returns an in-memory provider holding s.
func NewStatic(s Snapshot) *Static {
	return &Static{snap: s}
}

// Snapshot implements Provider.
func (p *Static) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Subscribe implements Provider.
func (p *Static) Subscribe(fn func(Snapshot)) func() {
	return p.n.subscribe(fn)
}

// Update replaces the preferences and notifies subscribers.
func (p *Static) Update(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.snap = s
	p.mu.Unlock()
	p.n.notify(s)
	return nil
}

// SettingsStore is the key-value storage behind Persistent.
// *store.SettingsRepository satisfies it.
type SettingsStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// Persistent is an Updater backed by a SettingsStore.
type Persistent struct {
	settings SettingsStore

	mu   sync.Mutex
	snap Snapshot
	n    notifier
}

// Load reads the preferences from settings. Missing or unparsable values
// fall back to defaults.
func Load(settings SettingsStore) *Persistent {
	snap := Default()

	if v, err := settings.Get(KeySensitivity); err == nil {
		if s, err := eye.ParseSensitivity(v); err == nil {
			snap.Sensitivity = s
		} else {
			log.Printf("prefs: ignoring stored sensitivity: %v", err)
		}
	}
	if v, err := settings.Get(KeyBlinkThreshold); err == nil {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			snap.BlinkThreshold = d
		} else {
			log.Printf("prefs: ignoring stored blink threshold %q", v)
		}
	}

	return &Persistent{settings: settings, snap: snap}
}

// Snapshot implements Provider.
func (p *Persistent) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

// Subscribe implements Provider.
func (p *Persistent) Subscribe(fn func(Snapshot)) func() {
	return p.n.subscribe(fn)
}

// Update validates, stores and publishes s.
func (p *Persistent) Update(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if s == p.snap {
		p.mu.Unlock()
		return nil
	}
	if err := p.settings.Set(KeySensitivity, s.Sensitivity.String()); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("save sensitivity: %w", err)
	}
	if err := p.settings.Set(KeyBlinkThreshold, s.BlinkThreshold.String()); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("save blink threshold: %w", err)
	}
	p.snap = s
	p.mu.Unlock()

	p.n.notify(s)
	return nil
}
