package prefs

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/blinkwatch/internal/eye"
	"github.com/ayusman/blinkwatch/internal/store"
)

type mapSettings struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func (m *mapSettings) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *mapSettings) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		snap    Snapshot
		wantErr bool
	}{
		{"defaults", Default(), false},
		{"high", Snapshot{Sensitivity: eye.SensitivityHigh, BlinkThreshold: time.Second}, false},
		{"bad sensitivity", Snapshot{Sensitivity: 7, BlinkThreshold: time.Second}, true},
		{"zero threshold", Snapshot{Sensitivity: eye.SensitivityLow}, true},
		{"huge threshold", Snapshot{Sensitivity: eye.SensitivityLow, BlinkThreshold: 2 * time.Hour}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v should wrap ErrInvalid", err)
			}
		})
	}
}

func TestStatic_UpdateNotifies(t *testing.T) {
	p := NewStatic(Default())

	var got []Snapshot
	cancel := p.Subscribe(func(s Snapshot) { got = append(got, s) })

	next := Snapshot{Sensitivity: eye.SensitivityHigh, BlinkThreshold: 3 * time.Second}
	if err := p.Update(next); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	cancel()
	p.Update(Default())

	if len(got) != 1 || got[0] != next {
		t.Errorf("subscriber got %v, want only %v", got, next)
	}
	if p.Snapshot() != Default() {
		t.Errorf("Snapshot() = %v, want defaults after second update", p.Snapshot())
	}
}

func TestStatic_RejectsInvalid(t *testing.T) {
	p := NewStatic(Default())
	if err := p.Update(Snapshot{}); err == nil {
		t.Error("Update() should reject a zero snapshot")
	}
	if p.Snapshot() != Default() {
		t.Error("rejected update must not change the snapshot")
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   Snapshot
	}{
		{"empty", nil, Default()},
		{
			"stored values",
			map[string]string{KeySensitivity: "low", KeyBlinkThreshold: "8s"},
			Snapshot{Sensitivity: eye.SensitivityLow, BlinkThreshold: 8 * time.Second},
		},
		{
			"garbage falls back",
			map[string]string{KeySensitivity: "max", KeyBlinkThreshold: "soon"},
			Default(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Load(&mapSettings{values: tt.values})
			if got := p.Snapshot(); got != tt.want {
				t.Errorf("Snapshot() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPersistent_Update(t *testing.T) {
	settings := &mapSettings{}
	p := Load(settings)

	calls := 0
	p.Subscribe(func(Snapshot) { calls++ })

	next := Snapshot{Sensitivity: eye.SensitivityHigh, BlinkThreshold: 2500 * time.Millisecond}
	if err := p.Update(next); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := p.Update(next); err != nil {
		t.Fatalf("repeat Update() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("subscriber called %d times, want 1 for an unchanged repeat", calls)
	}
	if settings.values[KeySensitivity] != "high" || settings.values[KeyBlinkThreshold] != "2.5s" {
		t.Errorf("stored %v", settings.values)
	}
	if reloaded := Load(settings).Snapshot(); reloaded != next {
		t.Errorf("reloaded %+v, want %+v", reloaded, next)
	}
}

func TestPersistent_StoreFailure(t *testing.T) {
	settings := &mapSettings{err: errors.New("disk full")}
	p := Load(settings)

	if err := p.Update(Snapshot{Sensitivity: eye.SensitivityLow, BlinkThreshold: time.Second}); err == nil {
		t.Fatal("Update() should surface the store error")
	}
	if p.Snapshot() != Default() {
		t.Error("failed save must not change the snapshot")
	}
}

func TestPersistent_SQLite(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	next := Snapshot{Sensitivity: eye.SensitivityLow, BlinkThreshold: 4 * time.Second}
	if err := Load(s.Settings()).Update(next); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got := Load(s.Settings()).Snapshot(); got != next {
		t.Errorf("reloaded %+v, want %+v", got, next)
	}
}
