// Package permissions reports whether the process may use the camera.
package permissions

import (
	"fmt"
	"os"
	"sync"
)

// Status is the camera authorization state.
type Status int

const (
	StatusNotDetermined Status = iota
	StatusAuthorized
	StatusDenied
	// StatusUnavailable means there is no camera to authorize.
	StatusUnavailable
)

func (s Status) String() string {
	switch s {
	case StatusNotDetermined:
		return "not_determined"
	case StatusAuthorized:
		return "authorized"
	case StatusDenied:
		return "denied"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Provider checks and requests camera access.
type Provider interface {
	CheckAccess() Status
	// RequestAccess asks for access and calls done with the result. done may
	// run on another goroutine.
	RequestAccess(done func(granted bool))
}

// DeviceProvider derives access from the video device node. A device that
// exists but cannot be opened read-write is denied; a missing device is
// unavailable, and is checked again on the next start.
type DeviceProvider struct {
	Path string
}

// NewDeviceProvider returns a provider for /dev/video<index>.
func NewDeviceProvider(index int) *DeviceProvider {
	return &DeviceProvider{Path: fmt.Sprintf("/dev/video%d", index)}
}

// CheckAccess implements Provider.
func (p *DeviceProvider) CheckAccess() Status {
	if _, err := os.Stat(p.Path); err != nil {
		return StatusUnavailable
	}
	if !accessible(p.Path) {
		return StatusDenied
	}
	return StatusAuthorized
}

// RequestAccess implements Provider. Device permissions cannot be granted
// from inside the process, so the result is the current check.
func (p *DeviceProvider) RequestAccess(done func(granted bool)) {
	go done(p.CheckAccess() == StatusAuthorized)
}

// Static is a Provider with a fixed answer, used for platforms without an
// authorization model and in tests.
type Static struct {
	mu       sync.Mutex
	status   Status
	grant    bool
	requests int
}

// NewStatic returns a provider reporting status. RequestAccess grants access
// iff grant is true.
func NewStatic(status Status, grant bool) *Static {
	return &Static{status: status, grant: grant}
}

// CheckAccess implements Provider.
func (s *Static) CheckAccess() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RequestAccess implements Provider.
func (s *Static) RequestAccess(done func(granted bool)) {
	s.mu.Lock()
	s.requests++
	if s.grant {
		s.status = StatusAuthorized
	} else {
		s.status = StatusDenied
	}
	granted := s.grant
	s.mu.Unlock()
	done(granted)
}

// Requests returns how many times access was requested.
func (s *Static) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}
