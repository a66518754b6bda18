// Package frame defines captured frame samples and the frame source contract
// shared by the capture, admission and detection stages.
package frame

import (
	"errors"
	"sync/atomic"
	"time"
)

// Capture setup errors. None of them are retried by the engine; the caller
// must re-authorize or re-invoke start.
var (
	// ErrPermissionDenied is returned when camera access is denied or restricted.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrDeviceUnavailable is returned when no usable camera device exists.
	ErrDeviceUnavailable = errors.New("camera device unavailable")
	// ErrConfigurationFailed is returned when the device opened but could not be configured.
	ErrConfigurationFailed = errors.New("camera configuration failed")
)

// Buffer is a pixel buffer owned by a Sample. *gocv.Mat satisfies it.
type Buffer interface {
	Close() error
}

// Handler receives samples on the capture goroutine. It must not block.
type Handler func(s *Sample)

// Source delivers samples to a handler on its own goroutine.
// No sample may be delivered after Stop returns.
type Source interface {
	Start(handler Handler) error
	Stop()
}

// FailureReporter is implemented by sources that can fail after a
// successful Start. fn is called at most once per run, from the source's
// goroutine, and must not call Stop synchronously.
type FailureReporter interface {
	OnFailure(fn func(err error))
}

// Sample is one captured video frame.
// The sample exclusively owns its buffer until Release is called.
type Sample struct {
	Seq       uint64
	Timestamp time.Time

	buf atomic.Pointer[bufferRef]
}

type bufferRef struct {
	b Buffer
}

// NewSample wraps buf in a Sample. buf may be nil for synthetic frames.
func NewSample(seq uint64, ts time.Time, buf Buffer) *Sample {
	s := &Sample{Seq: seq, Timestamp: ts}
	s.buf.Store(&bufferRef{b: buf})
	return s
}

// Buffer returns the pixel buffer, or nil once the sample has been released.
func (s *Sample) Buffer() Buffer {
	ref := s.buf.Load()
	if ref == nil {
		return nil
	}
	return ref.b
}

// Released reports whether Release has been called.
func (s *Sample) Released() bool {
	return s.buf.Load() == nil
}

// Release closes the buffer. Only the first call has an effect; it reports
// whether this call performed the release.
func (s *Sample) Release() bool {
	ref := s.buf.Swap(nil)
	if ref == nil {
		return false
	}
	if ref.b != nil {
		ref.b.Close()
	}
	return true
}
