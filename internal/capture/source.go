package capture

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ayusman/blinkwatch/internal/frame"
)

// DefaultMaxReadFailures is the number of consecutive failed reads after
// which the capture loop gives up on the device.
const DefaultMaxReadFailures = 30

// ErrSourceRunning is returned by Start when the source is already delivering frames.
var ErrSourceRunning = errors.New("capture source already running")

// SourceConfig holds configuration for a Source.
type SourceConfig struct {
	// FPS is the capture rate requested from the camera.
	FPS int

	// MaxReadFailures is the consecutive read failure limit (default 30).
	MaxReadFailures int

	// OnFailure is called from the capture goroutine when the read failure
	// limit is reached. The loop exits afterwards; Stop must still be called.
	OnFailure func(err error)
}

// Source reads frames from a Camera on a dedicated goroutine and hands them
// to a frame.Handler as samples with increasing sequence numbers.
type Source struct {
	camera Camera
	config SourceConfig

	mu     sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewSource creates a Source for camera.
func NewSource(camera Camera, config SourceConfig) *Source {
	if config.FPS <= 0 {
		config.FPS = DefaultFPS
	}
	if config.MaxReadFailures <= 0 {
		config.MaxReadFailures = DefaultMaxReadFailures
	}
	return &Source{
		camera: camera,
		config: config,
	}
}

// Start opens the camera and begins delivering frames to handler.
func (s *Source) Start(handler frame.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		return ErrSourceRunning
	}

	if err := s.camera.Open(); err != nil {
		return err
	}
	s.camera.SetFPS(s.config.FPS)

	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(handler, s.config.OnFailure, s.stopCh, s.done)

	return nil
}

// Stop halts the capture loop and closes the camera. It returns only after
// the loop has exited, so no frame is delivered once Stop returns.
// Stop is a no-op when the source is not running.
func (s *Source) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh == nil {
		return
	}

	close(s.stopCh)
	<-s.done
	s.stopCh = nil
	s.done = nil

	if err := s.camera.Close(); err != nil {
		log.Printf("Error closing camera: %v", err)
	}
}

// OnFailure replaces the read failure callback. It applies from the next Start.
func (s *Source) OnFailure(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.OnFailure = fn
}

// Running reports whether the capture loop has been started and not stopped.
func (s *Source) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopCh != nil
}

// run is the capture loop.
func (s *Source) run(handler frame.Handler, onFailure func(error), stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Second / time.Duration(s.config.FPS))
	defer ticker.Stop()

	var seq uint64
	failures := 0

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			mat, err := s.camera.ReadFrame()
			if err != nil {
				failures++
				if failures >= s.config.MaxReadFailures {
					log.Printf("Capture stopped after %d failed reads: %v", failures, err)
					if onFailure != nil {
						onFailure(err)
					}
					return
				}
				continue
			}
			failures = 0

			// Stop may have been requested while the read was blocked.
			select {
			case <-stopCh:
				mat.Close()
				return
			default:
			}

			handler(frame.NewSample(seq, time.Now(), mat))
			seq++
		}
	}
}
