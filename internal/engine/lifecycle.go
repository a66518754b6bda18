package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ayusman/blinkwatch/internal/blink"
	"github.com/ayusman/blinkwatch/internal/frame"
	"github.com/ayusman/blinkwatch/internal/permissions"
)

// Session end reasons.
const (
	EndStopped       = "stopped"
	EndCaptureFailed = "capture_failed"
	EndTerminated    = "terminated"
)

// Start begins tracking. It checks camera access, requesting it when
// undetermined, then opens capture. Start while starting or running is a
// no-op; Start after PrepareForTermination returns ErrTerminated.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	switch e.op {
	case opTerminated:
		e.mu.Unlock()
		return ErrTerminated
	case opStarting, opRunning:
		e.mu.Unlock()
		return nil
	case opStopping:
		e.mu.Unlock()
		return ErrBusy
	}
	e.op = opStarting
	e.stopPending = false
	done := make(chan struct{})
	e.opDone = done
	e.mu.Unlock()

	err := e.start(ctx)

	e.mu.Lock()
	if err != nil {
		e.op = opIdle
		close(done)
		e.mu.Unlock()
		e.setLastError(err)
		log.Printf("Failed to start tracking: %v", err)
		return err
	}
	if e.stopPending {
		e.op = opStopping
		e.mu.Unlock()
		e.teardown(EndStopped)

		e.mu.Lock()
		e.op = opIdle
		close(done)
		e.mu.Unlock()
		return ErrStartInterrupted
	}
	e.op = opRunning
	close(done)
	e.mu.Unlock()
	return nil
}

func (e *Engine) start(ctx context.Context) error {
	if err := e.machine.Start(); err != nil {
		return err
	}

	if err := e.authorize(ctx); err != nil {
		e.abort()
		return err
	}

	e.governor.Reset()
	e.governor.Sample()
	e.detector.Invalidate()
	e.smoother.Reset()
	e.lastReason = blink.ReasonNone
	for _, s := range e.pool.Resize(e.governor.Profile().PoolCapacity) {
		s.Release()
	}
	e.pool.Open()

	sess := newSession(e.config.Journal, e)
	stop := make(chan struct{})
	done := make(chan struct{})
	e.mu.Lock()
	e.session = sess
	e.procStop = stop
	e.procDone = done
	e.mu.Unlock()

	go e.runPipeline(stop, done)

	if err := e.config.Source.Start(e.offer); err != nil {
		e.stopPipeline()
		e.abort()
		e.mu.Lock()
		e.session = nil
		e.mu.Unlock()
		sess.finish(e, "start_failed")
		return fmt.Errorf("start capture: %w", err)
	}

	if err := e.machine.Confirm(); err != nil {
		e.teardown("start_failed")
		return err
	}
	log.Printf("Tracking started (session %s)", sess.id)
	return nil
}

func (e *Engine) abort() {
	if err := e.machine.Abort(); err != nil {
		log.Printf("Warning: %v", err)
	}
}

// authorize resolves camera access, waiting for a pending request up to
// PermissionTimeout.
func (e *Engine) authorize(ctx context.Context) error {
	status := e.config.Permissions.CheckAccess()
	if status == permissions.StatusNotDetermined {
		granted := make(chan bool, 1)
		e.config.Permissions.RequestAccess(func(ok bool) { granted <- ok })

		timer := time.NewTimer(e.config.PermissionTimeout)
		defer timer.Stop()

		select {
		case ok := <-granted:
			status = permissions.StatusDenied
			if ok {
				status = permissions.StatusAuthorized
			}
		case <-timer.C:
			return fmt.Errorf("%w: no answer to access request", frame.ErrPermissionDenied)
		case <-ctx.Done():
			return fmt.Errorf("await camera access: %w", ctx.Err())
		}
	}

	e.statusMu.Lock()
	e.permission = status
	e.statusMu.Unlock()

	switch status {
	case permissions.StatusAuthorized:
		return nil
	case permissions.StatusUnavailable:
		return fmt.Errorf("%w: no camera found", frame.ErrDeviceUnavailable)
	default:
		return fmt.Errorf("%w: camera access %s", frame.ErrPermissionDenied, status)
	}
}

// offer runs on the capture goroutine.
func (e *Engine) offer(s *frame.Sample) {
	e.admission.Offer(s)
}

// Stop ends tracking and returns once capture and processing have halted.
// It is idempotent. A Stop during Start makes that Start stop again before
// returning.
func (e *Engine) Stop() {
	e.stop(EndStopped)
}

func (e *Engine) stop(reason string) {
	e.mu.Lock()
	switch e.op {
	case opIdle, opTerminated:
		e.mu.Unlock()
		return
	case opStarting:
		e.stopPending = true
		done := e.opDone
		e.mu.Unlock()
		<-done
		return
	case opStopping:
		done := e.opDone
		e.mu.Unlock()
		<-done
		return
	}

	e.op = opStopping
	done := make(chan struct{})
	e.opDone = done
	e.mu.Unlock()

	e.teardown(reason)

	e.mu.Lock()
	e.op = opIdle
	close(done)
	e.mu.Unlock()
}

// teardown stops capture before processing, so no frame is admitted once
// it returns.
func (e *Engine) teardown(reason string) {
	if err := e.machine.BeginStop(); err != nil {
		log.Printf("Warning: %v", err)
	}

	e.config.Source.Stop()
	for _, s := range e.pool.Close() {
		s.Release()
	}
	e.stopPipeline()

	e.detector.Invalidate()
	e.smoother.Reset()

	if err := e.machine.Finish(); err != nil {
		log.Printf("Warning: %v", err)
	}

	e.mu.Lock()
	sess := e.session
	e.session = nil
	e.mu.Unlock()
	if sess != nil {
		sum := sess.finish(e, reason)
		log.Printf("Tracking stopped (%s): %d frames in %s, %d eye changes",
			reason, sum.Frames, sum.Duration, sum.Machine.EyeChanges)
	}
}

func (e *Engine) stopPipeline() {
	e.mu.Lock()
	stop, done := e.procStop, e.procDone
	e.procStop, e.procDone = nil, nil
	e.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// CaptureFailed pauses tracking and stops the session after the frame
// source gave up. It may be called from the capture goroutine.
func (e *Engine) CaptureFailed(err error) {
	e.setLastError(err)
	log.Printf("Camera failure: %v", err)
	e.machine.Pause(blink.ReasonCaptureFailed)
	go e.stop(EndCaptureFailed)
}

// PrepareForTermination waits for any in-flight start or stop, stops a
// running session and releases the engine. Later Start calls fail with
// ErrTerminated. It is safe to call more than once. When ctx ends first it
// returns ctx.Err() and any stop in progress finishes in the background.
func (e *Engine) PrepareForTermination(ctx context.Context) error {
	for {
		e.mu.Lock()
		switch e.op {
		case opTerminated:
			e.mu.Unlock()
			return nil
		case opStarting, opStopping:
			done := e.opDone
			e.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		case opRunning:
			e.mu.Unlock()
			stopped := make(chan struct{})
			go func() {
				defer close(stopped)
				e.stop(EndTerminated)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		e.op = opTerminated
		e.mu.Unlock()
		return e.release()
	}
}

func (e *Engine) release() error {
	if e.prefsCancel != nil {
		e.prefsCancel()
	}
	e.eyeOpen.Close()
	e.active.Close()
	e.transitions.Close()

	var errs []error
	if err := e.config.Analyzer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close analyzer: %w", err))
	}
	log.Println("Engine released")
	return errors.Join(errs...)
}
