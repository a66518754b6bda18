package engine

import (
	"log"

	"github.com/ayusman/blinkwatch/internal/blink"
	"github.com/ayusman/blinkwatch/internal/frame"
	"github.com/ayusman/blinkwatch/internal/landmark"
)

// runPipeline is the processing goroutine. It takes admitted frames one at
// a time, oldest first.
func (e *Engine) runPipeline(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-e.pool.Ready():
		}

		for {
			select {
			case <-stop:
				return
			default:
			}

			s := e.pool.Pop()
			if s == nil {
				break
			}
			e.processFrame(s)
		}
	}
}

func (e *Engine) processFrame(s *frame.Sample) {
	defer func() {
		s.Release()
		e.frames.Add(1)
	}()

	if profile, changed := e.governor.Observe(); changed {
		for _, old := range e.pool.Resize(profile.PoolCapacity) {
			old.Release()
		}
	}

	out := e.detector.Process(s, e.governor.Profile().CacheTTL)
	if !out.Usable() {
		if out.Err != nil {
			e.setLastError(out.Err)
		}
		e.smoother.Reset()
		e.observe(blink.Observation{Reason: pauseReason(out.Reason)})
		return
	}

	v, err := e.estimator.Estimate(out.Observation)
	if err != nil {
		e.smoother.Reset()
		e.observe(blink.Observation{Reason: blink.ReasonEyesNotVisible})
		return
	}

	m := v.Metric
	e.statusMu.Lock()
	e.lastMetric = &m
	e.statusMu.Unlock()

	open := e.smoother.Push(v.Open)
	e.observe(blink.Observation{Usable: true, EyeOpen: open})
}

func (e *Engine) observe(o blink.Observation) {
	e.machine.Observe(o)

	reason := blink.ReasonNone
	if !o.Usable {
		reason = o.Reason
	}
	if reason != e.lastReason {
		if reason == blink.ReasonNone {
			log.Printf("Tracking resumed")
		} else {
			log.Printf("Tracking paused: %s", reason)
		}
		e.lastReason = reason
	}
}

func pauseReason(r landmark.Reason) blink.PauseReason {
	switch r {
	case landmark.ReasonNoFace:
		return blink.ReasonNoFace
	case landmark.ReasonMultipleFaces:
		return blink.ReasonMultipleFaces
	case landmark.ReasonLowConfidence:
		return blink.ReasonLowConfidence
	case landmark.ReasonEyesNotVisible:
		return blink.ReasonEyesNotVisible
	default:
		return blink.ReasonDetectionFailed
	}
}
