package landmark

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ayusman/blinkwatch/internal/frame"
)

// ErrSampleReleased is reported when a sample reaches the detector after its
// buffer was returned.
var ErrSampleReleased = errors.New("sample already released")

// Reason explains why a frame produced no usable eye data.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNoFace
	ReasonMultipleFaces
	ReasonLowConfidence
	ReasonEyesNotVisible
	ReasonDetectionError
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonNoFace:
		return "no_face"
	case ReasonMultipleFaces:
		return "multiple_faces"
	case ReasonLowConfidence:
		return "low_confidence"
	case ReasonEyesNotVisible:
		return "eyes_not_visible"
	case ReasonDetectionError:
		return "detection_error"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Outcome is the per-frame detection result.
type Outcome struct {
	FaceDetected  bool
	MultipleFaces bool
	EyesVisible   bool
	Observation   *FaceObservation
	Reason        Reason
	// Cached is set when the result came from the landmark-only pass.
	Cached bool
	// Err holds the underlying failure for ReasonDetectionError.
	Err error
}

// Usable reports whether the frame carries eye data downstream stages may use.
func (o Outcome) Usable() bool {
	return o.EyesVisible && o.Observation != nil && o.Reason == ReasonNone
}

// Config holds detector thresholds.
type Config struct {
	// FaceConfidence is the minimum face score for a face to be used or cached.
	FaceConfidence float64
	// LandmarkConfidence is the minimum landmark score for eyes to be usable.
	LandmarkConfidence float64
	// MinEyePoints is the minimum contour size per eye.
	MinEyePoints int
	// RegionMargin grows the face box before the landmark pass.
	RegionMargin float64
}

// DefaultConfig returns the default detector thresholds.
func DefaultConfig() Config {
	return Config{
		FaceConfidence:     0.7,
		LandmarkConfidence: 0.8,
		MinEyePoints:       6,
		RegionMargin:       0.15,
	}
}

// Stats counts detector passes.
type Stats struct {
	Frames        uint64 `json:"frames"`
	FullPasses    uint64 `json:"full_passes"`
	CachedPasses  uint64 `json:"cached_passes"`
	Invalidations uint64 `json:"invalidations"`
	Errors        uint64 `json:"errors"`
}

type cachedFace struct {
	box        Rect
	confidence float64
	cachedAt   time.Time
}

// Detector runs the two-tier face and landmark pipeline. A high-confidence
// face region found by a full-frame pass is reused for landmark-only passes
// until it is older than the current cache TTL or any pass fails.
//
// Process is meant to be called from a single processing goroutine. The lock
// guards the cache and counters only and is never held across analyzer
// calls, so Invalidate and Stats return promptly while a pass is running. An
// Invalidate that lands during a pass discards the region that pass finds.
type Detector struct {
	analyzer Analyzer
	config   Config

	mu          sync.Mutex
	cache       *cachedFace
	gen         uint64
	sceneChange func(*frame.Sample) bool
	stats       Stats
}

// NewDetector creates a detector over analyzer. Zero config fields take
// their defaults.
func NewDetector(analyzer Analyzer, config Config) *Detector {
	def := DefaultConfig()
	if config.FaceConfidence <= 0 {
		config.FaceConfidence = def.FaceConfidence
	}
	if config.LandmarkConfidence <= 0 {
		config.LandmarkConfidence = def.LandmarkConfidence
	}
	if config.MinEyePoints < 6 {
		config.MinEyePoints = def.MinEyePoints
	}
	if config.RegionMargin < 0 {
		config.RegionMargin = 0
	}
	return &Detector{analyzer: analyzer, config: config}
}

// SetSceneChangeHint installs a check that forces a full-frame pass when it
// reports the scene changed since the last frame.
func (d *Detector) SetSceneChangeHint(fn func(*frame.Sample) bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sceneChange = fn
}

// Invalidate drops the cached face region.
func (d *Detector) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidateLocked()
}

// Stats returns the pass counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Process analyzes s. ttl is the current cache validity; zero disables the
// landmark-only pass. Failures of the vision backend, including panics, are
// reported as ReasonDetectionError and never propagate.
func (d *Detector) Process(s *frame.Sample, ttl time.Duration) (out Outcome) {
	d.count(func(st *Stats) { st.Frames++ })

	defer func() {
		if r := recover(); r != nil {
			d.mu.Lock()
			d.invalidateLocked()
			d.stats.Errors++
			d.mu.Unlock()
			out = Outcome{Reason: ReasonDetectionError, Err: fmt.Errorf("analyzer panic: %v", r)}
		}
	}()

	if s.Released() {
		d.count(func(st *Stats) { st.Errors++ })
		return Outcome{Reason: ReasonDetectionError, Err: ErrSampleReleased}
	}

	if cache, gen, ok := d.usableCache(s, ttl); ok {
		if out, ok := d.cachedPass(s, cache, gen); ok {
			return out
		}
	}
	return d.fullPass(s)
}

func (d *Detector) count(fn func(*Stats)) {
	d.mu.Lock()
	fn(&d.stats)
	d.mu.Unlock()
}

// usableCache returns a copy of the cached region and its generation when it
// may serve a landmark-only pass for s.
func (d *Detector) usableCache(s *frame.Sample, ttl time.Duration) (cachedFace, uint64, bool) {
	d.mu.Lock()
	cache, gen, sceneChange := d.cache, d.gen, d.sceneChange
	d.mu.Unlock()

	if cache == nil {
		return cachedFace{}, gen, false
	}
	if ttl <= 0 || s.Timestamp.Sub(cache.cachedAt) >= ttl || (sceneChange != nil && sceneChange(s)) {
		d.invalidate(gen)
		return cachedFace{}, gen, false
	}
	return *cache, gen, cache.confidence >= d.config.FaceConfidence
}

// cachedPass runs landmarks over the cached region. It returns false when the
// cache had to be dropped and a full pass is needed.
func (d *Detector) cachedPass(s *frame.Sample, cache cachedFace, gen uint64) (Outcome, bool) {
	d.count(func(st *Stats) { st.CachedPasses++ })

	lm, err := d.analyzer.FindLandmarks(s, cache.box.Expand(d.config.RegionMargin))
	if err != nil {
		log.Printf("landmark: cached pass on frame %d failed: %v", s.Seq, err)
		d.mu.Lock()
		d.stats.Errors++
		d.invalidateGenLocked(gen)
		d.mu.Unlock()
		return Outcome{}, false
	}
	if lm == nil || lm.FaceConfidence < d.config.FaceConfidence {
		d.invalidate(gen)
		return Outcome{}, false
	}

	face := Face{Box: cache.box, Confidence: lm.FaceConfidence}
	out := d.evaluate(s, face, lm)
	out.Cached = true
	return out, true
}

func (d *Detector) fullPass(s *frame.Sample) Outcome {
	d.mu.Lock()
	d.stats.FullPasses++
	gen := d.gen
	d.mu.Unlock()

	faces, err := d.analyzer.FindFaces(s)
	if err != nil {
		d.fail()
		return Outcome{Reason: ReasonDetectionError, Err: fmt.Errorf("find faces: %w", err)}
	}

	switch {
	case len(faces) == 0:
		d.Invalidate()
		return Outcome{Reason: ReasonNoFace}
	case len(faces) > 1:
		d.Invalidate()
		return Outcome{FaceDetected: true, MultipleFaces: true, Reason: ReasonMultipleFaces}
	}

	face := faces[0]
	if face.Confidence < d.config.FaceConfidence {
		d.Invalidate()
		return Outcome{FaceDetected: true, Reason: ReasonLowConfidence}
	}

	lm, err := d.analyzer.FindLandmarks(s, face.Box.Expand(d.config.RegionMargin))
	if err != nil {
		d.fail()
		return Outcome{FaceDetected: true, Reason: ReasonDetectionError, Err: fmt.Errorf("find landmarks: %w", err)}
	}

	d.mu.Lock()
	if d.gen == gen {
		d.cache = &cachedFace{box: face.Box, confidence: face.Confidence, cachedAt: s.Timestamp}
	}
	d.mu.Unlock()
	if lm == nil {
		return Outcome{FaceDetected: true, Reason: ReasonEyesNotVisible}
	}
	return d.evaluate(s, face, lm)
}

// evaluate applies the landmark thresholds to a confirmed face.
func (d *Detector) evaluate(s *frame.Sample, face Face, lm *Landmarks) Outcome {
	if lm.Confidence < d.config.LandmarkConfidence {
		return Outcome{FaceDetected: true, Reason: ReasonLowConfidence}
	}
	if len(lm.LeftEye) < d.config.MinEyePoints || len(lm.RightEye) < d.config.MinEyePoints {
		return Outcome{FaceDetected: true, Reason: ReasonEyesNotVisible}
	}

	return Outcome{
		FaceDetected: true,
		EyesVisible:  true,
		Observation: &FaceObservation{
			Box:                face.Box,
			Confidence:         face.Confidence,
			LeftEye:            lm.LeftEye,
			RightEye:           lm.RightEye,
			LandmarkConfidence: lm.Confidence,
			FrameSeq:           s.Seq,
			ObservedAt:         s.Timestamp,
		},
	}
}

func (d *Detector) fail() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Errors++
	d.invalidateLocked()
}

// invalidate drops the cache only if nothing replaced or dropped it since gen.
func (d *Detector) invalidate(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.invalidateGenLocked(gen)
}

func (d *Detector) invalidateGenLocked(gen uint64) {
	if d.gen == gen {
		d.invalidateLocked()
	}
}

// invalidateLocked drops the cache and starts a new generation, so a pass
// already in flight will not store its region.
func (d *Detector) invalidateLocked() {
	d.gen++
	if d.cache != nil {
		d.cache = nil
		d.stats.Invalidations++
	}
}
