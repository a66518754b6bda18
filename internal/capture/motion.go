package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/blinkwatch/internal/frame"
)

// Scene change constants
const (
	// DefaultSceneChangePercent is the share of changed pixels that counts as a scene change.
	DefaultSceneChangePercent = 12.0
	// motionBlurSize is the Gaussian kernel applied before differencing.
	motionBlurSize = 9
	// motionDiffThreshold is the binary threshold for per-pixel change.
	motionDiffThreshold = 25
	// motionScaleWidth is the width frames are reduced to before comparison.
	motionScaleWidth = 160
)

// MotionDetector compares consecutive frames on a reduced grayscale copy.
// A large change means a cached face region is probably stale, so the
// landmark stage uses it as a hint to run full-frame detection.
type MotionDetector struct {
	threshold   float64
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionDetector creates a MotionDetector. threshold is the percentage of
// pixels that must change between frames; values <= 0 use the default.
func NewMotionDetector(threshold float64) *MotionDetector {
	if threshold <= 0 {
		threshold = DefaultSceneChangePercent
	}
	return &MotionDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Changed reports whether the sample differs enough from the previous one.
// Samples without a gocv buffer never count as a change.
func (m *MotionDetector) Changed(s *frame.Sample) bool {
	mat, ok := s.Buffer().(*gocv.Mat)
	if !ok || mat == nil {
		return false
	}
	changed, _ := m.Detect(mat)
	return changed
}

// Detect analyzes a frame against the previous one and returns whether the
// change exceeded the threshold along with the changed pixel percentage.
// The first frame after construction or Reset only establishes a baseline.
func (m *MotionDetector) Detect(img *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if img == nil || img.Empty() {
		return false, 0
	}

	small := gocv.NewMat()
	defer small.Close()
	height := img.Rows() * motionScaleWidth / img.Cols()
	if height < 1 {
		height = 1
	}
	gocv.Resize(*img, &small, image.Pt(motionScaleWidth, height), 0, 0, gocv.InterpolationArea)

	gray := gocv.NewMat()
	defer gray.Close()
	if small.Channels() > 1 {
		gocv.CvtColor(small, &gray, gocv.ColorBGRToGray)
	} else {
		small.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Pt(motionBlurSize, motionBlurSize), 0, 0, gocv.BorderDefault)

	if !m.initialized {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, motionDiffThreshold, 255, gocv.ThresholdBinary)

	changePercent := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0

	blurred.CopyTo(&m.prevGray)

	return changePercent > m.threshold, changePercent
}

// Reset drops the baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}

// Close releases resources used by the motion detector.
func (m *MotionDetector) Close() {
	m.Reset()
}
