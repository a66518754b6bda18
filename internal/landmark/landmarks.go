// Package landmark finds a face and its eye contours in admitted frames.
package landmark

import (
	"time"

	"github.com/ayusman/blinkwatch/internal/frame"
)

// Eye contour indices in the 468-point face mesh, ordered as
// [corner, upper, upper, corner, lower, lower] so that points 1/5 and 2/4
// face each other across the eyelid.
var (
	// LeftEyeContour is the subject's left eye.
	LeftEyeContour = [6]int{362, 385, 387, 263, 373, 380}
	// RightEyeContour is the subject's right eye.
	RightEyeContour = [6]int{33, 160, 158, 133, 153, 144}
)

// MeshSize is the number of points in a full face mesh.
const MeshSize = 468

// Point is a 2D landmark position in source-frame pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is a bounding box normalized to the frame size (0-1).
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Area returns the area of the box.
func (r Rect) Area() float64 {
	return r.W * r.H
}

// Expand grows the box by margin (a fraction of its size) on every side and
// clips it to the unit square.
func (r Rect) Expand(margin float64) Rect {
	dx, dy := r.W*margin, r.H*margin
	x0, y0 := clip01(r.X-dx), clip01(r.Y-dy)
	x1, y1 := clip01(r.X+r.W+dx), clip01(r.Y+r.H+dy)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Face is one full-frame detection.
type Face struct {
	Box        Rect    `json:"box"`
	Confidence float64 `json:"confidence"`
}

// Landmarks is the result of a landmark pass over a face region.
type Landmarks struct {
	LeftEye  []Point `json:"left_eye"`
	RightEye []Point `json:"right_eye"`
	// Confidence is the landmark model's confidence.
	Confidence float64 `json:"confidence"`
	// FaceConfidence re-scores the face inside the region. A landmark-only
	// pass over a cached region uses it to notice the face is gone.
	FaceConfidence float64 `json:"face_confidence"`
}

// FaceObservation is the current usable face.
type FaceObservation struct {
	Box                Rect      `json:"box"`
	Confidence         float64   `json:"confidence"`
	LeftEye            []Point   `json:"left_eye"`
	RightEye           []Point   `json:"right_eye"`
	LandmarkConfidence float64   `json:"landmark_confidence"`
	FrameSeq           uint64    `json:"frame_seq"`
	ObservedAt         time.Time `json:"observed_at"`
}

// FaceFinder runs full-frame face detection.
type FaceFinder interface {
	FindFaces(s *frame.Sample) ([]Face, error)
}

// LandmarkFinder extracts eye landmarks inside a face region.
type LandmarkFinder interface {
	FindLandmarks(s *frame.Sample, region Rect) (*Landmarks, error)
}

// Analyzer is a complete vision backend.
type Analyzer interface {
	FaceFinder
	LandmarkFinder

	// Close releases any resources held by the analyzer.
	Close() error
}
