// Package eye turns eye landmark contours into an open/closed verdict.
package eye

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ayusman/blinkwatch/internal/landmark"
	"gonum.org/v1/gonum/stat"
)

// ErrNoEyes is returned when neither eye has a usable contour.
var ErrNoEyes = errors.New("no usable eye contour")

// ContourPoints is the minimum number of points in an eyelid contour.
const ContourPoints = 6

// AspectRatio returns the eye aspect ratio of a contour ordered
// [corner, upper, upper, corner, lower, lower]. It returns 0 when the eye
// width is zero or the contour is too short.
func AspectRatio(p []landmark.Point) float64 {
	if len(p) < ContourPoints {
		return 0
	}
	h1 := dist(p[1], p[5])
	h2 := dist(p[2], p[4])
	w := dist(p[0], p[3])
	if w <= 0 {
		return 0
	}
	return (h1 + h2) / (2 * w)
}

func dist(a, b landmark.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// Metric is one openness measurement. A missing eye has no score.
type Metric struct {
	Left      *float64  `json:"left,omitempty"`
	Right     *float64  `json:"right,omitempty"`
	Combined  float64   `json:"combined"`
	Timestamp time.Time `json:"timestamp"`
}

// Verdict is the estimator output.
type Verdict struct {
	Open       bool    `json:"open"`
	Confidence float64 `json:"confidence"`
	Metric     Metric  `json:"metric"`
}

// Estimator decides whether the eyes of an observed face are open.
// A learned classifier can replace the EAR implementation behind it.
type Estimator interface {
	Estimate(obs *landmark.FaceObservation) (Verdict, error)
}

// Sensitivity is the user-facing threshold setting.
type Sensitivity int

const (
	SensitivityLow Sensitivity = iota
	SensitivityMedium
	SensitivityHigh
)

// Threshold values per sensitivity. Higher sensitivity demands wider eyes
// before they count as open.
const (
	ThresholdLow    = 0.12
	ThresholdMedium = 0.16
	ThresholdHigh   = 0.20
)

// Threshold returns the EAR threshold for s.
func (s Sensitivity) Threshold() float64 {
	switch s {
	case SensitivityLow:
		return ThresholdLow
	case SensitivityHigh:
		return ThresholdHigh
	default:
		return ThresholdMedium
	}
}

func (s Sensitivity) String() string {
	switch s {
	case SensitivityLow:
		return "low"
	case SensitivityMedium:
		return "medium"
	case SensitivityHigh:
		return "high"
	default:
		return fmt.Sprintf("sensitivity(%d)", int(s))
	}
}

// ParseSensitivity parses "low", "medium" or "high".
func ParseSensitivity(v string) (Sensitivity, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "low":
		return SensitivityLow, nil
	case "medium", "":
		return SensitivityMedium, nil
	case "high":
		return SensitivityHigh, nil
	default:
		return SensitivityMedium, fmt.Errorf("unknown sensitivity %q", v)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Sensitivity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Sensitivity) UnmarshalText(b []byte) error {
	v, err := ParseSensitivity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// EARClassifier is the geometric Estimator. The threshold can be swapped
// while frames are being processed.
type EARClassifier struct {
	threshold atomic.Uint64
}

// NewEARClassifier creates a classifier with the given threshold.
func NewEARClassifier(threshold float64) *EARClassifier {
	c := &EARClassifier{}
	c.SetThreshold(threshold)
	return c
}

// SetThreshold replaces the threshold.
func (c *EARClassifier) SetThreshold(threshold float64) {
	c.threshold.Store(math.Float64bits(threshold))
}

// Threshold returns the current threshold.
func (c *EARClassifier) Threshold() float64 {
	return math.Float64frombits(c.threshold.Load())
}

// Estimate computes per-eye EAR and averages the eyes that have a contour.
// The eyes are open iff the combined score exceeds the threshold. Confidence
// grows with the distance from the threshold, scaled by landmark confidence.
func (c *EARClassifier) Estimate(obs *landmark.FaceObservation) (Verdict, error) {
	if obs == nil {
		return Verdict{}, ErrNoEyes
	}

	m := Metric{Timestamp: obs.ObservedAt}
	var scores []float64
	if len(obs.LeftEye) >= ContourPoints {
		left := AspectRatio(obs.LeftEye)
		m.Left = &left
		scores = append(scores, left)
	}
	if len(obs.RightEye) >= ContourPoints {
		right := AspectRatio(obs.RightEye)
		m.Right = &right
		scores = append(scores, right)
	}
	if len(scores) == 0 {
		return Verdict{Metric: m}, ErrNoEyes
	}
	m.Combined = stat.Mean(scores, nil)

	threshold := c.Threshold()
	margin := math.Abs(m.Combined - threshold)
	if threshold > 0 {
		margin /= threshold
	}
	conf := math.Min(1, 0.5+margin)
	if obs.LandmarkConfidence > 0 {
		conf *= obs.LandmarkConfidence
	}

	return Verdict{
		Open:       m.Combined > threshold,
		Confidence: conf,
		Metric:     m,
	}, nil
}
