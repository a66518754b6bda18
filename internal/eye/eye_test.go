package eye

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/ayusman/blinkwatch/internal/landmark"
)

const epsilon = 1e-9

func TestAspectRatio(t *testing.T) {
	tests := []struct {
		name string
		pts  []landmark.Point
		want float64
	}{
		{
			name: "fixture contour",
			pts:  landmark.EyeContour(landmark.Point{X: 100, Y: 100}, 60, 0.3),
			want: 0.3,
		},
		{
			name: "closed eye",
			pts:  landmark.EyeContour(landmark.Point{X: 100, Y: 100}, 60, 0),
			want: 0,
		},
		{
			name: "zero width",
			pts: []landmark.Point{
				{X: 5, Y: 5}, {X: 5, Y: 1}, {X: 5, Y: 2},
				{X: 5, Y: 5}, {X: 5, Y: 8}, {X: 5, Y: 9},
			},
			want: 0,
		},
		{
			name: "all points coincide",
			pts:  make([]landmark.Point, 6),
			want: 0,
		},
		{
			name: "short contour",
			pts:  []landmark.Point{{X: 0, Y: 0}, {X: 1, Y: 1}},
			want: 0,
		},
		{
			name: "hand computed",
			// h1 = |(1,-1)-(1,1)| = 2, h2 = |(3,-1)-(3,1)| = 2, w = 4
			pts: []landmark.Point{
				{X: 0, Y: 0}, {X: 1, Y: -1}, {X: 3, Y: -1},
				{X: 4, Y: 0}, {X: 3, Y: 1}, {X: 1, Y: 1},
			},
			want: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AspectRatio(tt.pts)
			if math.IsNaN(got) || math.Abs(got-tt.want) > epsilon {
				t.Errorf("AspectRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

func observation(left, right []landmark.Point) *landmark.FaceObservation {
	return &landmark.FaceObservation{
		Confidence:         0.95,
		LeftEye:            left,
		RightEye:           right,
		LandmarkConfidence: 1,
	}
}

func TestEARClassifier_Estimate(t *testing.T) {
	c := NewEARClassifier(ThresholdMedium)
	center := landmark.Point{X: 50, Y: 50}

	tests := []struct {
		name         string
		obs          *landmark.FaceObservation
		wantOpen     bool
		wantCombined float64
	}{
		{
			name:         "both eyes open",
			obs:          observation(landmark.EyeContour(center, 40, 0.3), landmark.EyeContour(center, 40, 0.3)),
			wantOpen:     true,
			wantCombined: 0.3,
		},
		{
			name:         "both eyes closed",
			obs:          observation(landmark.EyeContour(center, 40, 0.05), landmark.EyeContour(center, 40, 0.05)),
			wantOpen:     false,
			wantCombined: 0.05,
		},
		{
			name:         "mean of both eyes",
			obs:          observation(landmark.EyeContour(center, 40, 0.1), landmark.EyeContour(center, 40, 0.3)),
			wantOpen:     true,
			wantCombined: 0.2,
		},
		{
			name:         "only left eye",
			obs:          observation(landmark.EyeContour(center, 40, 0.25), nil),
			wantOpen:     true,
			wantCombined: 0.25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := c.Estimate(tt.obs)
			if err != nil {
				t.Fatalf("Estimate() error = %v", err)
			}
			if v.Open != tt.wantOpen {
				t.Errorf("Open = %v, want %v", v.Open, tt.wantOpen)
			}
			if math.Abs(v.Metric.Combined-tt.wantCombined) > 1e-6 {
				t.Errorf("Combined = %v, want %v", v.Metric.Combined, tt.wantCombined)
			}
			if v.Confidence <= 0 || v.Confidence > 1 {
				t.Errorf("Confidence = %v, want in (0, 1]", v.Confidence)
			}
		})
	}
}

func TestEARClassifier_TieIsClosed(t *testing.T) {
	// EAR of this contour is exactly 0.5.
	pts := []landmark.Point{
		{X: 0, Y: 0}, {X: 1, Y: -1}, {X: 3, Y: -1},
		{X: 4, Y: 0}, {X: 3, Y: 1}, {X: 1, Y: 1},
	}
	c := NewEARClassifier(0.5)

	v, err := c.Estimate(observation(pts, pts))
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if v.Open {
		t.Error("a score equal to the threshold must be closed")
	}
}

func TestEARClassifier_SingleEye(t *testing.T) {
	c := NewEARClassifier(ThresholdMedium)
	v, err := c.Estimate(observation(nil, landmark.EyeContour(landmark.Point{}, 40, 0.3)))
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}
	if v.Metric.Left != nil {
		t.Errorf("Left = %v, want no score for a missing eye", *v.Metric.Left)
	}
	if v.Metric.Right == nil || math.Abs(*v.Metric.Right-v.Metric.Combined) > epsilon {
		t.Errorf("Right = %v, want the combined score %v", v.Metric.Right, v.Metric.Combined)
	}

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	metric, _ := got["metric"].(map[string]any)
	if _, ok := metric["left"]; ok {
		t.Errorf("metric %s should omit the missing eye", data)
	}
	if _, ok := metric["right"]; !ok {
		t.Errorf("metric %s should carry the right eye", data)
	}
}

func TestEARClassifier_NoEyes(t *testing.T) {
	c := NewEARClassifier(ThresholdMedium)

	if _, err := c.Estimate(observation(nil, nil)); !errors.Is(err, ErrNoEyes) {
		t.Errorf("Estimate() error = %v, want ErrNoEyes", err)
	}
	if _, err := c.Estimate(nil); !errors.Is(err, ErrNoEyes) {
		t.Errorf("Estimate(nil) error = %v, want ErrNoEyes", err)
	}
}

func TestEARClassifier_SetThreshold(t *testing.T) {
	c := NewEARClassifier(ThresholdLow)
	obs := observation(
		landmark.EyeContour(landmark.Point{}, 40, 0.18),
		landmark.EyeContour(landmark.Point{}, 40, 0.18),
	)

	v, _ := c.Estimate(obs)
	if !v.Open {
		t.Fatal("0.18 should be open at the low threshold")
	}

	c.SetThreshold(SensitivityHigh.Threshold())
	v, _ = c.Estimate(obs)
	if v.Open {
		t.Error("0.18 should be closed at the high threshold")
	}
}

func TestSensitivity(t *testing.T) {
	tests := []struct {
		in   string
		want Sensitivity
		th   float64
	}{
		{"low", SensitivityLow, 0.12},
		{"Medium", SensitivityMedium, 0.16},
		{" high ", SensitivityHigh, 0.20},
		{"", SensitivityMedium, 0.16},
	}

	for _, tt := range tests {
		got, err := ParseSensitivity(tt.in)
		if err != nil {
			t.Errorf("ParseSensitivity(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want || got.Threshold() != tt.th {
			t.Errorf("ParseSensitivity(%q) = %v (%v), want %v (%v)", tt.in, got, got.Threshold(), tt.want, tt.th)
		}
	}

	if _, err := ParseSensitivity("extreme"); err == nil {
		t.Error("expected error for unknown sensitivity")
	}

	var s Sensitivity
	if err := s.UnmarshalText([]byte("high")); err != nil || s != SensitivityHigh {
		t.Errorf("UnmarshalText(high) = %v, %v", s, err)
	}
}
