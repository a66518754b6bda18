package facemesh

import (
	"encoding/json"
	"fmt"

	"github.com/ayusman/blinkwatch/internal/landmark"
)

// response is the JSON line written by the service.
type response struct {
	Faces []face `json:"faces"`
	Error string `json:"error,omitempty"`
}

// face is one detection. Box and Mesh are normalized to the image that was
// sent; after scaled they hold source-frame pixels.
type face struct {
	Score    float64      `json:"score"`
	Presence float64      `json:"presence"`
	Box      [4]float64   `json:"box"`
	Mesh     [][2]float64 `json:"mesh"`
}

func parseResponse(line []byte) (*response, error) {
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("facemesh service: %s", resp.Error)
	}
	return &resp, nil
}

func (f face) box() landmark.Rect {
	return landmark.Rect{X: f.Box[0], Y: f.Box[1], W: f.Box[2], H: f.Box[3]}
}

// scaled maps normalized mesh points into the frame rectangle at (x0, y0)
// with size w by h.
func (f face) scaled(x0, y0, w, h float64) face {
	out := f
	out.Mesh = make([][2]float64, len(f.Mesh))
	for i, p := range f.Mesh {
		out.Mesh[i] = [2]float64{x0 + p[0]*w, y0 + p[1]*h}
	}
	return out
}

// landmarks extracts the eye contours. A mesh that is too short yields
// landmarks without eyes, which the detector reports as eyes not visible.
func (f face) landmarks() *landmark.Landmarks {
	lm := &landmark.Landmarks{
		Confidence:     f.Presence,
		FaceConfidence: f.Score,
	}
	if len(f.Mesh) < landmark.MeshSize {
		return lm
	}
	lm.LeftEye = contour(f.Mesh, landmark.LeftEyeContour)
	lm.RightEye = contour(f.Mesh, landmark.RightEyeContour)
	return lm
}

func contour(mesh [][2]float64, idx [6]int) []landmark.Point {
	pts := make([]landmark.Point, len(idx))
	for i, j := range idx {
		pts[i] = landmark.Point{X: mesh[j][0], Y: mesh[j][1]}
	}
	return pts
}
