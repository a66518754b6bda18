package landmark

import (
	"sync"

	"github.com/ayusman/blinkwatch/internal/frame"
)

// Scene is what a MockAnalyzer reports for one frame.
type Scene struct {
	Faces       []Face
	Landmarks   *Landmarks
	FaceErr     error
	LandmarkErr error
}

// MockAnalyzer is a test implementation of the Analyzer interface.
// It allows tests to control the detection results, either statically or
// per frame through a scene script.
type MockAnalyzer struct {
	mu            sync.Mutex
	scene         Scene
	script        func(s *frame.Sample) Scene
	faceCalls     int
	landmarkCalls int
	closed        bool
}

// NewMockAnalyzer creates a new MockAnalyzer instance.
func NewMockAnalyzer() *MockAnalyzer {
	return &MockAnalyzer{}
}

// SetFaces sets the faces returned by FindFaces.
func (m *MockAnalyzer) SetFaces(faces []Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scene.Faces = faces
}

// SetLandmarks sets the landmarks returned by FindLandmarks.
func (m *MockAnalyzer) SetLandmarks(lm *Landmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scene.Landmarks = lm
}

// SetError sets the error returned by both finders.
func (m *MockAnalyzer) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scene.FaceErr = err
	m.scene.LandmarkErr = err
}

// SetScene replaces the static scene.
func (m *MockAnalyzer) SetScene(scene Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scene = scene
}

// SetScript makes every call ask fn for the scene of the frame being analyzed.
// It takes precedence over the static scene.
func (m *MockAnalyzer) SetScript(fn func(s *frame.Sample) Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = fn
}

func (m *MockAnalyzer) current(s *frame.Sample) Scene {
	if m.script != nil {
		return m.script(s)
	}
	return m.scene
}

// FindFaces returns the pre-configured faces or error.
func (m *MockAnalyzer) FindFaces(s *frame.Sample) ([]Face, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faceCalls++
	scene := m.current(s)
	if scene.FaceErr != nil {
		return nil, scene.FaceErr
	}
	return scene.Faces, nil
}

// FindLandmarks returns the pre-configured landmarks or error.
func (m *MockAnalyzer) FindLandmarks(s *frame.Sample, _ Rect) (*Landmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.landmarkCalls++
	scene := m.current(s)
	if scene.LandmarkErr != nil {
		return nil, scene.LandmarkErr
	}
	return scene.Landmarks, nil
}

// Calls returns how many times each finder ran.
func (m *MockAnalyzer) Calls() (faces, landmarks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.faceCalls, m.landmarkCalls
}

// Closed reports whether Close was called.
func (m *MockAnalyzer) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the mock closed.
func (m *MockAnalyzer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// EyeContour returns a six-point eyelid contour centred on c whose eye aspect
// ratio is ear. Points are ordered corner, upper, upper, corner, lower, lower.
func EyeContour(c Point, width, ear float64) []Point {
	h := ear * width
	return []Point{
		{X: c.X - width/2, Y: c.Y},
		{X: c.X - width/6, Y: c.Y - h/2},
		{X: c.X + width/6, Y: c.Y - h/2},
		{X: c.X + width/2, Y: c.Y},
		{X: c.X + width/6, Y: c.Y + h/2},
		{X: c.X - width/6, Y: c.Y + h/2},
	}
}

// FrontalFace returns a single centred high-confidence face.
func FrontalFace() []Face {
	return []Face{{Box: Rect{X: 0.3, Y: 0.2, W: 0.4, H: 0.55}, Confidence: 0.95}}
}

// EyesWithRatio returns high-confidence landmarks for a frontal face where
// both eyes have the given aspect ratio.
func EyesWithRatio(ear float64) *Landmarks {
	return &Landmarks{
		LeftEye:        EyeContour(Point{X: 370, Y: 200}, 60, ear),
		RightEye:       EyeContour(Point{X: 270, Y: 200}, 60, ear),
		Confidence:     0.95,
		FaceConfidence: 0.95,
	}
}
