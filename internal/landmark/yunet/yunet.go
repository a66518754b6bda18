// Package yunet finds faces with OpenCV's FaceDetectorYN.
package yunet

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/ayusman/blinkwatch/internal/frame"
	"github.com/ayusman/blinkwatch/internal/landmark"
	"gocv.io/x/gocv"
)

// Config holds detector configuration.
type Config struct {
	ModelPath        string  // Path to ONNX model
	ConfidenceThresh float64 // Minimum score reported by the model
	NMSThresh        float64
	InputWidth       int
	InputHeight      int
}

// DefaultConfig returns production defaults for YuNet.
// The score threshold is deliberately below the face threshold used by the
// detector so that weak second faces are still counted.
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// Finder implements landmark.FaceFinder over a gocv.FaceDetectorYN.
type Finder struct {
	detector gocv.FaceDetectorYN
	mu       sync.Mutex // Protects inference
}

// New loads the model at cfg.ModelPath.
func New(cfg Config) (*Finder, error) {
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	def := DefaultConfig()
	if cfg.InputWidth <= 0 || cfg.InputHeight <= 0 {
		cfg.InputWidth, cfg.InputHeight = def.InputWidth, def.InputHeight
	}
	if cfg.NMSThresh <= 0 {
		cfg.NMSThresh = def.NMSThresh
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &Finder{detector: detector}, nil
}

// FindFaces implements landmark.FaceFinder.
func (f *Finder) FindFaces(s *frame.Sample) ([]landmark.Face, error) {
	buf := s.Buffer()
	if buf == nil {
		return nil, landmark.ErrSampleReleased
	}
	img, ok := buf.(*gocv.Mat)
	if !ok {
		return nil, errors.New("sample buffer is not a gocv.Mat")
	}
	if img.Empty() {
		return nil, errors.New("empty image")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	imgW, imgH := float64(img.Cols()), float64(img.Rows())
	f.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	out := gocv.NewMat()
	defer out.Close()
	f.detector.Detect(*img, &out)

	// 15 columns per row: x, y, w, h in pixels, five landmark pairs, score.
	faces := make([]landmark.Face, 0, out.Rows())
	for r := 0; r < out.Rows(); r++ {
		faces = append(faces, landmark.Face{
			Box: landmark.Rect{
				X: float64(out.GetFloatAt(r, 0)) / imgW,
				Y: float64(out.GetFloatAt(r, 1)) / imgH,
				W: float64(out.GetFloatAt(r, 2)) / imgW,
				H: float64(out.GetFloatAt(r, 3)) / imgH,
			},
			Confidence: float64(out.GetFloatAt(r, 14)),
		})
	}
	return faces, nil
}

// Close releases the detector resources.
func (f *Finder) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detector.Close()
	return nil
}
