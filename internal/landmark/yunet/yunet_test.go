package yunet

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/blinkwatch/internal/frame"
	"gocv.io/x/gocv"
)

func findModelPath() string {
	candidates := []string{
		"models/face_detection_yunet.onnx",
		"../../../models/face_detection_yunet.onnx",
		filepath.Join(os.Getenv("HOME"), ".blinkwatch", "models", "face_detection_yunet.onnx"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func TestNew_InvalidPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "/nonexistent/path/model.onnx"

	if _, err := New(cfg); err == nil {
		t.Error("expected error for missing model")
	}
}

func TestFindFaces_BlankFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping model test in short mode")
	}
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	finder, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer finder.Close()

	img := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	s := frame.NewSample(0, time.Now(), &img)
	defer s.Release()

	faces, err := finder.FindFaces(s)
	if err != nil {
		t.Fatalf("FindFaces() error = %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("found %d faces in a blank frame, want 0", len(faces))
	}
}

func TestFindFaces_ReleasedSample(t *testing.T) {
	modelPath := findModelPath()
	if modelPath == "" {
		t.Skip("YuNet model not found, skipping test")
	}

	cfg := DefaultConfig()
	cfg.ModelPath = modelPath
	finder, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer finder.Close()

	img := gocv.NewMat()
	s := frame.NewSample(0, time.Now(), &img)
	s.Release()

	if _, err := finder.FindFaces(s); err == nil {
		t.Error("expected error for released sample")
	}
}
