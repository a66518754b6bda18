// Package facemesh implements landmark.Analyzer with a Python MediaPipe
// FaceMesh subprocess.
//
// Each request is a one-byte mode, a 4-byte big-endian length and a JPEG.
// Mode 'D' searches the whole image for faces, mode 'L' runs the mesh over an
// already-cropped face. The service answers with a single JSON line.
package facemesh

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/ayusman/blinkwatch/internal/frame"
	"github.com/ayusman/blinkwatch/internal/landmark"
	"gocv.io/x/gocv"
)

const (
	modeDetect    byte = 'D'
	modeLandmarks byte = 'L'

	scriptName = "facemesh_service.py"
)

var (
	// ErrNotMat is returned when a sample's buffer is not a *gocv.Mat.
	ErrNotMat = errors.New("sample buffer is not a gocv.Mat")
	// ErrResponseTimeout is returned when the service does not answer within
	// ResponseTimeout. The service is killed and restarted on the next call.
	ErrResponseTimeout = errors.New("facemesh service did not answer")
)

// Config configures the subprocess.
type Config struct {
	// Python is the interpreter. Empty looks for a virtualenv and falls back
	// to python3.
	Python string
	// Script is the service path. Empty searches the usual locations.
	Script string
	// IdleTimeout shuts the service down after this long without a request.
	IdleTimeout time.Duration
	// ResponseTimeout bounds the wait for one answer.
	ResponseTimeout time.Duration
	// JPEGQuality is the encode quality for frames sent to the service.
	JPEGQuality int
}

// DefaultConfig returns the default subprocess settings.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:     30 * time.Second,
		ResponseTimeout: 2 * time.Second,
		JPEGQuality:     85,
	}
}

// Analyzer runs face and eye landmark detection in a MediaPipe subprocess.
// The process is started lazily on first use and stopped after IdleTimeout.
type Analyzer struct {
	config Config

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	idleTimer *time.Timer

	// The full-frame pass already returns meshes; a landmark request for the
	// same frame reuses them instead of a second round trip.
	lastSeq    uint64
	lastMeshes []face
}

// New creates an analyzer. It fails if the service script cannot be found.
func New(config Config) (*Analyzer, error) {
	def := DefaultConfig()
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = def.IdleTimeout
	}
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = def.ResponseTimeout
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = def.JPEGQuality
	}
	if config.Script == "" {
		config.Script = findScript()
	}
	if config.Script == "" {
		return nil, fmt.Errorf("%s not found", scriptName)
	}
	return &Analyzer{config: config}, nil
}

// FindFaces implements landmark.FaceFinder.
func (a *Analyzer) FindFaces(s *frame.Sample) ([]landmark.Face, error) {
	img, err := matOf(s)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	resp, err := a.roundTrip(modeDetect, img)
	if err != nil {
		return nil, err
	}

	w, h := float64(img.Cols()), float64(img.Rows())
	faces := make([]landmark.Face, 0, len(resp.Faces))
	meshes := make([]face, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		faces = append(faces, landmark.Face{Box: f.box(), Confidence: f.Score})
		meshes = append(meshes, f.scaled(0, 0, w, h))
	}
	a.lastSeq = s.Seq
	a.lastMeshes = meshes
	return faces, nil
}

// FindLandmarks implements landmark.LandmarkFinder.
func (a *Analyzer) FindLandmarks(s *frame.Sample, region landmark.Rect) (*landmark.Landmarks, error) {
	img, err := matOf(s)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastMeshes != nil && a.lastSeq == s.Seq {
		meshes := a.lastMeshes
		a.lastMeshes = nil
		if len(meshes) == 1 {
			return meshes[0].landmarks(), nil
		}
	}

	rect := pixelRect(region, img.Cols(), img.Rows())
	if rect.Empty() {
		return nil, nil
	}
	crop := img.Region(rect)
	defer crop.Close()

	resp, err := a.roundTrip(modeLandmarks, &crop)
	if err != nil {
		return nil, err
	}
	if len(resp.Faces) == 0 {
		return nil, nil
	}

	mesh := resp.Faces[0].scaled(float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()))
	return mesh.landmarks(), nil
}

// Close shuts down the Python process.
func (a *Analyzer) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shutdown()
}

func (a *Analyzer) roundTrip(mode byte, img *gocv.Mat) (*response, error) {
	if err := a.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *img, []int{int(gocv.IMWriteJpegQuality), a.config.JPEGQuality})
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	if err := writeRequest(a.stdin, mode, buf.GetBytes()); err != nil {
		a.shutdown()
		return nil, err
	}

	line, err := readLine(a.stdout, a.config.ResponseTimeout)
	if err != nil {
		if errors.Is(err, ErrResponseTimeout) {
			log.Printf("facemesh: no answer in %v, killing service", a.config.ResponseTimeout)
			a.cmd.Process.Kill()
		}
		a.shutdown()
		return nil, fmt.Errorf("read response: %w", err)
	}

	resp, err := parseResponse(line)
	if err != nil {
		return nil, err
	}

	a.resetIdleTimer()
	return resp, nil
}

// readLine reads one response line, giving up after timeout. On timeout the
// read keeps running until the caller closes the pipe.
func readLine(r *bufio.Reader, timeout time.Duration) ([]byte, error) {
	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadBytes('\n')
		ch <- result{line, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		return res.line, res.err
	case <-timer.C:
		return nil, ErrResponseTimeout
	}
}

func writeRequest(w io.Writer, mode byte, data []byte) error {
	header := make([]byte, 5)
	header[0] = mode
	binary.BigEndian.PutUint32(header[1:], uint32(len(data)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

func (a *Analyzer) ensureStarted() error {
	if a.started {
		return nil
	}

	python := a.config.Python
	if python == "" {
		python = findVenvPython()
	}
	if python == "" {
		python = "python3"
	}

	a.cmd = exec.Command(python, a.config.Script)

	stdin, err := a.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := a.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	a.cmd.Stderr = os.Stderr

	if err := a.cmd.Start(); err != nil {
		return fmt.Errorf("start facemesh service: %w", err)
	}

	log.Printf("facemesh: service started (pid %d)", a.cmd.Process.Pid)
	a.stdin = stdin
	a.stdout = bufio.NewReader(stdout)
	a.started = true
	return nil
}

func (a *Analyzer) shutdown() error {
	if !a.started {
		return nil
	}

	if a.idleTimer != nil {
		a.idleTimer.Stop()
		a.idleTimer = nil
	}
	if a.stdin != nil {
		a.stdin.Close()
	}

	err := a.cmd.Wait()
	a.started = false
	a.cmd = nil
	a.stdin = nil
	a.stdout = nil
	a.lastMeshes = nil
	return err
}

func (a *Analyzer) resetIdleTimer() {
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	a.idleTimer = time.AfterFunc(a.config.IdleTimeout, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if err := a.shutdown(); err != nil {
			log.Printf("facemesh: idle shutdown: %v", err)
		}
	})
}

func matOf(s *frame.Sample) (*gocv.Mat, error) {
	buf := s.Buffer()
	if buf == nil {
		return nil, landmark.ErrSampleReleased
	}
	img, ok := buf.(*gocv.Mat)
	if !ok {
		return nil, ErrNotMat
	}
	if img.Empty() {
		return nil, errors.New("empty frame")
	}
	return img, nil
}

// pixelRect converts a normalized region to pixels, clipped to the image.
func pixelRect(r landmark.Rect, cols, rows int) image.Rectangle {
	rect := image.Rect(
		int(r.X*float64(cols)),
		int(r.Y*float64(rows)),
		int((r.X+r.W)*float64(cols)),
		int((r.Y+r.H)*float64(rows)),
	)
	return rect.Intersect(image.Rect(0, 0, cols, rows))
}

func findScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(execDir, "scripts", scriptName),
		filepath.Join(os.Getenv("HOME"), ".blinkwatch", "scripts", scriptName),
	}
	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".blinkwatch/venv/bin/python"),
	}
	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
