package landmark

import (
	"errors"
	"io"

	"github.com/ayusman/blinkwatch/internal/frame"
)

var _ Analyzer = (*Split)(nil)

// Split combines a face finder and a landmark finder from different backends
// into one Analyzer. Close closes whichever parts implement io.Closer.
type Split struct {
	Faces FaceFinder
	Marks LandmarkFinder
}

// FindFaces implements FaceFinder.
func (s *Split) FindFaces(sample *frame.Sample) ([]Face, error) {
	return s.Faces.FindFaces(sample)
}

// FindLandmarks implements LandmarkFinder.
func (s *Split) FindLandmarks(sample *frame.Sample, region Rect) (*Landmarks, error) {
	return s.Marks.FindLandmarks(sample, region)
}

// Close closes both parts.
func (s *Split) Close() error {
	var errs []error
	if c, ok := s.Faces.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := s.Marks.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
