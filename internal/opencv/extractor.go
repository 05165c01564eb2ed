package opencv

import (
	"image"

	"github.com/ironsheep/cardscan/internal/detection"
	"github.com/pkg/errors"
)

// ErrUnavailable is returned by the stub backend in builds without the
// withcv tag.
var ErrUnavailable = errors.New("opencv backend not compiled in (build with -tags withcv)")

// Extractor adapts FindContours to the pipeline's contour extractor
// interface.
type Extractor struct{}

// FindContours calls the package-level FindContours.
func (Extractor) FindContours(bin *image.Gray) ([]detection.Contour, []detection.ContourNode, error) {
	return FindContours(bin)
}
