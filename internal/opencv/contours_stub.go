//go:build !withcv
// +build !withcv

package opencv

import (
	"image"

	"github.com/ironsheep/cardscan/internal/detection"
)

// Available reports whether the OpenCV backend was compiled in.
const Available = false

// FindContours always fails with ErrUnavailable in builds without OpenCV.
func FindContours(bin *image.Gray) ([]detection.Contour, []detection.ContourNode, error) {
	return nil, nil, ErrUnavailable
}
