package imaging

import (
	"image"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyRaster is returned when a raster is nil or has zero width or height.
	ErrEmptyRaster = errors.New("empty raster")

	// ErrSizeMismatch is returned when two rasters that must share dimensions do not.
	ErrSizeMismatch = errors.New("raster size mismatch")
)

// CheckGray reports a precondition violation for nil or zero-sized rasters.
func CheckGray(img *image.Gray) error {
	if img == nil {
		return errors.Wrap(ErrEmptyRaster, "nil gray raster")
	}
	if img.Bounds().Empty() {
		return errors.Wrapf(ErrEmptyRaster, "gray raster has bounds %v", img.Bounds())
	}
	return nil
}

// CheckImage is CheckGray for arbitrary images.
func CheckImage(img image.Image) error {
	if img == nil {
		return errors.Wrap(ErrEmptyRaster, "nil image")
	}
	if img.Bounds().Empty() {
		return errors.Wrapf(ErrEmptyRaster, "image has bounds %v", img.Bounds())
	}
	return nil
}

// SameSize returns ErrSizeMismatch unless a and b have equal width and height.
// Origins may differ.
func SameSize(a, b image.Image) error {
	sa, sb := a.Bounds().Size(), b.Bounds().Size()
	if sa != sb {
		return errors.Wrapf(ErrSizeMismatch, "%dx%d != %dx%d", sa.X, sa.Y, sb.X, sb.Y)
	}
	return nil
}

// ensureGray returns buf when it already has the requested size, otherwise a
// freshly allocated raster anchored at the origin.
func ensureGray(buf *image.Gray, size image.Point) *image.Gray {
	if buf != nil && buf.Bounds().Size() == size {
		return buf
	}
	return image.NewGray(image.Rectangle{Max: size})
}

// row returns the y-th row (0-based, relative to the bounds origin) of img.
func row(img *image.Gray, y int) []uint8 {
	b := img.Bounds()
	off := img.PixOffset(b.Min.X, b.Min.Y+y)
	return img.Pix[off : off+b.Dx()]
}

// CloneGray returns a copy of img anchored at the origin.
func CloneGray(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		copy(row(out, y), row(img, y))
	}
	return out
}

// clamp constrains an integer value to the range [min, max].
func clamp(val, min, max int) int {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

// reflect101 maps an out-of-range index back into [0, n) by mirroring
// around the edge pixels without repeating them (dcb|abcd|cba).
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}
