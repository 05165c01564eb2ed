package imaging

import (
	"fmt"
	"image"
	"strings"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/pkg/errors"
)

// MorphOp is a morphological operation applied to a binary raster.
type MorphOp int

const (
	// MorphNone copies the input through unchanged.
	MorphNone MorphOp = iota

	// MorphOpen erodes then dilates. Removes specks smaller than the
	// structuring element.
	MorphOpen

	// MorphClose dilates then erodes. Fills pinholes and narrow gaps.
	MorphClose
)

func (op MorphOp) String() string {
	switch op {
	case MorphNone:
		return "none"
	case MorphOpen:
		return "open"
	case MorphClose:
		return "close"
	default:
		return fmt.Sprintf("MorphOp(%d)", int(op))
	}
}

// ParseMorphOp accepts "none", "open" or "close" in any case.
func ParseMorphOp(s string) (MorphOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return MorphNone, nil
	case "open":
		return MorphOpen, nil
	case "close":
		return MorphClose, nil
	}
	return 0, errors.Errorf("unknown morphological operation %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (op MorphOp) MarshalText() ([]byte, error) {
	if op < MorphNone || op > MorphClose {
		return nil, errors.Errorf("invalid morphological operation %d", int(op))
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *MorphOp) UnmarshalText(text []byte) error {
	v, err := ParseMorphOp(string(text))
	if err != nil {
		return err
	}
	*op = v
	return nil
}

// Morph applies op with a size x size rectangular structuring element,
// writing the result to dst. Pixels outside the raster do not take part in
// the min/max, so a foreground region touching the border is not eroded
// from that side.
//
// dst and src may be the same raster.
func Morph(dst, src *image.Gray, op MorphOp, size int, buf *Buffers) error {
	if err := CheckGray(src); err != nil {
		return err
	}
	if err := SameSize(dst, src); err != nil {
		return err
	}
	if size < 1 {
		return errors.Errorf("structuring element size must be positive, got %d", size)
	}
	if buf == nil {
		buf = &Buffers{}
	}

	if op == MorphNone || size == 1 {
		if dst != src {
			for y := 0; y < src.Bounds().Dy(); y++ {
				copy(row(dst, y), row(src, y))
			}
		}
		return nil
	}

	buf.midpoint = ensureGray(buf.midpoint, src.Bounds().Size())
	switch op {
	case MorphOpen:
		Erode(buf.midpoint, src, size, buf)
		Dilate(dst, buf.midpoint, size, buf)
	case MorphClose:
		Dilate(buf.midpoint, src, size, buf)
		Erode(dst, buf.midpoint, size, buf)
	default:
		return errors.Errorf("unknown morphological operation %v", op)
	}
	return nil
}

// Erode replaces every pixel with the minimum over its size x size
// neighbourhood. Sizes are assumed validated and src non-empty.
func Erode(dst, src *image.Gray, size int, buf *Buffers) {
	rankFilter(dst, src, size, buf, minU8)
}

// Dilate replaces every pixel with the maximum over its size x size
// neighbourhood.
func Dilate(dst, src *image.Gray, size int, buf *Buffers) {
	rankFilter(dst, src, size, buf, maxU8)
}

func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

func maxU8(a, b uint8) uint8 {
	if a > b {
		return a
	}
	return b
}

// rankFilter runs the separable min or max filter. The element is anchored
// at its centre (size/2), which for even sizes leans up and left.
func rankFilter(dst, src *image.Gray, size int, buf *Buffers, pick func(a, b uint8) uint8) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	lo := -(size / 2)
	hi := lo + size - 1

	buf.line = ensureGray(buf.line, src.Bounds().Size())
	tmp := buf.line

	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			s := row(src, y)
			out := row(tmp, y)
			for x := 0; x < w; x++ {
				x0 := clamp(x+lo, 0, w-1)
				x1 := clamp(x+hi, 0, w-1)
				v := s[x0]
				for i := x0 + 1; i <= x1; i++ {
					v = pick(v, s[i])
				}
				out[x] = v
			}
		}
	})

	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			y0 := clamp(y+lo, 0, h-1)
			y1 := clamp(y+hi, 0, h-1)
			out := row(dst, y)
			copy(out, row(tmp, y0))
			for j := y0 + 1; j <= y1; j++ {
				r := row(tmp, j)
				for x := range out {
					out[x] = pick(out[x], r[x])
				}
			}
		}
	})
}
