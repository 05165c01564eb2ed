package imaging

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/pkg/errors"
)

// ThresholdMode selects the binarization policy used by Preprocess.
type ThresholdMode int

const (
	// ThresholdAdaptive compares each pixel against the mean of its
	// neighbourhood minus a constant.
	ThresholdAdaptive ThresholdMode = iota

	// ThresholdGlobal compares each pixel against one fixed cutoff.
	ThresholdGlobal
)

// String returns the lower-case name used in configuration files.
func (m ThresholdMode) String() string {
	switch m {
	case ThresholdAdaptive:
		return "adaptive"
	case ThresholdGlobal:
		return "global"
	default:
		return fmt.Sprintf("ThresholdMode(%d)", int(m))
	}
}

// ParseThresholdMode accepts "adaptive" or "global" in any case.
func ParseThresholdMode(s string) (ThresholdMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "adaptive":
		return ThresholdAdaptive, nil
	case "global":
		return ThresholdGlobal, nil
	}
	return 0, errors.Errorf("unknown threshold mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m ThresholdMode) MarshalText() ([]byte, error) {
	if m != ThresholdAdaptive && m != ThresholdGlobal {
		return nil, errors.Errorf("invalid threshold mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *ThresholdMode) UnmarshalText(text []byte) error {
	v, err := ParseThresholdMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// PreprocessOptions holds the blur and binarization knobs.
type PreprocessOptions struct {
	// BlurKernelSize is the side of the Gaussian kernel. Odd, >= 3.
	BlurKernelSize int

	// Mode picks adaptive or global binarization.
	Mode ThresholdMode

	// BlockSize is the side of the adaptive neighbourhood. Odd, >= 3.
	BlockSize int

	// Constant is subtracted from the neighbourhood mean (adaptive only).
	Constant int

	// Threshold is the fixed cutoff (global only).
	Threshold uint8
}

// Buffers holds the intermediate storage used by the preprocessing and
// morphology stages. The zero value is ready to use; buffers grow to the
// frame size on first use and are reused afterwards.
//
// A Buffers value must not be used by two goroutines at once.
type Buffers struct {
	blurTmp  []float64
	sums     []int32
	colSums  []int64
	blurred  *image.Gray
	line     *image.Gray
	midpoint *image.Gray
}

func (b *Buffers) floats(n int) []float64 {
	if cap(b.blurTmp) < n {
		b.blurTmp = make([]float64, n)
	}
	return b.blurTmp[:n]
}

func (b *Buffers) int32s(n int) []int32 {
	if cap(b.sums) < n {
		b.sums = make([]int32, n)
	}
	return b.sums[:n]
}

func (b *Buffers) int64s(n int) []int64 {
	if cap(b.colSums) < n {
		b.colSums = make([]int64, n)
	}
	return b.colSums[:n]
}

// smallGaussianTaps are the fixed binomial kernels used when sigma is derived
// from a kernel size of at most 7.
var smallGaussianTaps = map[int][]float64{
	1: {1},
	3: {0.25, 0.5, 0.25},
	5: {0.0625, 0.25, 0.375, 0.25, 0.0625},
	7: {0.03125, 0.109375, 0.21875, 0.28125, 0.21875, 0.109375, 0.03125},
}

// GaussianKernel returns the normalized 1-D Gaussian taps for an odd kernel
// size with sigma derived from the size: sigma = 0.3*((size-1)*0.5-1)+0.8.
func GaussianKernel(size int) ([]float64, error) {
	if size < 1 || size%2 == 0 {
		return nil, errors.Errorf("gaussian kernel size must be odd and positive, got %d", size)
	}
	if taps, ok := smallGaussianTaps[size]; ok {
		return append([]float64(nil), taps...), nil
	}

	sigma := 0.3*(float64(size-1)*0.5-1) + 0.8
	taps := make([]float64, size)
	r := size / 2
	var sum float64
	for i := range taps {
		x := float64(i - r)
		taps[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += taps[i]
	}
	for i := range taps {
		taps[i] /= sum
	}
	return taps, nil
}

// GaussianBlur smooths src into dst with a separable size x size Gaussian
// kernel. Borders are mirrored (reflect-101). dst and src must have equal
// dimensions; they may be the same raster.
func GaussianBlur(dst, src *image.Gray, size int, buf *Buffers) error {
	if err := CheckGray(src); err != nil {
		return err
	}
	if err := SameSize(dst, src); err != nil {
		return err
	}
	taps, err := GaussianKernel(size)
	if err != nil {
		return err
	}
	if buf == nil {
		buf = &Buffers{}
	}

	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	r := size / 2
	tmp := buf.floats(w * h)

	// Horizontal pass into the float buffer.
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			s := row(src, y)
			out := tmp[y*w : (y+1)*w]
			for x := 0; x < w; x++ {
				var sum float64
				for i, k := range taps {
					sum += k * float64(s[reflect101(x+i-r, w)])
				}
				out[x] = sum
			}
		}
	})

	// Vertical pass back to 8 bits.
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			d := row(dst, y)
			for x := 0; x < w; x++ {
				var sum float64
				for i, k := range taps {
					sum += k * tmp[reflect101(y+i-r, h)*w+x]
				}
				d[x] = uint8(clamp(int(math.Round(sum)), 0, 255))
			}
		}
	})
	return nil
}

// AdaptiveThreshold binarizes src into dst. A pixel becomes 255 when it is at
// least the mean of its blockSize x blockSize neighbourhood minus c, and 0
// otherwise. Neighbourhoods are clamped at the raster edges (replicated
// border).
func AdaptiveThreshold(dst, src *image.Gray, blockSize, c int, buf *Buffers) error {
	if err := CheckGray(src); err != nil {
		return err
	}
	if err := SameSize(dst, src); err != nil {
		return err
	}
	if blockSize < 3 || blockSize%2 == 0 {
		return errors.Errorf("adaptive block size must be odd and >= 3, got %d", blockSize)
	}
	if buf == nil {
		buf = &Buffers{}
	}

	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	r := blockSize / 2
	area := int64(blockSize * blockSize)

	// Horizontal window sums.
	hs := buf.int32s(w * h)
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			s := row(src, y)
			out := hs[y*w : (y+1)*w]
			var sum int32
			for dx := -r; dx <= r; dx++ {
				sum += int32(s[clamp(dx, 0, w-1)])
			}
			out[0] = sum
			for x := 1; x < w; x++ {
				sum += int32(s[clamp(x+r, 0, w-1)]) - int32(s[clamp(x-1-r, 0, w-1)])
				out[x] = sum
			}
		}
	})

	// Vertical sliding window over the horizontal sums. The window for row y
	// covers rows y-r..y+r clamped to the raster; colSums carries it from row
	// to row.
	cols := buf.int64s(w)
	for x := 0; x < w; x++ {
		var sum int64
		for dy := -r; dy <= r; dy++ {
			sum += int64(hs[clamp(dy, 0, h-1)*w+x])
		}
		cols[x] = sum
	}

	// src >= sum/area - c  <=>  src*area >= sum - c*area
	bias := int64(c) * area
	// dst may alias src, so every read of row y happens before its write.
	for y := 0; y < h; y++ {
		s := row(src, y)
		d := row(dst, y)
		for x := 0; x < w; x++ {
			if int64(s[x])*area >= cols[x]-bias {
				d[x] = 255
			} else {
				d[x] = 0
			}
		}
		if y+1 < h {
			add := clamp(y+1+r, 0, h-1) * w
			sub := clamp(y-r, 0, h-1) * w
			for x := 0; x < w; x++ {
				cols[x] += int64(hs[add+x]) - int64(hs[sub+x])
			}
		}
	}
	return nil
}

// GlobalThreshold sets dst to 255 where src >= t and 0 elsewhere.
func GlobalThreshold(dst, src *image.Gray, t uint8) error {
	if err := CheckGray(src); err != nil {
		return err
	}
	if err := SameSize(dst, src); err != nil {
		return err
	}
	h := src.Bounds().Dy()
	parallel.Line(h, func(start, end int) {
		for y := start; y < end; y++ {
			s := row(src, y)
			d := row(dst, y)
			for x, v := range s {
				if v >= t {
					d[x] = 255
				} else {
					d[x] = 0
				}
			}
		}
	})
	return nil
}

// Preprocess blurs gray and binarizes it into dst according to opts.
// The result holds only the values 0 and 255.
func Preprocess(dst, gray *image.Gray, opts PreprocessOptions, buf *Buffers) error {
	if err := CheckGray(gray); err != nil {
		return err
	}
	if buf == nil {
		buf = &Buffers{}
	}
	buf.blurred = ensureGray(buf.blurred, gray.Bounds().Size())
	if err := GaussianBlur(buf.blurred, gray, opts.BlurKernelSize, buf); err != nil {
		return errors.Wrap(err, "blur")
	}

	switch opts.Mode {
	case ThresholdAdaptive:
		if err := AdaptiveThreshold(dst, buf.blurred, opts.BlockSize, opts.Constant, buf); err != nil {
			return errors.Wrap(err, "adaptive threshold")
		}
	case ThresholdGlobal:
		if err := GlobalThreshold(dst, buf.blurred, opts.Threshold); err != nil {
			return errors.Wrap(err, "global threshold")
		}
	default:
		return errors.Errorf("unknown threshold mode %v", opts.Mode)
	}
	return nil
}
