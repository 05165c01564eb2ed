package imaging

import (
	"image/color"
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// goldenAngle spaces successive hues so neighbouring indices never land on
// similar colours.
const goldenAngle = 137.50776405003785

// Palette returns n distinct, fully opaque overlay colours. The sequence is
// deterministic: Palette(n)[i] == Palette(m)[i] for every i < min(n, m).
func Palette(n int) []color.RGBA {
	out := make([]color.RGBA, n)
	for i := range out {
		h := math.Mod(float64(i)*goldenAngle, 360)
		out[i] = toRGBA(colorful.Hsv(h, 0.85, 0.95))
	}
	return out
}

// ParseHexColor parses "#RRGGBB" or "RRGGBB" into an opaque colour.
func ParseHexColor(hex string) (color.RGBA, error) {
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	if len(hex) != 7 {
		return color.RGBA{}, errors.Errorf("invalid colour %q: want 6 hex digits", hex)
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, errors.Wrapf(err, "invalid colour %q", hex)
	}
	return toRGBA(c), nil
}

// WithAlpha returns c with its alpha replaced, premultiplying the channels
// as image/color expects.
func WithAlpha(c color.RGBA, a uint8) color.RGBA {
	scale := func(v uint8) uint8 { return uint8(uint16(v) * uint16(a) / 255) }
	return color.RGBA{R: scale(c.R), G: scale(c.G), B: scale(c.B), A: a}
}

func toRGBA(c colorful.Color) color.RGBA {
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
