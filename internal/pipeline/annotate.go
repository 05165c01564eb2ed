package pipeline

import (
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/parallel"
	"github.com/fogleman/gg"
	"github.com/golang/geo/r2"
	"github.com/ironsheep/cardscan/internal/detection"
	"github.com/ironsheep/cardscan/internal/imaging"
)

var (
	contourColor = color.RGBA{R: 128, G: 128, B: 128, A: 160}
	labelBack    = color.RGBA{A: 180}
)

// checkFrame verifies that res was computed on a raster the size of img.
func checkFrame(img image.Image, res *Result) error {
	if err := imaging.CheckImage(img); err != nil {
		return err
	}
	return imaging.SameSize(img, image.Rect(0, 0, res.Width, res.Height))
}

// Annotate draws res over a copy of img: every contour as a thin grey line,
// then each accepted card's contour, quad and axis-aligned bounds in its own
// palette colour with a "#n" label at the quad centre.
func Annotate(img image.Image, res *Result) (image.Image, error) {
	if err := checkFrame(img, res); err != nil {
		return nil, err
	}
	dc := gg.NewContextForImage(imaging.CloneNRGBA(img))

	dc.SetColor(contourColor)
	dc.SetLineWidth(1)
	for _, c := range res.Contours {
		tracePath(dc, c.R2())
		dc.Stroke()
	}

	palette := imaging.Palette(len(res.Cards))
	for n, card := range res.Cards {
		col := palette[n]

		dc.SetColor(imaging.WithAlpha(col, 200))
		dc.SetLineWidth(2)
		tracePath(dc, res.Contours[card.Index].R2())
		dc.Stroke()

		dc.SetColor(col)
		dc.SetLineWidth(3)
		tracePath(dc, card.Quad.Points())
		dc.Stroke()

		b := card.Quad.Bounds().Intersect(image.Rect(0, 0, res.Width, res.Height))
		dc.SetDash(6, 4)
		dc.SetLineWidth(1)
		dc.DrawRectangle(float64(b.Min.X), float64(b.Min.Y), float64(b.Dx()), float64(b.Dy()))
		dc.Stroke()
		dc.SetDash()

		label := fmt.Sprintf("#%d", n+1)
		center := quadCenter(card.Quad)
		w, h := dc.MeasureString(label)
		dc.SetColor(labelBack)
		dc.DrawRectangle(center.X-w/2-3, center.Y-h/2-3, w+6, h+6)
		dc.Fill()
		dc.SetColor(col)
		dc.DrawStringAnchored(label, center.X, center.Y, 0.5, 0.5)
	}
	return dc.Image(), nil
}

// tracePath adds a closed path through the centres of the given pixels.
func tracePath(dc *gg.Context, pts []r2.Point) {
	if len(pts) == 0 {
		return
	}
	dc.MoveTo(pts[0].X+0.5, pts[0].Y+0.5)
	for _, p := range pts[1:] {
		dc.LineTo(p.X+0.5, p.Y+0.5)
	}
	dc.ClosePath()
}

func quadCenter(q detection.Quad) r2.Point {
	var c r2.Point
	for _, p := range q {
		c = c.Add(p)
	}
	return c.Mul(0.25)
}

// Mask returns a copy of img in which every pixel outside all accepted card
// quads is opaque black.
func Mask(img image.Image, res *Result) (*image.NRGBA, error) {
	return MaskWith(img, res, color.RGBA{A: 255})
}

// MaskWith is Mask with a caller-chosen fill. The fill is written as-is,
// so it should be opaque.
func MaskWith(img image.Image, res *Result, fill color.RGBA) (*image.NRGBA, error) {
	if err := checkFrame(img, res); err != nil {
		return nil, err
	}
	out := imaging.CloneNRGBA(img)
	bounds := make([]image.Rectangle, len(res.Cards))
	for i, c := range res.Cards {
		bounds[i] = c.Quad.Bounds()
	}

	parallel.Line(res.Height, func(start, end int) {
		for y := start; y < end; y++ {
			row := out.Pix[y*out.Stride : y*out.Stride+4*res.Width]
			for x := 0; x < res.Width; x++ {
				if insideAny(res.Cards, bounds, x, y) {
					continue
				}
				px := row[4*x : 4*x+4]
				px[0], px[1], px[2], px[3] = fill.R, fill.G, fill.B, fill.A
			}
		}
	})
	return out, nil
}

func insideAny(cards []detection.CardCandidate, bounds []image.Rectangle, x, y int) bool {
	pt := image.Pt(x, y)
	for i, c := range cards {
		if !pt.In(bounds[i]) {
			continue
		}
		if c.Quad.Contains(r2.Point{X: float64(x), Y: float64(y)}) {
			return true
		}
	}
	return false
}
