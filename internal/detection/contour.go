package detection

import (
	"image"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
)

// None marks an absent hierarchy link.
const None = -1

// ErrEmptyRaster is returned when a nil or zero-sized raster is traced.
var ErrEmptyRaster = errors.New("empty raster")

// Point represents a 2D coordinate in pixel space.
type Point struct {
	X int `json:"x"` // Horizontal position (0 = leftmost)
	Y int `json:"y"` // Vertical position (0 = topmost)
}

// R2 converts p to a float point.
func (p Point) R2() r2.Point {
	return r2.Point{X: float64(p.X), Y: float64(p.Y)}
}

// Contour is a closed border: the last point connects back to the first.
type Contour []Point

// R2 returns the contour's points as float points.
func (c Contour) R2() []r2.Point {
	out := make([]r2.Point, len(c))
	for i, p := range c {
		out[i] = p.R2()
	}
	return out
}

// ContourNode links one contour into the containment forest. Indices refer
// to positions in the contour slice returned alongside it; None means the
// link is absent.
type ContourNode struct {
	// Next and Prev are the neighbouring contours with the same parent.
	Next int `json:"next"`
	Prev int `json:"prev"`

	// FirstChild is the first contour directly inside this one.
	FirstChild int `json:"first_child"`

	// Parent is the contour this one lies directly inside.
	Parent int `json:"parent"`

	// Hole is true for the inner border of a foreground region.
	Hole bool `json:"hole"`
}

// Children returns the direct children of contour i in link order.
func Children(hierarchy []ContourNode, i int) []int {
	var out []int
	for c := hierarchy[i].FirstChild; c != None; c = hierarchy[c].Next {
		out = append(out, c)
	}
	return out
}

// Depth returns the number of ancestors of contour i.
func Depth(hierarchy []ContourNode, i int) int {
	d := 0
	for p := hierarchy[i].Parent; p != None; p = hierarchy[p].Parent {
		d++
	}
	return d
}

// Direction offsets around a pixel, counterclockwise as seen on screen
// starting east.
var (
	dirDX = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	dirDY = [8]int{0, -1, -1, -1, 0, 1, 1, 1}
)

const (
	dirEast = 0
	dirWest = 4
)

// Tracer extracts contours with the Suzuki-Abe border following algorithm.
// It keeps its label buffer between calls, so one Tracer per goroutine
// avoids reallocating for every frame.
//
// The zero value is ready to use.
type Tracer struct {
	labels  []int32
	parents []int
	holes   []bool
	path    []int
}

// FindContours traces every border of bin with a fresh Tracer.
func FindContours(bin *image.Gray) ([]Contour, []ContourNode, error) {
	var t Tracer
	return t.FindContours(bin)
}

// FindContours traces every outer border and hole border of the binary
// raster bin and returns them with their containment forest.
//
// Any non-zero pixel is foreground. Foreground is 8-connected and background
// 4-connected; pixels outside the raster count as background. Each contour is
// compressed to the points where the chain direction changes, always keeping
// the point where tracing started. Points are relative to bin's bounds.
//
// Outer borders are traced counterclockwise on screen and holes clockwise, so
// SignedArea is negative for outer borders and positive for holes.
//
// A raster with no foreground, or with no background, has no border and
// yields empty results.
//
// # Algorithm
//
//  1. Copy the raster into a label buffer padded by one background pixel.
//  2. Raster-scan the buffer. A foreground pixel with background to its left
//     that has not been labelled starts an outer border; a foreground pixel
//     with background to its right starts a hole border.
//  3. Follow the border, labelling its pixels with the border number (negated
//     where the pixel to the east is background) so later scans neither
//     restart it nor miss borders beside it.
//  4. The parent is decided from the last border crossed on the current row:
//     if it is the same kind as the new border the new border shares its
//     parent, otherwise the new border lies directly inside it.
func (t *Tracer) FindContours(bin *image.Gray) ([]Contour, []ContourNode, error) {
	if bin == nil || bin.Bounds().Empty() {
		return nil, nil, errors.Wrap(ErrEmptyRaster, "find contours")
	}
	b := bin.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := w + 2

	n := stride * (h + 2)
	if cap(t.labels) < n {
		t.labels = make([]int32, n)
	}
	f := t.labels[:n]
	for i := range f {
		f[i] = 0
	}

	fg := 0
	for y := 0; y < h; y++ {
		off := bin.PixOffset(b.Min.X, b.Min.Y+y)
		src := bin.Pix[off : off+w]
		dst := f[(y+1)*stride+1:]
		for x, v := range src {
			if v != 0 {
				dst[x] = 1
				fg++
			}
		}
	}
	if fg == 0 || fg == w*h {
		return nil, nil, nil
	}

	var off [8]int
	for k := range off {
		off[k] = dirDY[k]*stride + dirDX[k]
	}

	// Border 1 is the raster frame, treated as a hole with no parent.
	t.parents = append(t.parents[:0], 0, 0)
	t.holes = append(t.holes[:0], false, true)

	var contours []Contour
	nbd := int32(1)
	for y := 1; y <= h; y++ {
		lnbd := int32(1)
		for x := 1; x <= w; x++ {
			p := y*stride + x
			v := f[p]
			if v == 0 {
				continue
			}

			from, hole, start := 0, false, false
			if v == 1 && f[p-1] == 0 {
				from, start = dirWest, true
			} else if v >= 1 && f[p+1] == 0 {
				from, hole, start = dirEast, true, true
				if v > 1 {
					lnbd = v
				}
			}

			if start {
				nbd++
				parent := int(lnbd)
				if hole == t.holes[lnbd] {
					parent = t.parents[lnbd]
				}
				t.parents = append(t.parents, parent)
				t.holes = append(t.holes, hole)

				t.path = t.follow(f, &off, p, from, nbd, t.path[:0])
				contours = append(contours, compressChain(t.path, stride))
			}

			if f[p] != 1 {
				lnbd = abs32(f[p])
			}
		}
	}

	return contours, t.link(len(contours)), nil
}

// follow traces one border starting at p, whose background neighbour lies
// in direction from, and returns the pixel offsets along it.
func (t *Tracer) follow(f []int32, off *[8]int, start, from int, nbd int32, path []int) []int {
	path = append(path, start)

	// Clockwise search for the first non-zero neighbour.
	d1 := -1
	for i := 0; i < 8; i++ {
		k := (from - i + 8) & 7
		if f[start+off[k]] != 0 {
			d1 = k
			break
		}
	}
	if d1 < 0 {
		f[start] = -nbd
		return path
	}

	p1 := start + off[d1]
	p3 := start
	d := d1 // direction from p3 to the previous border pixel
	for {
		// Counterclockwise search from the neighbour after the previous pixel.
		eastZero := false
		var p4, k int
		for i := 1; i <= 8; i++ {
			k = (d + i) & 7
			q := p3 + off[k]
			if f[q] != 0 {
				p4 = q
				break
			}
			if k == dirEast {
				eastZero = true
			}
		}

		if eastZero {
			f[p3] = -nbd
		} else if f[p3] == 1 {
			f[p3] = nbd
		}

		if p4 == start && p3 == p1 {
			return path
		}
		path = append(path, p4)
		p3 = p4
		d = (k + 4) & 7
	}
}

// compressChain converts padded offsets to points, dropping every point
// whose incoming and outgoing steps are equal. The first point is always
// kept.
func compressChain(path []int, stride int) Contour {
	toPoint := func(p int) Point {
		return Point{X: p%stride - 1, Y: p/stride - 1}
	}
	n := len(path)
	if n <= 2 {
		out := make(Contour, n)
		for i, p := range path {
			out[i] = toPoint(p)
		}
		return out
	}

	out := make(Contour, 0, 8)
	for i := 0; i < n; i++ {
		prev := path[(i+n-1)%n]
		next := path[(i+1)%n]
		cur := path[i]
		if i == 0 || cur-prev != next-cur {
			out = append(out, toPoint(cur))
		}
	}
	return out
}

// link builds the hierarchy arena from the parent table. Siblings are
// chained in the order their borders were found.
func (t *Tracer) link(count int) []ContourNode {
	nodes := make([]ContourNode, count)
	for i := range nodes {
		nodes[i] = ContourNode{Next: None, Prev: None, FirstChild: None, Parent: None}
	}

	// last child per border number; index 1 collects the roots.
	last := make([]int, count+2)
	for i := range last {
		last[i] = None
	}

	for i := 0; i < count; i++ {
		nb := i + 2
		parent := t.parents[nb]
		if parent < 2 {
			parent = 1
		}
		nodes[i].Hole = t.holes[nb]
		if parent >= 2 {
			nodes[i].Parent = parent - 2
		}

		prev := last[parent]
		nodes[i].Prev = prev
		if prev != None {
			nodes[prev].Next = i
		} else if parent >= 2 {
			nodes[parent-2].FirstChild = i
		}
		last[parent] = i
	}
	return nodes
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
