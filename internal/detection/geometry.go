package detection

import (
	"encoding/json"
	"image"
	"math"
	"sort"

	"github.com/golang/geo/r2"
)

// SignedArea returns the shoelace area of the closed polygon pts in image
// coordinates (y down). Polygons running clockwise on screen are positive.
func SignedArea(pts []r2.Point) float64 {
	n := len(pts)
	if n < 3 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += pts[i].Cross(pts[(i+1)%n])
	}
	return sum / 2
}

// ContourArea returns the non-negative area enclosed by c.
func ContourArea(c Contour) float64 {
	return math.Abs(SignedArea(c.R2()))
}

// ArcLength returns the perimeter of the closed polygon pts.
func ArcLength(pts []r2.Point) float64 {
	n := len(pts)
	if n < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += pts[(i+1)%n].Sub(pts[i]).Norm()
	}
	return sum
}

// segmentDistance is the distance from p to the segment a-b.
func segmentDistance(p, a, b r2.Point) float64 {
	ab := b.Sub(a)
	l2 := ab.Dot(ab)
	if l2 == 0 {
		return p.Sub(a).Norm()
	}
	t := p.Sub(a).Dot(ab) / l2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return p.Sub(a.Add(ab.Mul(t))).Norm()
}

// farthest returns the index of the point farthest from pts[from]. Ties go
// to the lowest index.
func farthest(pts []r2.Point, from int) (int, float64) {
	best, bestD := from, 0.0
	for i, p := range pts {
		if d := p.Sub(pts[from]).Norm(); d > bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}

// ApproxPolyDP simplifies the closed polygon pts with the Douglas-Peucker
// algorithm so that no dropped point lies farther than epsilon from the
// result.
//
// # Algorithm
//
//  1. Split the ring at two far-apart points: the point farthest from the
//     first point, and the point farthest from that one.
//  2. Simplify each of the two open chains recursively, keeping the point of
//     maximum deviation whenever it exceeds epsilon.
//  3. Join the chains and drop any remaining vertex that lies within
//     epsilon of the segment joining its neighbours.
//
// Fewer than three distinct points are returned as they are.
func ApproxPolyDP(pts []r2.Point, epsilon float64) []r2.Point {
	n := len(pts)
	if n <= 2 {
		return append([]r2.Point(nil), pts...)
	}

	b, d := farthest(pts, 0)
	if d == 0 {
		return []r2.Point{pts[0]}
	}
	a, _ := farthest(pts, b)

	chain := func(from, to int) []r2.Point {
		var out []r2.Point
		for i := from; ; i = (i + 1) % n {
			out = append(out, pts[i])
			if i == to {
				return out
			}
		}
	}
	first := simplifyOpen(chain(a, b), epsilon)
	second := simplifyOpen(chain(b, a), epsilon)

	ring := make([]r2.Point, 0, len(first)+len(second)-2)
	ring = append(ring, first[:len(first)-1]...)
	ring = append(ring, second[:len(second)-1]...)

	for changed := true; changed && len(ring) > 3; {
		changed = false
		for i := 0; i < len(ring) && len(ring) > 3; i++ {
			prev := ring[(i+len(ring)-1)%len(ring)]
			next := ring[(i+1)%len(ring)]
			if segmentDistance(ring[i], prev, next) <= epsilon {
				ring = append(ring[:i], ring[i+1:]...)
				changed = true
				i--
			}
		}
	}
	return ring
}

// simplifyOpen runs Douglas-Peucker over an open chain, keeping both ends.
func simplifyOpen(pts []r2.Point, epsilon float64) []r2.Point {
	n := len(pts)
	if n <= 2 {
		return pts
	}
	keep := make([]bool, n)
	keep[0], keep[n-1] = true, true

	type span struct{ lo, hi int }
	stack := []span{{0, n - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx, maxD := -1, epsilon
		for i := s.lo + 1; i < s.hi; i++ {
			if d := segmentDistance(pts[i], pts[s.lo], pts[s.hi]); d > maxD {
				idx, maxD = i, d
			}
		}
		if idx < 0 {
			continue
		}
		keep[idx] = true
		stack = append(stack, span{s.lo, idx}, span{idx, s.hi})
	}

	out := make([]r2.Point, 0, n)
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

// ConvexHull returns the convex hull of pts using Andrew's monotone chain.
// Collinear points on the hull boundary are dropped. The result is
// clockwise on screen (positive SignedArea) when it has three or more
// points.
func ConvexHull(pts []r2.Point) []r2.Point {
	sorted := append([]r2.Point(nil), pts...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	// dedupe
	uniq := sorted[:0]
	for i, p := range sorted {
		if i == 0 || p != sorted[i-1] {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) <= 2 {
		return uniq
	}

	turn := func(o, a, b r2.Point) float64 { return a.Sub(o).Cross(b.Sub(o)) }

	hull := make([]r2.Point, 0, 2*len(uniq))
	for _, p := range uniq {
		for len(hull) >= 2 && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(uniq) - 2; i >= 0; i-- {
		p := uniq[i]
		for len(hull) >= lower && turn(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// RotatedRect is a rectangle of arbitrary orientation.
type RotatedRect struct {
	// Center is the rectangle centre.
	Center r2.Point `json:"center"`

	// Width runs along Angle, Height perpendicular to it.
	Width  float64 `json:"width"`
	Height float64 `json:"height"`

	// Angle is the direction of the width edge in degrees, measured from the
	// +x axis towards +y.
	Angle float64 `json:"angle"`
}

// Area returns Width*Height.
func (r RotatedRect) Area() float64 {
	return r.Width * r.Height
}

// Quad returns the four corners in canonical order.
func (r RotatedRect) Quad() Quad {
	rad := r.Angle * math.Pi / 180
	u := r2.Point{X: math.Cos(rad), Y: math.Sin(rad)}
	v := u.Ortho()
	hu := u.Mul(r.Width / 2)
	hv := v.Mul(r.Height / 2)
	return NewQuad([4]r2.Point{
		r.Center.Sub(hu).Sub(hv),
		r.Center.Add(hu).Sub(hv),
		r.Center.Add(hu).Add(hv),
		r.Center.Sub(hu).Add(hv),
	})
}

// MinAreaRect returns the smallest-area rectangle enclosing pts, found with
// rotating calipers over the convex hull: the optimal rectangle has one side
// collinear with a hull edge.
//
// A single point gives a zero-sized rectangle at that point; two points (or
// a collinear set) give a zero-height rectangle along the segment.
func MinAreaRect(pts []r2.Point) RotatedRect {
	hull := ConvexHull(pts)
	switch len(hull) {
	case 0:
		return RotatedRect{}
	case 1:
		return RotatedRect{Center: hull[0]}
	case 2:
		d := hull[1].Sub(hull[0])
		return RotatedRect{
			Center: hull[0].Add(d.Mul(0.5)),
			Width:  d.Norm(),
			Angle:  math.Atan2(d.Y, d.X) * 180 / math.Pi,
		}
	}

	var best RotatedRect
	bestArea := math.Inf(1)
	n := len(hull)
	for i := 0; i < n; i++ {
		edge := hull[(i+1)%n].Sub(hull[i])
		if edge.Norm() == 0 {
			continue
		}
		u := edge.Normalize()
		v := u.Ortho()

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			pu, pv := p.Dot(u), p.Dot(v)
			minU, maxU = math.Min(minU, pu), math.Max(maxU, pu)
			minV, maxV = math.Min(minV, pv), math.Max(maxV, pv)
		}

		area := (maxU - minU) * (maxV - minV)
		if area < bestArea-1e-9 {
			bestArea = area
			best = RotatedRect{
				Center: u.Mul((minU + maxU) / 2).Add(v.Mul((minV + maxV) / 2)),
				Width:  maxU - minU,
				Height: maxV - minV,
				Angle:  math.Atan2(u.Y, u.X) * 180 / math.Pi,
			}
		}
	}
	return best
}

// Quad is a quadrilateral. Quads built with NewQuad start at the lowest
// point on screen (largest y, ties broken by smallest x) and run clockwise
// as seen on screen.
type Quad [4]r2.Point

// NewQuad puts the corners of a convex quadrilateral into canonical order.
func NewQuad(pts [4]r2.Point) Quad {
	if SignedArea(pts[:]) < 0 {
		pts[1], pts[3] = pts[3], pts[1]
	}
	const tol = 1e-9
	start := 0
	for i := 1; i < 4; i++ {
		p, s := pts[i], pts[start]
		if p.Y > s.Y+tol || (math.Abs(p.Y-s.Y) <= tol && p.X < s.X) {
			start = i
		}
	}
	var q Quad
	for i := range q {
		q[i] = pts[(start+i)%4]
	}
	return q
}

// Points returns the corners as a slice.
func (q Quad) Points() []r2.Point {
	return q[:]
}

// Area returns the enclosed area.
func (q Quad) Area() float64 {
	return math.Abs(SignedArea(q[:]))
}

// Contains reports whether p lies inside or on the border of q. Canonical
// order is assumed.
func (q Quad) Contains(p r2.Point) bool {
	if q[0] == q[1] && q[1] == q[2] && q[2] == q[3] {
		return p == q[0]
	}
	for i := 0; i < 4; i++ {
		a, b := q[i], q[(i+1)%4]
		e := b.Sub(a)
		if e.Cross(p.Sub(a)) < -1e-6*math.Max(e.Norm(), 1) {
			return false
		}
	}
	return true
}

// Bounds returns the smallest pixel rectangle covering q.
func (q Quad) Bounds() image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range q {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX))+1, int(math.Ceil(maxY))+1,
	)
}

// MarshalJSON encodes q as [[x,y],[x,y],[x,y],[x,y]].
func (q Quad) MarshalJSON() ([]byte, error) {
	var out [4][2]float64
	for i, p := range q {
		out[i] = [2]float64{round3(p.X), round3(p.Y)}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the MarshalJSON encoding.
func (q *Quad) UnmarshalJSON(data []byte) error {
	var in [4][2]float64
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	for i, p := range in {
		q[i] = r2.Point{X: p[0], Y: p[1]}
	}
	return nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
