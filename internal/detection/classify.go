package detection

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

// Reason explains a classification decision.
type Reason string

const (
	ReasonAccepted       Reason = "accepted"
	ReasonParentIsCard   Reason = "parent_is_card"
	ReasonAreaBelowMin   Reason = "area_below_min"
	ReasonAreaAboveMax   Reason = "area_above_max"
	ReasonDegenerate     Reason = "degenerate"
	ReasonNotQuad        Reason = "not_quad"
	ReasonTooFewChildren Reason = "too_few_children"
	ReasonNotLeaf        Reason = "not_leaf"
)

// Rules configures the card classifier. Each rule can be switched off on its
// own.
type Rules struct {
	// MinArea and MaxArea bound the contour area, both inclusive. A MaxArea
	// that is zero, negative or +Inf leaves the area unbounded above.
	MinArea float64
	MaxArea float64

	// ApproxTolerance scales the contour perimeter into the Douglas-Peucker
	// epsilon used for the shape rule.
	ApproxTolerance float64

	// RequireQuad accepts only contours that simplify to exactly 4 vertices.
	RequireQuad bool

	// RequireNoParentCard rejects contours whose direct parent was accepted.
	RequireNoParentCard bool

	// MinChildren, when positive, requires at least that many direct
	// children.
	MinChildren int

	// RequireLeaf rejects contours that have any child.
	RequireLeaf bool
}

func (r Rules) bounded() bool {
	return r.MaxArea > 0 && !math.IsInf(r.MaxArea, 1)
}

// CardCandidate is the classifier's verdict on one contour.
type CardCandidate struct {
	// Index is the contour's position in the contour slice.
	Index int `json:"index"`

	// Area is the absolute shoelace area of the contour.
	Area float64 `json:"area"`

	// Vertices is the vertex count after polygon simplification. It is zero
	// when an earlier rule rejected the contour.
	Vertices int `json:"vertices"`

	// Quad is the minimum-area bounding rectangle. Set only when Accepted.
	Quad Quad `json:"quad"`

	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason"`
}

// Classify evaluates every contour and returns the accepted ones in
// ascending order of area.
func Classify(contours []Contour, hierarchy []ContourNode, rules Rules) ([]CardCandidate, error) {
	all, err := Evaluate(contours, hierarchy, rules)
	if err != nil {
		return nil, err
	}
	var cards []CardCandidate
	for _, c := range all {
		if c.Accepted {
			cards = append(cards, c)
		}
	}
	return cards, nil
}

// Evaluate decides every contour and returns one CardCandidate per contour,
// accepted or not, in ascending order of area (ties keep index order).
//
// Rules are applied in a fixed order and the first failing rule names the
// rejection:
//
//  1. containment: the direct parent is an accepted card
//  2. area: outside [MinArea, MaxArea]
//  3. shape: the simplified polygon has fewer than 3 vertices, or not
//     exactly 4 when RequireQuad is set
//  4. children: fewer than MinChildren direct children
//  5. leaf: RequireLeaf is set and the contour has a child
//
// A parent is always decided before its children, whatever their areas, so
// the containment rule sees the parent's final verdict.
func Evaluate(contours []Contour, hierarchy []ContourNode, rules Rules) ([]CardCandidate, error) {
	n := len(contours)
	if len(hierarchy) != n {
		return nil, errors.Errorf("hierarchy has %d nodes for %d contours", len(hierarchy), n)
	}
	link := func(v, i int) bool {
		return v == None || (v >= 0 && v < n && v != i)
	}
	for i, node := range hierarchy {
		if !link(node.Parent, i) {
			return nil, errors.Errorf("contour %d has invalid parent %d", i, node.Parent)
		}
		if !link(node.FirstChild, i) || !link(node.Next, i) || !link(node.Prev, i) {
			return nil, errors.Errorf("contour %d has invalid links %+v", i, node)
		}
	}

	areas := make([]float64, n)
	order := make([]int, n)
	for i, c := range contours {
		areas[i] = ContourArea(c)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return areas[order[a]] < areas[order[b]] })

	out := make([]CardCandidate, n)
	decided := make([]bool, n)
	var chain []int
	for _, i := range order {
		chain = chain[:0]
		for j := i; j != None && !decided[j]; j = hierarchy[j].Parent {
			if len(chain) > n {
				return nil, errors.Errorf("hierarchy cycle through contour %d", i)
			}
			chain = append(chain, j)
		}
		for k := len(chain) - 1; k >= 0; k-- {
			j := chain[k]
			out[j] = decide(j, contours[j], areas[j], hierarchy, out, rules)
			decided[j] = true
		}
	}

	result := make([]CardCandidate, n)
	for k, i := range order {
		result[k] = out[i]
	}
	return result, nil
}

// decide applies the rules to one contour. Its parent, if any, is already
// in decided.
func decide(i int, c Contour, area float64, hierarchy []ContourNode, decided []CardCandidate, rules Rules) CardCandidate {
	cand := CardCandidate{Index: i, Area: area}
	reject := func(r Reason) CardCandidate {
		cand.Reason = r
		return cand
	}

	if p := hierarchy[i].Parent; rules.RequireNoParentCard && p != None && decided[p].Accepted {
		return reject(ReasonParentIsCard)
	}

	if area < rules.MinArea {
		return reject(ReasonAreaBelowMin)
	}
	if rules.bounded() && area > rules.MaxArea {
		return reject(ReasonAreaAboveMax)
	}

	pts := c.R2()
	poly := ApproxPolyDP(pts, rules.ApproxTolerance*ArcLength(pts))
	cand.Vertices = len(poly)
	if cand.Vertices < 3 {
		return reject(ReasonDegenerate)
	}
	if rules.RequireQuad && cand.Vertices != 4 {
		return reject(ReasonNotQuad)
	}

	if rules.MinChildren > 0 && len(Children(hierarchy, i)) < rules.MinChildren {
		return reject(ReasonTooFewChildren)
	}
	if rules.RequireLeaf && hierarchy[i].FirstChild != None {
		return reject(ReasonNotLeaf)
	}

	cand.Accepted = true
	cand.Reason = ReasonAccepted
	cand.Quad = MinAreaRect(pts).Quad()
	return cand
}
