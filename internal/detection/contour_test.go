package detection

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

// createBinaryImage creates a w x h binary raster filled with v.
func createBinaryImage(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// fillRect paints the inclusive rectangle (x0,y0)-(x1,y1) with v.
func fillRect(img *image.Gray, x0, y0, x1, y1 int, v uint8) {
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
}

func rootNode() ContourNode {
	return ContourNode{Next: None, Prev: None, FirstChild: None, Parent: None}
}

func TestFindContours_Uniform(t *testing.T) {
	for _, v := range []uint8{0, 255} {
		contours, hierarchy, err := FindContours(createBinaryImage(20, 15, v))
		if err != nil {
			t.Fatalf("value %d: FindContours failed: %v", v, err)
		}
		if len(contours) != 0 || len(hierarchy) != 0 {
			t.Errorf("value %d: got %d contours, want none", v, len(contours))
		}
	}
}

func TestFindContours_Empty(t *testing.T) {
	if _, _, err := FindContours(nil); !errors.Is(err, ErrEmptyRaster) {
		t.Errorf("nil raster: got %v, want ErrEmptyRaster", err)
	}
	if _, _, err := FindContours(image.NewGray(image.Rect(0, 0, 10, 0))); !errors.Is(err, ErrEmptyRaster) {
		t.Errorf("zero height: got %v, want ErrEmptyRaster", err)
	}
}

func TestFindContours_FilledRectangle(t *testing.T) {
	img := createBinaryImage(12, 12, 0)
	fillRect(img, 2, 3, 7, 8, 255)

	contours, hierarchy, err := FindContours(img)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}

	wantContours := []Contour{{{2, 3}, {2, 8}, {7, 8}, {7, 3}}}
	if diff := cmp.Diff(wantContours, contours); diff != "" {
		t.Errorf("contours mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]ContourNode{rootNode()}, hierarchy); diff != "" {
		t.Errorf("hierarchy mismatch (-want +got):\n%s", diff)
	}

	if got := ContourArea(contours[0]); got != 25 {
		t.Errorf("area = %f, want 25", got)
	}
	if SignedArea(contours[0].R2()) >= 0 {
		t.Error("outer border should have negative signed area")
	}
}

func TestFindContours_SinglePixel(t *testing.T) {
	img := createBinaryImage(9, 9, 0)
	img.SetGray(4, 4, color.Gray{Y: 255})

	contours, _, err := FindContours(img)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}
	if diff := cmp.Diff([]Contour{{{4, 4}}}, contours); diff != "" {
		t.Errorf("contours mismatch (-want +got):\n%s", diff)
	}
}

func TestFindContours_Line(t *testing.T) {
	img := createBinaryImage(12, 10, 0)
	fillRect(img, 2, 5, 8, 5, 255)

	contours, _, err := FindContours(img)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}
	if diff := cmp.Diff([]Contour{{{2, 5}, {8, 5}}}, contours); diff != "" {
		t.Errorf("contours mismatch (-want +got):\n%s", diff)
	}
	if ContourArea(contours[0]) != 0 {
		t.Errorf("line area = %f, want 0", ContourArea(contours[0]))
	}
}

func TestFindContours_Nested(t *testing.T) {
	// White square with a square hole holding a smaller white square.
	img := createBinaryImage(60, 60, 0)
	fillRect(img, 10, 10, 49, 49, 255)
	fillRect(img, 20, 20, 39, 39, 0)
	fillRect(img, 25, 25, 34, 34, 255)

	contours, hierarchy, err := FindContours(img)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}
	if len(contours) != 3 {
		t.Fatalf("got %d contours, want 3", len(contours))
	}

	want := []ContourNode{
		{Next: None, Prev: None, FirstChild: 1, Parent: None, Hole: false},
		{Next: None, Prev: None, FirstChild: 2, Parent: 0, Hole: true},
		{Next: None, Prev: None, FirstChild: None, Parent: 1, Hole: false},
	}
	if diff := cmp.Diff(want, hierarchy); diff != "" {
		t.Errorf("hierarchy mismatch (-want +got):\n%s", diff)
	}

	// The hole border runs through the foreground pixels around the hole
	// and cuts its corners diagonally.
	wantHole := Contour{{19, 20}, {20, 19}, {39, 19}, {40, 20}, {40, 39}, {39, 40}, {20, 40}, {19, 39}}
	if diff := cmp.Diff(wantHole, contours[1]); diff != "" {
		t.Errorf("hole contour mismatch (-want +got):\n%s", diff)
	}

	areas := []float64{39 * 39, 21*21 - 2, 9 * 9}
	for i, want := range areas {
		if got := ContourArea(contours[i]); got != want {
			t.Errorf("contour %d area = %f, want %f", i, got, want)
		}
	}
	if SignedArea(contours[1].R2()) <= 0 {
		t.Error("hole border should have positive signed area")
	}
	if got := Depth(hierarchy, 2); got != 2 {
		t.Errorf("Depth(2) = %d, want 2", got)
	}
}

func TestFindContours_Siblings(t *testing.T) {
	img := createBinaryImage(40, 20, 0)
	fillRect(img, 2, 2, 10, 10, 255)
	fillRect(img, 20, 5, 30, 15, 255)

	contours, hierarchy, err := FindContours(img)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}
	if len(contours) != 2 {
		t.Fatalf("got %d contours, want 2", len(contours))
	}
	want := []ContourNode{
		{Next: 1, Prev: None, FirstChild: None, Parent: None},
		{Next: None, Prev: 0, FirstChild: None, Parent: None},
	}
	if diff := cmp.Diff(want, hierarchy); diff != "" {
		t.Errorf("hierarchy mismatch (-want +got):\n%s", diff)
	}
}

func TestFindContours_TwoHoles(t *testing.T) {
	img := createBinaryImage(50, 30, 0)
	fillRect(img, 5, 5, 44, 24, 255)
	fillRect(img, 10, 10, 19, 19, 0)
	fillRect(img, 30, 10, 39, 19, 0)

	_, hierarchy, err := FindContours(img)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}
	if got := Children(hierarchy, 0); !cmp.Equal(got, []int{1, 2}) {
		t.Errorf("Children(0) = %v, want [1 2]", got)
	}
	for _, i := range []int{1, 2} {
		if !hierarchy[i].Hole || hierarchy[i].Parent != 0 {
			t.Errorf("contour %d: got %+v, want a hole inside contour 0", i, hierarchy[i])
		}
	}
}

func TestFindContours_TouchingBorder(t *testing.T) {
	img := createBinaryImage(10, 10, 0)
	fillRect(img, 0, 0, 4, 9, 255)

	contours, _, err := FindContours(img)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}
	want := []Contour{{{0, 0}, {0, 9}, {4, 9}, {4, 0}}}
	if diff := cmp.Diff(want, contours); diff != "" {
		t.Errorf("contours mismatch (-want +got):\n%s", diff)
	}
}

func TestFindContours_OffsetOrigin(t *testing.T) {
	base := createBinaryImage(30, 30, 0)
	fillRect(base, 12, 12, 16, 16, 255)
	sub := base.SubImage(image.Rect(10, 10, 20, 20)).(*image.Gray)

	contours, _, err := FindContours(sub)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}
	want := []Contour{{{2, 2}, {2, 6}, {6, 6}, {6, 2}}}
	if diff := cmp.Diff(want, contours); diff != "" {
		t.Errorf("contours mismatch (-want +got):\n%s", diff)
	}
}

func TestTracer_Reuse(t *testing.T) {
	big := createBinaryImage(80, 60, 0)
	fillRect(big, 10, 10, 60, 50, 255)
	fillRect(big, 20, 20, 30, 30, 0)
	small := createBinaryImage(20, 20, 0)
	fillRect(small, 3, 3, 8, 8, 255)

	var tr Tracer
	first, firstH, err := tr.FindContours(big)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}
	if _, _, err := tr.FindContours(small); err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}
	again, againH, err := tr.FindContours(big)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}

	if diff := cmp.Diff(first, again); diff != "" {
		t.Errorf("contours differ after reuse (-first +again):\n%s", diff)
	}
	if diff := cmp.Diff(firstH, againH); diff != "" {
		t.Errorf("hierarchy differs after reuse (-first +again):\n%s", diff)
	}
}

func TestFindContours_CircleIsClosed(t *testing.T) {
	img := createBinaryImage(100, 100, 0)
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if math.Hypot(float64(x-50), float64(y-50)) <= 30 {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	contours, hierarchy, err := FindContours(img)
	if err != nil {
		t.Fatalf("FindContours failed: %v", err)
	}
	if len(contours) != 1 || hierarchy[0].Hole {
		t.Fatalf("got %d contours, want one outer border", len(contours))
	}
	area := ContourArea(contours[0])
	want := math.Pi * 30 * 30
	if math.Abs(area-want)/want > 0.05 {
		t.Errorf("circle area = %f, want about %f", area, want)
	}
	// Compressed chain: consecutive points are distinct 8-neighbours or
	// straight runs.
	for i, p := range contours[0] {
		q := contours[0][(i+1)%len(contours[0])]
		if p == q {
			t.Fatalf("repeated point %v at %d", p, i)
		}
	}
}
