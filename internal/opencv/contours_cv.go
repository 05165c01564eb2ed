//go:build withcv
// +build withcv

package opencv

import (
	"image"

	"github.com/ironsheep/cardscan/internal/detection"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Available reports whether the OpenCV backend was compiled in.
const Available = true

// FindContours traces bin with cv::findContours (RETR_TREE,
// CHAIN_APPROX_SIMPLE) and converts the result to the detection types.
// Uniform rasters yield empty results, matching detection.FindContours.
func FindContours(bin *image.Gray) ([]detection.Contour, []detection.ContourNode, error) {
	if bin == nil || bin.Bounds().Empty() {
		return nil, nil, errors.Wrap(detection.ErrEmptyRaster, "opencv find contours")
	}
	b := bin.Bounds()
	w, h := b.Dx(), b.Dy()

	// OpenCV wants a tightly packed buffer with 0/255 values.
	data := make([]byte, w*h)
	fg := 0
	for y := 0; y < h; y++ {
		off := bin.PixOffset(b.Min.X, b.Min.Y+y)
		for x, v := range bin.Pix[off : off+w] {
			if v != 0 {
				data[y*w+x] = 255
				fg++
			}
		}
	}
	if fg == 0 || fg == w*h {
		return nil, nil, nil
	}

	mat, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC1, data)
	if err != nil {
		return nil, nil, errors.Wrap(err, "could not wrap raster in a Mat")
	}
	defer mat.Close()

	hier := gocv.NewMat()
	defer hier.Close()

	pvs := gocv.FindContoursWithParams(mat, &hier, gocv.RetrievalTree, gocv.ChainApproxSimple)
	defer pvs.Close()

	n := pvs.Size()
	contours := make([]detection.Contour, n)
	for i := 0; i < n; i++ {
		pts := pvs.At(i).ToPoints()
		c := make(detection.Contour, len(pts))
		for j, p := range pts {
			c[j] = detection.Point{X: p.X, Y: p.Y}
		}
		contours[i] = c
	}

	nodes := make([]detection.ContourNode, n)
	for i := 0; i < n; i++ {
		v := hier.GetVeciAt(0, i)
		nodes[i] = detection.ContourNode{
			Next:       int(v[0]),
			Prev:       int(v[1]),
			FirstChild: int(v[2]),
			Parent:     int(v[3]),
		}
	}
	for i := range nodes {
		nodes[i].Hole = detection.Depth(nodes, i)%2 == 1
	}
	return contours, nodes, nil
}
