package pipeline

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/ironsheep/cardscan/internal/detection"
	"github.com/ironsheep/cardscan/internal/imaging"
	"github.com/ironsheep/cardscan/internal/opencv"
	"github.com/pkg/errors"
)

// cardRect is the synthetic card in createCardImage, max exclusive.
var cardRect = image.Rect(100, 100, 300, 250)

// createCardImage returns a 640x480 frame with a bright card on a dark
// uniform table.
func createCardImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 640, 480))
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			v := uint8(40)
			if image.Pt(x, y).In(cardRect) {
				v = 255
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

// globalConfig binarizes at 128 with no morphology, so the card comes out
// pixel exact.
func globalConfig() Config {
	c := DefaultConfig()
	c.ThresholdMode = imaging.ThresholdGlobal
	c.GlobalThreshold = 128
	c.MorphOp = imaging.MorphNone
	return c
}

func newPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	p, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestDetect_GlobalThreshold(t *testing.T) {
	p := newPipeline(t, globalConfig())
	res, err := p.Detect(nil, createCardImage())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if res.Width != 640 || res.Height != 480 {
		t.Errorf("size = %dx%d, want 640x480", res.Width, res.Height)
	}
	if len(res.Contours) != 1 {
		t.Fatalf("got %d contours, want 1", len(res.Contours))
	}
	if len(res.Cards) != 1 {
		t.Fatalf("got %d cards, want 1", len(res.Cards))
	}

	card := res.Cards[0]
	if card.Area != 199*149 {
		t.Errorf("area = %f, want %d", card.Area, 199*149)
	}
	want := detection.Quad{{X: 100, Y: 249}, {X: 100, Y: 100}, {X: 299, Y: 100}, {X: 299, Y: 249}}
	if diff := cmp.Diff(want, card.Quad, cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Errorf("quad mismatch (-want +got):\n%s", diff)
	}
	if card.Quad.Bounds() != cardRect {
		t.Errorf("bounds = %v, want %v", card.Quad.Bounds(), cardRect)
	}
}

func TestDetect_AdaptiveDefaults(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	res, err := p.Detect(nil, createCardImage())
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	// On a flat table the adaptive threshold keeps both the card and the
	// table and leaves a dark ring around the card. Either the card or the
	// ring's inner border is reported, never both.
	if len(res.Cards) != 1 {
		t.Fatalf("got %d cards, want 1: %+v", len(res.Cards), res.Evaluated)
	}
	b := res.Cards[0].Quad.Bounds()
	if !cardRect.In(b) {
		t.Errorf("card bounds %v do not cover %v", b, cardRect)
	}
	if !b.In(cardRect.Inset(-12)) {
		t.Errorf("card bounds %v stray more than 12px from %v", b, cardRect)
	}
	if len(res.Evaluated) != len(res.Contours) {
		t.Errorf("evaluated %d of %d contours", len(res.Evaluated), len(res.Contours))
	}
}

func TestDetect_Deterministic(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	s := NewScratch()
	img := createCardImage()

	first, err := p.Detect(s, img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	// A frame of another size in between must not leak into the next run.
	if _, err := p.Detect(s, image.NewGray(image.Rect(0, 0, 50, 30))); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	again, err := p.Detect(s, img)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if diff := cmp.Diff(first, again); diff != "" {
		t.Errorf("results differ across runs (-first +again):\n%s", diff)
	}
}

func TestDetect_EmptyFrame(t *testing.T) {
	p := newPipeline(t, DefaultConfig())
	if _, err := p.Detect(nil, image.NewGray(image.Rect(0, 0, 0, 0))); !errors.Is(err, imaging.ErrEmptyRaster) {
		t.Errorf("got %v, want ErrEmptyRaster", err)
	}
}

func TestDetect_NoCards(t *testing.T) {
	p := newPipeline(t, globalConfig())
	res, err := p.Detect(nil, image.NewGray(image.Rect(0, 0, 64, 48)))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(res.Contours) != 0 || len(res.Cards) != 0 {
		t.Errorf("blank frame: got %d contours and %d cards", len(res.Contours), len(res.Cards))
	}
}

func TestBinarize(t *testing.T) {
	p := newPipeline(t, globalConfig())
	bin, err := p.Binarize(nil, createCardImage())
	if err != nil {
		t.Fatalf("Binarize failed: %v", err)
	}
	tests := []struct {
		x, y int
		want uint8
	}{
		{150, 150, 255},
		{100, 100, 255},
		{99, 100, 0},
		{50, 50, 0},
	}
	for _, tt := range tests {
		if got := bin.GrayAt(tt.x, tt.y).Y; got != tt.want {
			t.Errorf("pixel (%d,%d) = %d, want %d", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BlurKernelSize = 4
	if _, err := New(cfg, nil); err == nil {
		t.Error("even blur kernel should be rejected")
	}
}

func TestNew_OpenCVBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = BackendOpenCV
	_, err := New(cfg, nil)
	if opencv.Available {
		if err != nil {
			t.Errorf("New failed with OpenCV compiled in: %v", err)
		}
		return
	}
	if !errors.Is(err, opencv.ErrUnavailable) {
		t.Errorf("got %v, want ErrUnavailable", err)
	}
}

func TestResult_Rejected(t *testing.T) {
	res := &Result{Evaluated: []detection.CardCandidate{
		{Accepted: true, Reason: detection.ReasonAccepted},
		{Reason: detection.ReasonAreaBelowMin},
		{Reason: detection.ReasonAreaBelowMin},
		{Reason: detection.ReasonNotQuad},
	}}
	want := map[detection.Reason]int{
		detection.ReasonAreaBelowMin: 2,
		detection.ReasonNotQuad:      1,
	}
	if diff := cmp.Diff(want, res.Rejected()); diff != "" {
		t.Errorf("Rejected mismatch (-want +got):\n%s", diff)
	}
}
