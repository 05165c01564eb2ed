package pipeline

import (
	"image"

	"github.com/ironsheep/cardscan/internal/detection"
	"github.com/ironsheep/cardscan/internal/imaging"
	"github.com/ironsheep/cardscan/internal/opencv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Extractor traces the borders of a binary raster. detection.Tracer and
// opencv.Extractor both satisfy it.
type Extractor interface {
	FindContours(bin *image.Gray) ([]detection.Contour, []detection.ContourNode, error)
}

// Scratch holds every buffer one detection run needs. Reusing a Scratch
// across frames of the same size avoids all per-frame allocation in the
// raster stages. A Scratch must not be shared between goroutines; give each
// worker its own.
type Scratch struct {
	bufs     imaging.Buffers
	binary   *image.Gray
	filtered *image.Gray
	tracer   detection.Tracer
}

// NewScratch returns an empty Scratch. Buffers grow on first use.
func NewScratch() *Scratch {
	return &Scratch{}
}

func (s *Scratch) size(sz image.Point) {
	if s.binary == nil || s.binary.Bounds().Size() != sz {
		s.binary = image.NewGray(image.Rectangle{Max: sz})
		s.filtered = image.NewGray(image.Rectangle{Max: sz})
	}
}

// Result is the output of one detection run. Contour coordinates are
// relative to the top-left corner of the input raster.
type Result struct {
	Width     int                       `json:"width"`
	Height    int                       `json:"height"`
	Contours  []detection.Contour       `json:"contours"`
	Hierarchy []detection.ContourNode   `json:"hierarchy"`
	Evaluated []detection.CardCandidate `json:"evaluated"`
	Cards     []detection.CardCandidate `json:"cards"`
}

// Rejected counts the evaluated contours per rejection reason.
func (r *Result) Rejected() map[detection.Reason]int {
	out := make(map[detection.Reason]int)
	for _, c := range r.Evaluated {
		if !c.Accepted {
			out[c.Reason]++
		}
	}
	return out
}

// Pipeline runs preprocess, morphology, contour extraction and
// classification with one validated Config. A Pipeline is immutable and safe
// for concurrent use as long as each goroutine passes its own Scratch.
type Pipeline struct {
	cfg   Config
	opts  imaging.PreprocessOptions
	rules detection.Rules
	log   *zap.SugaredLogger
}

// New validates cfg and builds a Pipeline. A nil logger discards output.
func New(cfg Config, log *zap.SugaredLogger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := cfg.Validate(log); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if cfg.Backend == BackendOpenCV && !opencv.Available {
		return nil, opencv.ErrUnavailable
	}
	return &Pipeline{
		cfg:   cfg,
		opts:  cfg.PreprocessOptions(),
		rules: cfg.Rules(),
		log:   log,
	}, nil
}

// Config returns the validated configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

func (p *Pipeline) extractor(s *Scratch) Extractor {
	if p.cfg.Backend == BackendOpenCV {
		return opencv.Extractor{}
	}
	return &s.tracer
}

// filter runs the two raster stages and leaves the result in s.filtered.
func (p *Pipeline) filter(s *Scratch, gray *image.Gray) error {
	if err := imaging.CheckGray(gray); err != nil {
		return err
	}
	s.size(gray.Bounds().Size())
	if err := imaging.Preprocess(s.binary, gray, p.opts, &s.bufs); err != nil {
		return errors.Wrap(err, "preprocess")
	}
	if err := imaging.Morph(s.filtered, s.binary, p.cfg.MorphOp, p.cfg.StructuringElementSize, &s.bufs); err != nil {
		return errors.Wrap(err, "morphology")
	}
	return nil
}

// Binarize returns a copy of the filtered binary raster the contour stage
// would see for gray.
func (p *Pipeline) Binarize(s *Scratch, gray *image.Gray) (*image.Gray, error) {
	if s == nil {
		s = NewScratch()
	}
	if err := p.filter(s, gray); err != nil {
		return nil, err
	}
	return imaging.CloneGray(s.filtered), nil
}

// Detect runs the whole pipeline on gray. The same inputs always give the
// same Result. A nil Scratch allocates a fresh one.
func (p *Pipeline) Detect(s *Scratch, gray *image.Gray) (*Result, error) {
	if s == nil {
		s = NewScratch()
	}
	if err := p.filter(s, gray); err != nil {
		return nil, err
	}

	contours, hierarchy, err := p.extractor(s).FindContours(s.filtered)
	if err != nil {
		return nil, errors.Wrap(err, "find contours")
	}

	evaluated, err := detection.Evaluate(contours, hierarchy, p.rules)
	if err != nil {
		return nil, errors.Wrap(err, "classify")
	}
	cards := make([]detection.CardCandidate, 0, len(evaluated))
	for _, c := range evaluated {
		if c.Accepted {
			cards = append(cards, c)
		}
	}

	b := gray.Bounds()
	res := &Result{
		Width:     b.Dx(),
		Height:    b.Dy(),
		Contours:  contours,
		Hierarchy: hierarchy,
		Evaluated: evaluated,
		Cards:     cards,
	}
	p.log.Debugw("detected",
		"width", res.Width,
		"height", res.Height,
		"contours", len(contours),
		"cards", len(cards),
		"backend", p.cfg.Backend,
	)
	return res, nil
}
