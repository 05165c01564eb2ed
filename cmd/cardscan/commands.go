package main

import (
	"encoding/json"
	"image"
	"path/filepath"
	"strings"

	"github.com/ironsheep/cardscan/internal/imaging"
	"github.com/ironsheep/cardscan/internal/pipeline"
	"github.com/ironsheep/cardscan/internal/watch"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func detectAction(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		return cli.Exit("detect: no images given", 2)
	}
	log, p, err := setup(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	jobs := make(chan pipeline.Job)
	go func() {
		defer close(jobs)
		for _, path := range paths {
			select {
			case jobs <- pipeline.Job{Path: path}:
			case <-c.Context.Done():
				return
			}
		}
	}()

	enc := json.NewEncoder(c.App.Writer)
	var errs error
	for o := range pipeline.RunPool(c.Context, p, nil, c.Int(flagWorkers), jobs) {
		var report *pipeline.Report
		if o.Err != nil {
			errs = multierr.Append(errs, o.Err)
			report = p.FailedReport(o.Job.Path, o.Err)
		} else {
			report = p.NewReport(o.Job.Path, o.Result)
			if c.Bool(flagRejected) {
				report.IncludeEvaluated(o.Result)
			}
		}
		if err := enc.Encode(report); err != nil {
			return errors.Wrap(err, "write report")
		}
	}
	return errs
}

// renderer turns a frame and its detection result into an output image.
type renderer func(c *cli.Context, p *pipeline.Pipeline, frame *imaging.Frame, res *pipeline.Result) (image.Image, error)

func renderAnnotate(_ *cli.Context, _ *pipeline.Pipeline, frame *imaging.Frame, res *pipeline.Result) (image.Image, error) {
	return pipeline.Annotate(frame.Color, res)
}

func renderMask(c *cli.Context, _ *pipeline.Pipeline, frame *imaging.Frame, res *pipeline.Result) (image.Image, error) {
	fill, err := imaging.ParseHexColor(c.String(flagFill))
	if err != nil {
		return nil, err
	}
	return pipeline.MaskWith(frame.Color, res, fill)
}

func renderBinary(_ *cli.Context, p *pipeline.Pipeline, frame *imaging.Frame, _ *pipeline.Result) (image.Image, error) {
	return p.Binarize(nil, frame.Gray)
}

func renderAction(render renderer) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit(c.Command.Name+": exactly one image expected", 2)
		}
		log, p, err := setup(c)
		if err != nil {
			return err
		}
		defer log.Sync()

		o := pipeline.NewWorker(p, nil).Process(pipeline.Job{Path: c.Args().First()})
		if o.Err != nil {
			return o.Err
		}
		img, err := render(c, p, o.Frame, o.Result)
		if err != nil {
			return err
		}
		out := c.String(flagOut)
		if err := imaging.SaveImage(img, out); err != nil {
			return err
		}
		log.Infow("wrote image", "path", out, "cards", len(o.Result.Cards))
		return nil
	}
}

func watchAction(c *cli.Context) error {
	log, p, err := setup(c)
	if err != nil {
		return err
	}
	defer log.Sync()

	dir, outDir := c.String(flagDir), c.String(flagOutDir)
	paths, err := watch.Dir(c.Context, dir, watch.DefaultSettle, log)
	if err != nil {
		return err
	}
	log.Infow("watching", "dir", dir)

	// Decoded frames are not cached: a watched file name may be reused.
	w := pipeline.NewWorker(p, nil)
	enc := json.NewEncoder(c.App.Writer)
	for path := range paths {
		if outDir != "" && sameDir(filepath.Dir(path), outDir) {
			continue
		}
		o := w.Process(pipeline.Job{Path: path})
		if o.Err != nil {
			log.Warnw("detection failed", "path", path, "error", o.Err)
			if err := enc.Encode(p.FailedReport(path, o.Err)); err != nil {
				return errors.Wrap(err, "write report")
			}
			continue
		}
		if err := enc.Encode(p.NewReport(path, o.Result)); err != nil {
			return errors.Wrap(err, "write report")
		}
		if outDir != "" {
			saveAnnotated(log, o, outDir)
		}
	}
	return nil
}

func saveAnnotated(log *zap.SugaredLogger, o pipeline.Output, outDir string) {
	img, err := pipeline.Annotate(o.Frame.Color, o.Result)
	if err != nil {
		log.Warnw("annotate failed", "path", o.Job.Path, "error", err)
		return
	}
	base := strings.TrimSuffix(filepath.Base(o.Job.Path), filepath.Ext(o.Job.Path))
	out := filepath.Join(outDir, base+"-cards.png")
	if err := imaging.SaveImage(img, out); err != nil {
		log.Warnw("save failed", "path", out, "error", err)
	}
}

func sameDir(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}
