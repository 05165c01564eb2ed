package pipeline

import (
	"context"
	"image"
	"sync"

	"github.com/ironsheep/cardscan/internal/imaging"
	"github.com/pkg/errors"
)

// Job is one frame to process: either a file path or an already decoded
// image. When Image is set, Path is only used as a label.
type Job struct {
	Path  string
	Image image.Image
}

// Output pairs a Job with its outcome.
type Output struct {
	Job    Job
	Frame  *imaging.Frame
	Result *Result
	Err    error
}

// Worker processes jobs one at a time with its own Scratch.
type Worker struct {
	p       *Pipeline
	cache   *imaging.ImageCache
	scratch *Scratch
}

// NewWorker returns a Worker for p. cache may be nil, in which case every
// path is decoded afresh.
func NewWorker(p *Pipeline, cache *imaging.ImageCache) *Worker {
	return &Worker{p: p, cache: cache, scratch: NewScratch()}
}

func (w *Worker) frame(job Job) (*imaging.Frame, error) {
	if job.Image != nil {
		return imaging.NewFrame(job.Image)
	}
	if job.Path == "" {
		return nil, errors.New("job has neither path nor image")
	}
	if w.cache != nil {
		return w.cache.Load(job.Path, w.p.cfg.MaxDimension)
	}
	return imaging.LoadFrame(job.Path, w.p.cfg.MaxDimension)
}

// Process loads and detects one job.
func (w *Worker) Process(job Job) Output {
	out := Output{Job: job}
	out.Frame, out.Err = w.frame(job)
	if out.Err != nil {
		return out
	}
	out.Result, out.Err = w.p.Detect(w.scratch, out.Frame.Gray)
	if out.Err != nil {
		out.Err = errors.Wrapf(out.Err, "detect %s", job.Path)
	}
	return out
}

// Run processes jobs until the channel closes or ctx is done, sending one
// Output per job. It returns ctx.Err() when cancelled.
func (w *Worker) Run(ctx context.Context, jobs <-chan Job, out chan<- Output) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job, ok := <-jobs:
			if !ok {
				return nil
			}
			o := w.Process(job)
			if o.Err != nil {
				w.p.log.Warnw("job failed", "path", job.Path, "error", o.Err)
			}
			select {
			case out <- o:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// RunPool starts n workers over jobs and closes the returned channel once
// they have all stopped. Outputs arrive in completion order.
func RunPool(ctx context.Context, p *Pipeline, cache *imaging.ImageCache, n int, jobs <-chan Job) <-chan Output {
	if n < 1 {
		n = 1
	}
	out := make(chan Output, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = NewWorker(p, cache).Run(ctx, jobs, out)
		}()
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}
