// Package watch reports image files as they appear in a directory, for
// feeding a detection worker from a camera's drop folder.
package watch

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ironsheep/cardscan/internal/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// DefaultSettle is how long a file must go without further writes before
// it is reported.
const DefaultSettle = 250 * time.Millisecond

// Dir watches dir and sends the path of every image file that is created
// or written, once it has settled. Files that keep changing are reported
// again after each settled burst. The channel is closed when ctx is done
// or the watcher fails.
func Dir(ctx context.Context, dir string, settle time.Duration, log *zap.SugaredLogger) (<-chan string, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "could not create watcher")
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, errors.Wrapf(err, "could not watch %s", dir)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer w.Close()

		pending := make(map[string]time.Time)
		tick := time.NewTicker(settle / 2)
		defer tick.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
						delete(pending, ev.Name)
					}
					continue
				}
				if !imaging.IsImagePath(ev.Name) {
					continue
				}
				pending[ev.Name] = time.Now()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warnw("watch error", "dir", dir, "error", err)
			case now := <-tick.C:
				for _, path := range settled(pending, now, settle) {
					delete(pending, path)
					select {
					case out <- filepath.Clean(path):
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// settled returns the pending paths last touched at least settle ago, in
// name order.
func settled(pending map[string]time.Time, now time.Time, settle time.Duration) []string {
	var out []string
	for path, last := range pending {
		if now.Sub(last) >= settle {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
