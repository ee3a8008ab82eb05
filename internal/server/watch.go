package server

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/matzehuels/evocity/pkg/pipeline"
	"github.com/matzehuels/evocity/pkg/source"
)

// reloadDebounce collapses bursts of file events into one reload.
const reloadDebounce = 250 * time.Millisecond

// watcher reloads the server when files in the series directory change.
type watcher struct {
	fs       *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
}

// watch starts watching the series directory. It returns nil without error
// when the source is not a directory.
func (s *Server) watch(ctx context.Context) (*watcher, error) {
	src, err := pipeline.OpenSource(s.cfg.Options)
	if err != nil {
		return nil, err
	}
	dir, ok := source.Watchable(src)
	if !ok {
		s.logger.Warn("source cannot be watched", "source", src.Name())
		return nil, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	w := &watcher{fs: fw, done: make(chan struct{})}
	go w.loop(ctx, func() {
		if err := s.Reload(ctx); err != nil {
			s.logger.Error("reload failed", "dir", dir, "error", err)
		}
	})
	s.logger.Info("watching series", "dir", dir)
	return w, nil
}

func (w *watcher) loop(ctx context.Context, reload func()) {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}
		case <-timerC:
			timer, timerC = nil, nil
			reload()
		case _, ok := <-w.fs.Errors:
			if !ok {
				return
			}
		}
	}
}

// Stop ends watching.
func (w *watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fs.Close()
	})
}
