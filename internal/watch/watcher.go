// Package watch triggers dataset reloads when the backing file changes or on a
// fixed interval.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	DefaultMinGap   = 2 * time.Second
)

// ReloadFunc performs one reload. Errors are logged, never fatal.
type ReloadFunc func(ctx context.Context) error

type Options struct {
	// Path of the dataset file to watch. Empty disables file watching.
	Path string
	// Interval between unconditional reloads. Zero disables polling.
	Interval time.Duration
	// Debounce collapses bursts of write events into one reload.
	Debounce time.Duration
	// MinGap is the minimum time between two reloads.
	MinGap time.Duration
	Logger *slog.Logger
}

type Watcher struct {
	opts    Options
	reload  ReloadFunc
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(reload ReloadFunc, opts Options) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MinGap <= 0 {
		opts.MinGap = DefaultMinGap
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		opts:    opts,
		reload:  reload,
		limiter: rate.NewLimiter(rate.Every(opts.MinGap), 1),
		logger:  logger.With(slog.String("component", "watch")),
	}
}

// Run blocks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var errs <-chan error
	var target string

	if w.opts.Path != "" {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer fw.Close()

		// Editors and copy tools replace files via rename, so watch the directory
		abs, err := filepath.Abs(w.opts.Path)
		if err != nil {
			return err
		}
		if err := fw.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
		}
		target = abs
		events, errs = fw.Events, fw.Errors
		w.logger.Info("watching dataset file", slog.String("path", abs))
	}

	var tick <-chan time.Time
	if w.opts.Interval > 0 {
		t := time.NewTicker(w.opts.Interval)
		defer t.Stop()
		tick = t.C
	}

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.opts.Debounce)
			}

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-timerC:
			timer, timerC = nil, nil
			w.trigger(ctx, "file_change")

		case <-tick:
			w.trigger(ctx, "interval")
		}
	}
}

func (w *Watcher) trigger(ctx context.Context, reason string) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}
	start := time.Now()
	if err := w.reload(ctx); err != nil {
		w.logger.Error("reload failed", slog.String("reason", reason), slog.String("error", err.Error()))
		return
	}
	w.logger.Info("reloaded", slog.String("reason", reason), slog.Duration("took", time.Since(start)))
}
