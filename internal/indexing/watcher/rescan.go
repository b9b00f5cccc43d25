package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/planbridge/internal/indexing/metrics"
	"github.com/vietddude/planbridge/internal/indexing/scanner"
)

// RescanConfig holds configuration for the rescan worker.
type RescanConfig struct {
	Network     string
	EventType   string
	ChunkSize   uint64
	LockTTL     time.Duration
	EmptySleep  time.Duration
	Concurrency int
}

// RescanWorker drains the failed-window queue, re-scanning each window and
// dispatching whatever it recovers.
type RescanWorker struct {
	cfg      RescanConfig
	queue    RescanQueue
	scanner  *scanner.Scanner
	dispatch Dispatcher
	log      *slog.Logger
}

func NewRescanWorker(cfg RescanConfig, queue RescanQueue, sc *scanner.Scanner, dispatch Dispatcher) *RescanWorker {
	if cfg.LockTTL == 0 {
		cfg.LockTTL = 60 * time.Second
	}
	if cfg.EmptySleep == 0 {
		cfg.EmptySleep = 10 * time.Second
	}
	return &RescanWorker{
		cfg:      cfg,
		queue:    queue,
		scanner:  sc,
		dispatch: dispatch,
		log:      slog.Default().With("component", "rescan", "network", cfg.Network),
	}
}

// Run starts the worker loop.
func (w *RescanWorker) Run(ctx context.Context) error {
	w.log.Info("Starting rescan worker")

	for {
		if ctx.Err() != nil {
			w.log.Info("Rescan worker stopped")
			return nil
		}

		found, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Error("Rescan failed", "error", err)
		}
		if found && err == nil {
			continue
		}

		select {
		case <-ctx.Done():
		case <-time.After(w.cfg.EmptySleep):
		}
	}
}

// RunOnce merges the queue and processes its lowest window. It reports
// whether a window was found.
func (w *RescanWorker) RunOnce(ctx context.Context) (bool, error) {
	if err := w.mergeQueue(ctx); err != nil {
		w.log.Warn("Failed to merge windows", "error", err)
	}
	if depth, err := w.queue.QueueDepth(ctx, w.cfg.Network); err == nil {
		metrics.RescanQueueDepth.WithLabelValues(w.cfg.Network).Set(float64(depth))
	}

	start, end, found, err := w.queue.PopWindow(ctx, w.cfg.Network)
	if err != nil {
		return false, fmt.Errorf("pop window: %w", err)
	}
	if !found {
		return false, nil
	}

	if err := w.process(ctx, scanner.Window{Start: start, End: end}); err != nil {
		if reqErr := w.queue.PushWindow(ctx, w.cfg.Network, start, end); reqErr != nil {
			w.log.Error("Failed to re-queue window", "start", start, "end", end, "error", reqErr)
		}
		return true, err
	}
	return true, nil
}

func (w *RescanWorker) process(ctx context.Context, win scanner.Window) error {
	locked, err := w.queue.AcquireLock(ctx, w.cfg.Network, win.Start, win.End, w.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		w.log.Debug("Window already locked by another worker", "window", win.String())
		return nil
	}
	defer func() {
		if err := w.queue.ReleaseLock(context.WithoutCancel(ctx), w.cfg.Network, win.Start, win.End); err != nil {
			w.log.Warn("Failed to release lock", "error", err)
		}
	}()

	w.log.Info("Rescanning window", "window", win.String())
	res, err := w.scanner.Scan(ctx, w.cfg.EventType, win.Start, win.End, w.cfg.ChunkSize)
	if err != nil {
		return err
	}

	dispatchRecords(ctx, w.log, w.dispatch, res.Events, w.cfg.Concurrency)

	var leftover []scanner.Window
	leftover = append(leftover, res.FailedWindows()...)
	leftover = append(leftover, res.Skipped...)
	for _, lw := range scanner.MergeWindows(leftover) {
		if err := w.queue.PushWindow(ctx, w.cfg.Network, lw.Start, lw.End); err != nil {
			w.log.Error("Failed to re-queue window", "window", lw.String(), "error", err)
		}
	}
	if len(leftover) > 0 {
		w.log.Warn("Window partially recovered", "window", win.String(), "remaining", len(leftover))
	} else {
		w.log.Info("Window recovered", "window", win.String(), "events", len(res.Events))
	}
	return nil
}

// mergeQueue merges overlapping and adjacent windows in the queue.
func (w *RescanWorker) mergeQueue(ctx context.Context) error {
	return w.queue.CompactWindows(ctx, w.cfg.Network, func(raw []string) ([][2]uint64, bool, error) {
		if len(raw) <= 1 {
			return nil, false, nil
		}

		windows := make([]scanner.Window, 0, len(raw))
		for _, s := range raw {
			win, err := scanner.ParseWindow(s)
			if err != nil {
				return nil, false, err
			}
			windows = append(windows, win)
		}

		merged := scanner.MergeWindows(windows)
		if len(merged) == len(windows) {
			return nil, false, nil
		}

		w.log.Info("Merging windows", "before", len(windows), "after", len(merged))
		pairs := make([][2]uint64, 0, len(merged))
		for _, m := range merged {
			pairs = append(pairs, [2]uint64{m.Start, m.End})
		}
		return pairs, true, nil
	})
}
