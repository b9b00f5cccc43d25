// Package watcher follows the chain head and hands every new execution event
// to the notifier, persisting its progress as a cursor.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/indexing/metrics"
	"github.com/vietddude/planbridge/internal/indexing/scanner"
	"github.com/vietddude/planbridge/internal/indexing/throttle"
	"github.com/vietddude/planbridge/internal/infra/storage"
)

type HeightSource interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

// Dispatcher receives decoded execution events.
type Dispatcher interface {
	Notify(ctx context.Context, ev domain.ExecutionEvent)
}

// RescanQueue stores failed windows for later retry.
type RescanQueue interface {
	PushWindow(ctx context.Context, network string, start, end uint64) error
	PopWindow(ctx context.Context, network string) (start, end uint64, found bool, err error)
	// CompactWindows rewrites the queue with the result of compact, which
	// maps the queued "start-end" windows to their replacement and reports
	// whether anything changed. The read and the rewrite must be atomic
	// with respect to PushWindow.
	CompactWindows(ctx context.Context, network string, compact func(raw []string) ([][2]uint64, bool, error)) error
	QueueDepth(ctx context.Context, network string) (int64, error)
	AcquireLock(ctx context.Context, network string, start, end uint64, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, network string, start, end uint64) error
}

type Config struct {
	Network      string
	EventType    string
	ChunkSize    uint64
	Lookback     uint64
	MaxRange     uint64
	PollInterval time.Duration
	Concurrency  int
	// Throttle adapts the poll interval to the lag; nil polls at PollInterval.
	Throttle *throttle.Controller
}

type Watcher struct {
	cfg      Config
	heights  HeightSource
	scanner  *scanner.Scanner
	cursors  storage.CursorRepository
	dispatch Dispatcher
	queue    RescanQueue
	log      *slog.Logger

	lag atomic.Uint64
}

// New creates a watcher. queue may be nil, in which case failed windows are
// only logged.
func New(
	cfg Config,
	heights HeightSource,
	sc *scanner.Scanner,
	cursors storage.CursorRepository,
	dispatch Dispatcher,
	queue RescanQueue,
) *Watcher {
	if cfg.MaxRange == 0 {
		cfg.MaxRange = max(cfg.Lookback, 1)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Watcher{
		cfg:      cfg,
		heights:  heights,
		scanner:  sc,
		cursors:  cursors,
		dispatch: dispatch,
		queue:    queue,
		log:      slog.Default().With("component", "watcher", "network", cfg.Network),
	}
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("Starting execution watcher", "interval", w.cfg.PollInterval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Execution watcher stopped")
			return nil
		case <-timer.C:
		}

		if err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("Watch tick failed", "error", err)
		}
		timer.Reset(w.nextInterval())
	}
}

func (w *Watcher) nextInterval() time.Duration {
	if w.cfg.Throttle == nil {
		return w.cfg.PollInterval
	}
	return w.cfg.Throttle.ComputeInterval(w.lag.Load())
}

// Lag returns the number of blocks between the cursor and the head seen by
// the last tick.
func (w *Watcher) Lag() uint64 {
	return w.lag.Load()
}

// Tick scans from the cursor towards the chain head once.
func (w *Watcher) Tick(ctx context.Context) error {
	latest, err := w.heights.LatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("latest height: %w", err)
	}

	cursor, err := w.cursor(ctx, latest)
	if err != nil {
		return err
	}
	if cursor.Height >= latest {
		w.lag.Store(0)
		return nil
	}

	from := cursor.Height + 1
	to := min(latest, from+w.cfg.MaxRange-1)

	res, err := w.scanner.Scan(ctx, w.cfg.EventType, from, to, w.cfg.ChunkSize)
	if err != nil {
		return fmt.Errorf("scan %d-%d: %w", from, to, err)
	}

	dispatchRecords(ctx, w.log, w.dispatch, res.Events, w.cfg.Concurrency)
	w.queueFailed(ctx, res.FailedWindows())

	// Stop before the first window that was never queried.
	next := to
	if len(res.Skipped) > 0 {
		first := res.Skipped[0].Start
		if first == from {
			return ctx.Err()
		}
		next = first - 1
	}

	cursor.Height = next
	cursor.UpdatedAt = time.Now()
	if err := w.cursors.Save(ctx, cursor); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	w.lag.Store(latest - next)
	metrics.WatcherCursorHeight.WithLabelValues(w.cfg.Network).Set(float64(next))
	w.log.Debug("Watch tick done", "from", from, "to", next, "events", len(res.Events), "failed", len(res.Failed))
	return nil
}

func (w *Watcher) cursor(ctx context.Context, latest uint64) (*domain.Cursor, error) {
	c, err := w.cursors.Get(ctx, w.cfg.Network)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, storage.ErrCursorNotFound) {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	start := uint64(0)
	if latest > w.cfg.Lookback {
		start = latest - w.cfg.Lookback
	}
	w.log.Info("Initializing cursor", "height", start)
	return &domain.Cursor{ChainID: w.cfg.Network, Height: start}, nil
}

// dispatchRecords decodes records and notifies them, at most limit at a
// time. It returns once every dispatch has finished.
func dispatchRecords(ctx context.Context, log *slog.Logger, d Dispatcher, records []domain.EventRecord, limit int) {
	var g errgroup.Group
	g.SetLimit(max(limit, 1))
	for _, rec := range records {
		ev, err := domain.ExecutionFromRecord(rec)
		if err != nil {
			log.Warn("Dropping undecodable event", "tx", rec.TransactionID, "error", err)
			continue
		}
		g.Go(func() error {
			d.Notify(ctx, ev)
			return nil
		})
	}
	_ = g.Wait()
}

func (w *Watcher) queueFailed(ctx context.Context, windows []scanner.Window) {
	if len(windows) == 0 {
		return
	}
	if w.queue == nil {
		for _, win := range windows {
			w.log.Warn("Window lost without rescan queue", "window", win.String())
		}
		return
	}
	for _, win := range scanner.MergeWindows(windows) {
		if err := w.queue.PushWindow(ctx, w.cfg.Network, win.Start, win.End); err != nil {
			w.log.Error("Failed to queue window for rescan", "window", win.String(), "error", err)
		}
	}
}
