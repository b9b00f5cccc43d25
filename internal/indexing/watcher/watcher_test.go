package watcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/indexing/scanner"
	"github.com/vietddude/planbridge/internal/indexing/throttle"
	"github.com/vietddude/planbridge/internal/infra/chain"
	"github.com/vietddude/planbridge/internal/infra/storage/memory"
)

const testEvent = "A.78acd984694957cf.DCAContract.PlanExecuted"

type fixedHeight struct{ h uint64 }

func (f fixedHeight) LatestHeight(ctx context.Context) (uint64, error) { return f.h, nil }

// fakeSource emits one execution event per queried window, at its start
// height, and fails windows whose start is listed in fail.
type fakeSource struct {
	mu    sync.Mutex
	fail  map[uint64]bool
	calls []chain.EventsRequest
}

func (f *fakeSource) Events(ctx context.Context, req chain.EventsRequest) ([]domain.EventRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.fail[req.From] {
		return nil, errors.New("access node unavailable")
	}
	return []domain.EventRecord{{
		Type:          req.Type,
		BlockHeight:   req.From,
		TransactionID: fmt.Sprintf("tx%d", req.From),
		Fields: map[string]any{
			"planId":          uint64(1),
			"executionNumber": req.From,
			"amountIn":        "10.0",
			"amountOut":       "0.0005",
			"owner":           "0xABC",
		},
	}}, nil
}

type recorder struct {
	mu     sync.Mutex
	events []domain.ExecutionEvent
}

func (r *recorder) Notify(ctx context.Context, ev domain.ExecutionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) heights() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.BlockHeight)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// fakeQueue mimics the optimistic locking of the redis queue: a compaction
// that races with a push is retried on the new contents.
type fakeQueue struct {
	mu      sync.Mutex
	windows []scanner.Window
	locked  map[string]bool
	version int

	// duringCompact runs once, between the read and the rewrite.
	duringCompact func()
}

func newFakeQueue(windows ...scanner.Window) *fakeQueue {
	return &fakeQueue{windows: windows, locked: map[string]bool{}}
}

func (q *fakeQueue) PushWindow(ctx context.Context, network string, start, end uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.windows = append(q.windows, scanner.Window{Start: start, End: end})
	q.version++
	return nil
}

func (q *fakeQueue) PopWindow(ctx context.Context, network string) (uint64, uint64, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.windows) == 0 {
		return 0, 0, false, nil
	}
	sort.Slice(q.windows, func(i, j int) bool { return q.windows[i].Start < q.windows[j].Start })
	w := q.windows[0]
	q.windows = q.windows[1:]
	q.version++
	return w.Start, w.End, true, nil
}

func (q *fakeQueue) CompactWindows(ctx context.Context, network string, compact func([]string) ([][2]uint64, bool, error)) error {
	for {
		q.mu.Lock()
		version := q.version
		raw := make([]string, 0, len(q.windows))
		for _, w := range q.windows {
			raw = append(raw, w.String())
		}
		hook := q.duringCompact
		q.duringCompact = nil
		q.mu.Unlock()

		windows, changed, err := compact(raw)
		if err != nil || !changed {
			return err
		}
		if hook != nil {
			hook()
		}

		q.mu.Lock()
		if q.version != version {
			q.mu.Unlock()
			continue
		}
		q.windows = q.windows[:0]
		for _, w := range windows {
			q.windows = append(q.windows, scanner.Window{Start: w[0], End: w[1]})
		}
		q.version++
		q.mu.Unlock()
		return nil
	}
}

func (q *fakeQueue) QueueDepth(ctx context.Context, network string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.windows)), nil
}

func (q *fakeQueue) AcquireLock(ctx context.Context, network string, start, end uint64, ttl time.Duration) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := fmt.Sprintf("%d-%d", start, end)
	if q.locked[key] {
		return false, nil
	}
	q.locked[key] = true
	return true, nil
}

func (q *fakeQueue) ReleaseLock(ctx context.Context, network string, start, end uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.locked, fmt.Sprintf("%d-%d", start, end))
	return nil
}

func (q *fakeQueue) snapshot() []scanner.Window {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]scanner.Window(nil), q.windows...)
}

func newTestWatcher(t *testing.T, latest uint64, src *fakeSource, q RescanQueue) (*Watcher, *memory.CursorRepo, *recorder) {
	t.Helper()
	cursors := memory.NewCursorRepo(memory.NewMemoryStorage())
	rec := &recorder{}
	w := New(Config{
		Network:      "flow-testnet",
		EventType:    testEvent,
		ChunkSize:    10,
		Lookback:     50,
		MaxRange:     40,
		PollInterval: time.Millisecond,
		Concurrency:  2,
	}, fixedHeight{latest}, scanner.New(src, 1), cursors, rec, q)
	return w, cursors, rec
}

func TestTickInitializesCursorFromLookback(t *testing.T) {
	src := &fakeSource{}
	w, cursors, rec := newTestWatcher(t, 100, src, nil)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	c, err := cursors.Get(context.Background(), "flow-testnet")
	if err != nil {
		t.Fatalf("Get cursor: %v", err)
	}
	// Starts at 100-50, scans at most 40 blocks: 51..90.
	if c.Height != 90 {
		t.Errorf("cursor = %d, want 90", c.Height)
	}
	if w.Lag() != 10 {
		t.Errorf("lag = %d, want 10", w.Lag())
	}
	want := []uint64{51, 61, 71, 81}
	got := rec.heights()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("dispatched heights = %v, want %v", got, want)
	}
}

func TestTickResumesFromCursorAndStopsAtHead(t *testing.T) {
	src := &fakeSource{}
	w, cursors, rec := newTestWatcher(t, 100, src, nil)
	if err := cursors.Save(context.Background(), &domain.Cursor{ChainID: "flow-testnet", Height: 95}); err != nil {
		t.Fatal(err)
	}

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	c, _ := cursors.Get(context.Background(), "flow-testnet")
	if c.Height != 100 {
		t.Errorf("cursor = %d, want 100", c.Height)
	}
	if got := rec.heights(); len(got) != 1 || got[0] != 96 {
		t.Errorf("dispatched heights = %v, want [96]", got)
	}

	// At head: nothing to do.
	src.calls = nil
	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick at head: %v", err)
	}
	if len(src.calls) != 0 {
		t.Errorf("expected no queries at head, got %d", len(src.calls))
	}
}

func TestTickQueuesFailedWindows(t *testing.T) {
	src := &fakeSource{fail: map[uint64]bool{61: true, 71: true}}
	q := newFakeQueue()
	w, cursors, rec := newTestWatcher(t, 100, src, q)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	c, _ := cursors.Get(context.Background(), "flow-testnet")
	if c.Height != 90 {
		t.Errorf("cursor = %d, want 90 (failed windows go to the queue)", c.Height)
	}
	if got := rec.heights(); fmt.Sprint(got) != "[51 81]" {
		t.Errorf("dispatched heights = %v, want [51 81]", got)
	}
	queued := q.snapshot()
	if len(queued) != 1 || queued[0] != (scanner.Window{Start: 61, End: 80}) {
		t.Errorf("queued = %v, want [61-80]", queued)
	}
}

func TestTickCancelledKeepsCursor(t *testing.T) {
	src := &fakeSource{}
	w, cursors, rec := newTestWatcher(t, 100, src, nil)
	if err := cursors.Save(context.Background(), &domain.Cursor{ChainID: "flow-testnet", Height: 60}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Tick(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Tick error = %v, want context.Canceled", err)
	}
	c, _ := cursors.Get(context.Background(), "flow-testnet")
	if c.Height != 60 {
		t.Errorf("cursor moved to %d after cancellation", c.Height)
	}
	if len(rec.heights()) != 0 {
		t.Error("nothing should be dispatched after cancellation")
	}
}

func TestNextIntervalFollowsLag(t *testing.T) {
	src := &fakeSource{}
	w, _, _ := newTestWatcher(t, 1000, src, nil)
	if got := w.nextInterval(); got != time.Millisecond {
		t.Errorf("fixed interval = %v, want 1ms", got)
	}

	cfg := throttle.DefaultConfig()
	cfg.MinInterval = time.Second
	w.cfg.PollInterval = 10 * time.Second
	w.cfg.Throttle = throttle.NewController(w.cfg.PollInterval, cfg)

	// The cursor starts 50 behind and one tick covers 40 blocks.
	if err := w.Tick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w.Lag() != 10 {
		t.Fatalf("lag = %d, want 10", w.Lag())
	}
	if got := w.nextInterval(); got != 5*time.Second {
		t.Errorf("interval at lag 10 = %v, want 5s", got)
	}
}

func TestRescanWorkerRecoversWindow(t *testing.T) {
	src := &fakeSource{}
	q := newFakeQueue(
		scanner.Window{Start: 21, End: 30},
		scanner.Window{Start: 11, End: 20},
	)
	rec := &recorder{}
	rw := NewRescanWorker(RescanConfig{
		Network:   "flow-testnet",
		EventType: testEvent,
		ChunkSize: 10,
	}, q, scanner.New(src, 1), rec)

	found, err := rw.RunOnce(context.Background())
	if err != nil || !found {
		t.Fatalf("RunOnce = %v, %v", found, err)
	}
	// Adjacent windows are merged before popping.
	if got := rec.heights(); fmt.Sprint(got) != "[11 21]" {
		t.Errorf("dispatched heights = %v, want [11 21]", got)
	}
	if left := q.snapshot(); len(left) != 0 {
		t.Errorf("queue not drained: %v", left)
	}

	found, err = rw.RunOnce(context.Background())
	if err != nil || found {
		t.Errorf("RunOnce on empty queue = %v, %v", found, err)
	}
}

func TestMergeQueueKeepsWindowPushedDuringMerge(t *testing.T) {
	q := newFakeQueue(
		scanner.Window{Start: 0, End: 9},
		scanner.Window{Start: 10, End: 19},
	)
	q.duringCompact = func() {
		if err := q.PushWindow(context.Background(), "flow-testnet", 500, 509); err != nil {
			t.Fatal(err)
		}
	}
	rw := NewRescanWorker(RescanConfig{Network: "flow-testnet", EventType: testEvent, ChunkSize: 10}, q, scanner.New(&fakeSource{}, 1), &recorder{})

	if err := rw.mergeQueue(context.Background()); err != nil {
		t.Fatalf("mergeQueue: %v", err)
	}
	got := q.snapshot()
	sort.Slice(got, func(i, j int) bool { return got[i].Start < got[j].Start })
	want := []scanner.Window{{Start: 0, End: 19}, {Start: 500, End: 509}}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("queue after merge = %v, want %v", got, want)
	}
}

func TestRescanWorkerRequeuesStillFailing(t *testing.T) {
	src := &fakeSource{fail: map[uint64]bool{11: true}}
	q := newFakeQueue(scanner.Window{Start: 1, End: 20})
	rec := &recorder{}
	rw := NewRescanWorker(RescanConfig{
		Network:   "flow-testnet",
		EventType: testEvent,
		ChunkSize: 10,
	}, q, scanner.New(src, 1), rec)

	if _, err := rw.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if got := rec.heights(); fmt.Sprint(got) != "[1]" {
		t.Errorf("dispatched heights = %v, want [1]", got)
	}
	left := q.snapshot()
	if len(left) != 1 || left[0] != (scanner.Window{Start: 11, End: 20}) {
		t.Errorf("queue = %v, want [11-20]", left)
	}
	if len(q.locked) != 0 {
		t.Errorf("lock not released: %v", q.locked)
	}
}

func TestRescanWorkerSkipsLockedWindow(t *testing.T) {
	src := &fakeSource{}
	q := newFakeQueue(scanner.Window{Start: 1, End: 10})
	q.locked["1-10"] = true
	rec := &recorder{}
	rw := NewRescanWorker(RescanConfig{Network: "flow-testnet", EventType: testEvent, ChunkSize: 10}, q, scanner.New(src, 1), rec)

	if _, err := rw.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(src.calls) != 0 {
		t.Errorf("locked window was scanned")
	}
}
