package scanner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/infra/chain"
)

func TestWindows_Partition(t *testing.T) {
	tests := []struct {
		start, end, chunk uint64
		want              []Window
	}{
		{0, 0, 250, []Window{{0, 0}}},
		{0, 249, 250, []Window{{0, 249}}},
		{0, 250, 250, []Window{{0, 249}, {250, 250}}},
		{100, 1000, 250, []Window{{100, 349}, {350, 599}, {600, 849}, {850, 1000}}},
		{5, 9, 1, []Window{{5, 5}, {6, 6}, {7, 7}, {8, 8}, {9, 9}}},
	}
	for _, tt := range tests {
		got, err := Windows(tt.start, tt.end, tt.chunk)
		if err != nil {
			t.Fatalf("Windows(%d, %d, %d): %v", tt.start, tt.end, tt.chunk, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Windows(%d, %d, %d) = %v, want %v", tt.start, tt.end, tt.chunk, got, tt.want)
		}
	}
}

func TestWindows_Coverage(t *testing.T) {
	for _, chunk := range []uint64{1, 7, 250, 1000} {
		for _, r := range [][2]uint64{{0, 2500}, {17, 18}, {999, 3001}} {
			ws, err := Windows(r[0], r[1], chunk)
			if err != nil {
				t.Fatal(err)
			}
			if ws[0].Start != r[0] || ws[len(ws)-1].End != r[1] {
				t.Fatalf("windows %v do not span %v", ws, r)
			}
			for i, w := range ws {
				if w.Size() > chunk || w.Start > w.End {
					t.Errorf("window %v violates chunk %d", w, chunk)
				}
				if i > 0 && w.Start != ws[i-1].End+1 {
					t.Errorf("gap or overlap between %v and %v", ws[i-1], w)
				}
			}
		}
	}
}

func TestWindows_Invalid(t *testing.T) {
	if _, err := Windows(10, 5, 250); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
	if _, err := Windows(0, 5, 0); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestMergeWindows(t *testing.T) {
	got := MergeWindows([]Window{{500, 600}, {0, 99}, {100, 200}, {150, 180}, {700, 800}})
	want := []Window{{0, 200}, {500, 600}, {700, 800}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("MergeWindows = %v, want %v", got, want)
	}
}

func TestParseWindow(t *testing.T) {
	w, err := ParseWindow("100-349")
	if err != nil || w != (Window{100, 349}) {
		t.Errorf("ParseWindow = %v, %v", w, err)
	}
	if _, err := ParseWindow("349-100"); err == nil {
		t.Error("expected error for reversed window")
	}
	if w.String() != "100-349" {
		t.Errorf("String = %s", w.String())
	}
}

// fakeSource returns one event per window, tagged with the window start.
type fakeSource struct {
	mu       sync.Mutex
	fail     map[uint64]bool
	delay    time.Duration
	calls    []Window
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeSource) Events(ctx context.Context, req chain.EventsRequest) ([]domain.EventRecord, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, Window{req.From, req.To})
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail[req.From] {
		return nil, fmt.Errorf("access node error at %d", req.From)
	}
	return []domain.EventRecord{{Type: req.Type, BlockHeight: req.From, TransactionID: fmt.Sprint(req.From)}}, nil
}

func heights(events []domain.EventRecord) []uint64 {
	out := make([]uint64, 0, len(events))
	for _, e := range events {
		out = append(out, e.BlockHeight)
	}
	return out
}

func TestScan_Sequential(t *testing.T) {
	src := &fakeSource{}
	res, err := New(src, 1).Scan(context.Background(), "E", 0, 999, 250)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Complete() {
		t.Errorf("expected complete result")
	}
	if got, want := heights(res.Events), []uint64{0, 250, 500, 750}; !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestScan_PartialFailureIsolation(t *testing.T) {
	for _, p := range []int{1, 4} {
		src := &fakeSource{fail: map[uint64]bool{250: true}}
		res, err := New(src, p).Scan(context.Background(), "E", 0, 999, 250)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := heights(res.Events), []uint64{0, 500, 750}; !reflect.DeepEqual(got, want) {
			t.Errorf("parallelism %d: events = %v, want %v", p, got, want)
		}
		if len(res.Failed) != 1 || res.Failed[0].Window != (Window{250, 499}) {
			t.Errorf("parallelism %d: failed = %v", p, res.FailedWindows())
		}
		if res.Complete() || res.Partial {
			t.Errorf("parallelism %d: expected incomplete, non-partial result", p)
		}
	}
}

func TestScan_ParallelKeepsOrder(t *testing.T) {
	src := &fakeSource{delay: 5 * time.Millisecond}
	res, err := New(src, 3).Scan(context.Background(), "E", 0, 2499, 250)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{0, 250, 500, 750, 1000, 1250, 1500, 1750, 2000, 2250}
	if got := heights(res.Events); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if src.peak.Load() > 3 {
		t.Errorf("parallelism exceeded: peak %d", src.peak.Load())
	}
}

func TestScan_Cancellation(t *testing.T) {
	src := &fakeSource{delay: 20 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := New(src, 1).Scan(ctx, "E", 0, 2499, 250)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Partial {
		t.Fatal("expected partial result")
	}
	if len(res.Events) == 0 || len(res.Events) >= 10 {
		t.Errorf("expected some but not all events, got %d", len(res.Events))
	}
	if len(res.Events)+len(res.Skipped)+len(res.Failed) != 10 {
		t.Errorf("windows unaccounted: events=%d skipped=%d failed=%d",
			len(res.Events), len(res.Skipped), len(res.Failed))
	}
}

func TestScan_IdempotentPartition(t *testing.T) {
	s := New(&fakeSource{}, 1)
	ctx := context.Background()

	whole, _ := s.Scan(ctx, "E", 0, 999, 250)
	left, _ := s.Scan(ctx, "E", 0, 499, 250)
	right, _ := s.Scan(ctx, "E", 500, 999, 250)

	joined := append(heights(left.Events), heights(right.Events)...)
	if !reflect.DeepEqual(heights(whole.Events), joined) {
		t.Errorf("whole %v != joined %v", heights(whole.Events), joined)
	}
}

func TestScan_InvalidRange(t *testing.T) {
	_, err := New(&fakeSource{}, 1).Scan(context.Background(), "E", 10, 5, 250)
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}
