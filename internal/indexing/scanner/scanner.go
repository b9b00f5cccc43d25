// Package scanner retrieves events over block ranges wider than a single
// events query allows, by splitting the range into windows.
//
// A failing window contributes no events and is reported in the result; it
// never aborts the scan. Results are therefore a lower bound unless
// Result.Complete reports true.
package scanner

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/indexing/metrics"
	"github.com/vietddude/planbridge/internal/infra/chain"
)

// EventSource is the part of chain.Querier the scanner needs.
type EventSource interface {
	Events(ctx context.Context, req chain.EventsRequest) ([]domain.EventRecord, error)
}

// ChunkError records a window whose query failed.
type ChunkError struct {
	Window Window
	Err    error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk query failure %s: %v", e.Window, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }

type Result struct {
	Events  []domain.EventRecord
	Windows []Window
	Failed  []*ChunkError
	// Skipped lists windows never queried because the context ended.
	Skipped []Window
	Partial bool
}

// Complete reports whether every window was queried successfully.
func (r Result) Complete() bool {
	return !r.Partial && len(r.Failed) == 0
}

// FailedWindows returns the windows of every failed query.
func (r Result) FailedWindows() []Window {
	out := make([]Window, 0, len(r.Failed))
	for _, f := range r.Failed {
		out = append(out, f.Window)
	}
	return out
}

type Scanner struct {
	source      EventSource
	parallelism int
	log         *slog.Logger
}

// New returns a scanner issuing at most parallelism concurrent queries.
// Parallelism below 2 scans sequentially.
func New(source EventSource, parallelism int) *Scanner {
	return &Scanner{
		source:      source,
		parallelism: max(parallelism, 1),
		log:         slog.Default().With("component", "scanner"),
	}
}

type windowResult struct {
	events  []domain.EventRecord
	err     error
	skipped bool
}

// Scan collects events of eventType in [start, end]. The returned error is
// non-nil only for an invalid range.
func (s *Scanner) Scan(ctx context.Context, eventType string, start, end, chunkSize uint64) (Result, error) {
	windows, err := Windows(start, end, chunkSize)
	if err != nil {
		return Result{}, err
	}

	results := make([]windowResult, len(windows))
	if s.parallelism == 1 {
		for i, w := range windows {
			if ctx.Err() != nil {
				results[i].skipped = true
				continue
			}
			results[i] = s.query(ctx, eventType, w)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.parallelism)
		for i, w := range windows {
			if ctx.Err() != nil {
				results[i].skipped = true
				continue
			}
			g.Go(func() error {
				results[i] = s.query(ctx, eventType, w)
				return nil
			})
		}
		_ = g.Wait()
	}

	res := Result{Windows: windows}
	for i, r := range results {
		switch {
		case r.skipped:
			res.Skipped = append(res.Skipped, windows[i])
			res.Partial = true
			metrics.ScanWindowsTotal.WithLabelValues("skipped").Inc()
		case r.err != nil:
			res.Failed = append(res.Failed, &ChunkError{Window: windows[i], Err: r.err})
			metrics.ScanWindowsTotal.WithLabelValues("failed").Inc()
		default:
			res.Events = append(res.Events, r.events...)
			metrics.ScanWindowsTotal.WithLabelValues("ok").Inc()
		}
	}
	metrics.ScanEventsTotal.Add(float64(len(res.Events)))

	if !res.Complete() {
		s.log.Warn("Scan incomplete",
			"range", Window{Start: start, End: end}.String(),
			"windows", len(windows),
			"failed", len(res.Failed),
			"skipped", len(res.Skipped),
		)
	}
	return res, nil
}

func (s *Scanner) query(ctx context.Context, eventType string, w Window) windowResult {
	events, err := s.source.Events(ctx, chain.EventsRequest{Type: eventType, From: w.Start, To: w.End})
	if err != nil {
		if ctx.Err() != nil {
			return windowResult{skipped: true}
		}
		s.log.Warn("Chunk query failure", "window", w.String(), "error", err)
		return windowResult{err: err}
	}
	return windowResult{events: events}
}
