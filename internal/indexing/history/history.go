// Package history reconstructs an address's recent plan executions from the
// chain event log.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/indexing/scanner"
)

type HeightSource interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

type Config struct {
	EventType string
	ChunkSize uint64
	Lookback  uint64
}

type Summary struct {
	Count        int             `json:"count"`
	TotalIn      decimal.Decimal `json:"total_in"`
	TotalOut     decimal.Decimal `json:"total_out"`
	AveragePrice decimal.Decimal `json:"average_price"`
	HasPrice     bool            `json:"has_price"`
}

type Report struct {
	Owner      string                  `json:"owner"`
	Events     []domain.ExecutionEvent `json:"events"`
	Summary    Summary                 `json:"summary"`
	FromHeight uint64                  `json:"from_height"`
	ToHeight   uint64                  `json:"to_height"`
	// Complete is false when some windows failed or were skipped; the
	// events are then a lower bound.
	Complete bool `json:"complete"`
}

type Service struct {
	cfg     Config
	heights HeightSource
	scanner *scanner.Scanner
	log     *slog.Logger
}

func NewService(cfg Config, heights HeightSource, sc *scanner.Scanner) *Service {
	return &Service{
		cfg:     cfg,
		heights: heights,
		scanner: sc,
		log:     slog.Default().With("component", "history"),
	}
}

// ForOwner scans the lookback window ending at the latest sealed height and
// returns owner's executions, newest first.
func (s *Service) ForOwner(ctx context.Context, owner string) (*Report, error) {
	addr, err := domain.NormalizeAddress(owner)
	if err != nil {
		return nil, err
	}

	latest, err := s.heights.LatestHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest height: %w", err)
	}
	from := uint64(0)
	if latest > s.cfg.Lookback {
		from = latest - s.cfg.Lookback
	}

	res, err := s.scanner.Scan(ctx, s.cfg.EventType, from, latest, s.cfg.ChunkSize)
	if err != nil {
		return nil, err
	}

	events := FilterOwner(res.Events, addr, s.log)
	SortNewestFirst(events)

	return &Report{
		Owner:      addr,
		Events:     events,
		Summary:    Summarize(events),
		FromHeight: from,
		ToHeight:   latest,
		Complete:   res.Complete(),
	}, nil
}

// FilterOwner decodes records and keeps those owned by addr. Records that do
// not decode are logged and dropped.
func FilterOwner(records []domain.EventRecord, addr string, log *slog.Logger) []domain.ExecutionEvent {
	out := make([]domain.ExecutionEvent, 0)
	for _, rec := range records {
		ev, err := domain.ExecutionFromRecord(rec)
		if err != nil {
			log.Warn("Dropping undecodable event", "tx", rec.TransactionID, "error", err)
			continue
		}
		if domain.SameAddress(ev.Owner, addr) {
			out = append(out, ev)
		}
	}
	return out
}

func SortNewestFirst(events []domain.ExecutionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockHeight != events[j].BlockHeight {
			return events[i].BlockHeight > events[j].BlockHeight
		}
		return events[i].ExecutionNumber > events[j].ExecutionNumber
	})
}

func Summarize(events []domain.ExecutionEvent) Summary {
	sum := Summary{Count: len(events), TotalIn: decimal.Zero, TotalOut: decimal.Zero}
	for _, e := range events {
		sum.TotalIn = sum.TotalIn.Add(e.AmountIn)
		sum.TotalOut = sum.TotalOut.Add(e.AmountOut)
	}
	if sum.TotalOut.IsPositive() {
		sum.AveragePrice = sum.TotalIn.Div(sum.TotalOut)
		sum.HasPrice = true
	}
	return sum
}
