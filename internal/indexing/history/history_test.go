package history

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vietddude/planbridge/internal/core/domain"
	"github.com/vietddude/planbridge/internal/indexing/scanner"
	"github.com/vietddude/planbridge/internal/infra/chain"
)

const owner = "0x0123456789abcdef"

type fakeChain struct {
	latest  uint64
	records []domain.EventRecord
	failAt  map[uint64]bool
	ranges  []chain.EventsRequest
}

func (f *fakeChain) LatestHeight(ctx context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeChain) Events(ctx context.Context, req chain.EventsRequest) ([]domain.EventRecord, error) {
	f.ranges = append(f.ranges, req)
	if f.failAt[req.From] {
		return nil, errors.New("boom")
	}
	var out []domain.EventRecord
	for _, r := range f.records {
		if r.BlockHeight >= req.From && r.BlockHeight <= req.To {
			out = append(out, r)
		}
	}
	return out, nil
}

func record(height, plan, exec uint64, addr, in, out string) domain.EventRecord {
	return domain.EventRecord{
		BlockHeight:   height,
		TransactionID: fmt.Sprintf("tx%d", height),
		Fields: map[string]any{
			"planId":          plan,
			"owner":           addr,
			"amountIn":        decimal.RequireFromString(in),
			"amountOut":       decimal.RequireFromString(out),
			"executionNumber": exec,
		},
	}
}

func TestForOwner_Aggregation(t *testing.T) {
	fc := &fakeChain{
		latest: 3000,
		records: []domain.EventRecord{
			record(90, 1, 1, owner, "10", "0.0005"),
			record(100, 1, 2, owner, "10", "0.0005"),
			record(95, 2, 1, "0xfedcba9876543210", "50", "0.001"),
		},
	}
	svc := NewService(Config{EventType: "E", ChunkSize: 250, Lookback: 2950}, fc, scanner.New(fc, 1))

	rep, err := svc.ForOwner(context.Background(), "0x0123456789ABCDEF")
	if err != nil {
		t.Fatalf("ForOwner: %v", err)
	}
	if rep.FromHeight != 50 || rep.ToHeight != 3000 {
		t.Errorf("range = %d-%d", rep.FromHeight, rep.ToHeight)
	}
	if len(rep.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(rep.Events))
	}
	if rep.Events[0].BlockHeight != 100 || rep.Events[1].BlockHeight != 90 {
		t.Errorf("expected block 100 before 90, got %d, %d", rep.Events[0].BlockHeight, rep.Events[1].BlockHeight)
	}

	s := rep.Summary
	if s.TotalIn.StringFixed(2) != "20.00" || s.TotalOut.StringFixed(8) != "0.00100000" {
		t.Errorf("totals = %s USD -> %s BTC", s.TotalIn.StringFixed(2), s.TotalOut.StringFixed(8))
	}
	if !s.HasPrice || s.AveragePrice.StringFixed(2) != "20000.00" {
		t.Errorf("average price = %s", s.AveragePrice.StringFixed(2))
	}
	if !rep.Complete {
		t.Error("expected complete report")
	}
}

func TestForOwner_LookbackClampsAtGenesis(t *testing.T) {
	fc := &fakeChain{latest: 100}
	svc := NewService(Config{EventType: "E", ChunkSize: 250, Lookback: 2500}, fc, scanner.New(fc, 1))

	rep, err := svc.ForOwner(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	if rep.FromHeight != 0 {
		t.Errorf("from = %d, want 0", rep.FromHeight)
	}
	if len(rep.Events) != 0 {
		t.Errorf("expected empty history")
	}
}

func TestForOwner_FailedWindowIsLowerBound(t *testing.T) {
	fc := &fakeChain{
		latest:  499,
		records: []domain.EventRecord{record(10, 1, 1, owner, "5", "0.0001"), record(300, 1, 2, owner, "5", "0.0001")},
		failAt:  map[uint64]bool{250: true},
	}
	svc := NewService(Config{EventType: "E", ChunkSize: 250, Lookback: 499}, fc, scanner.New(fc, 1))

	rep, err := svc.ForOwner(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Complete {
		t.Error("expected incomplete report")
	}
	if len(rep.Events) != 1 || rep.Events[0].BlockHeight != 10 {
		t.Errorf("unexpected events %+v", rep.Events)
	}
}

func TestForOwner_InvalidAddress(t *testing.T) {
	fc := &fakeChain{latest: 10}
	svc := NewService(Config{EventType: "E", ChunkSize: 250, Lookback: 10}, fc, scanner.New(fc, 1))
	if _, err := svc.ForOwner(context.Background(), "0x123"); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestSummarize_NoOutput(t *testing.T) {
	s := Summarize([]domain.ExecutionEvent{{AmountIn: decimal.RequireFromString("10"), AmountOut: decimal.Zero}})
	if s.HasPrice {
		t.Error("no average price when nothing was bought")
	}
	if s.Count != 1 || s.TotalIn.StringFixed(2) != "10.00" {
		t.Errorf("unexpected summary %+v", s)
	}
}
