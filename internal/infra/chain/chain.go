// Package chain defines the typed queries the bridge issues against the
// ledger. Implementations live in sub-packages.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vietddude/planbridge/internal/core/domain"
)

// NativeToken is the balance key for the chain's own token.
const NativeToken = "FLOW"

var ErrPlanNotFound = errors.New("plan not found")

// EventsRequest asks for events of one type in the inclusive height range [From, To].
type EventsRequest struct {
	Type string
	From uint64
	To   uint64
}

func (r EventsRequest) Validate() error {
	if r.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if r.From > r.To {
		return fmt.Errorf("invalid height range %d-%d", r.From, r.To)
	}
	return nil
}

// Querier is the read-only view of the chain used by the bridge.
type Querier interface {
	// LatestHeight returns the latest sealed block height.
	LatestHeight(ctx context.Context) (uint64, error)

	// Events returns events in block order for the requested range.
	Events(ctx context.Context, req EventsRequest) ([]domain.EventRecord, error)

	PlanIDs(ctx context.Context, address string) ([]uint64, error)
	PlanSnapshot(ctx context.Context, address string, planID uint64) (*domain.PlanSnapshot, error)

	// Plans returns every plan owned by address in a single query.
	Plans(ctx context.Context, address string) ([]domain.PlanSnapshot, error)

	// TokenBalances returns balances keyed by symbol, including NativeToken.
	TokenBalances(ctx context.Context, address string) (map[string]decimal.Decimal, error)
}
