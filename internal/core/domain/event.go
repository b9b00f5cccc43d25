package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// EventRecord is a raw event as returned by the chain's event log.
type EventRecord struct {
	Type             string
	BlockHeight      uint64
	BlockID          string
	TransactionID    string
	TransactionIndex int
	EventIndex       int
	// Fields holds the decoded event payload keyed by field name.
	Fields map[string]any
}

// ExecutionEvent is a decoded plan execution observed on chain.
type ExecutionEvent struct {
	PlanID          uint64          `json:"plan_id"`
	Owner           string          `json:"owner"`
	AmountIn        decimal.Decimal `json:"amount_in"`
	AmountOut       decimal.Decimal `json:"amount_out"`
	ExecutionNumber uint64          `json:"execution_number"`
	BlockHeight     uint64          `json:"block_height"`
	TransactionID   string          `json:"transaction_id"`
}

// Key uniquely identifies an execution event.
func (e ExecutionEvent) Key() string {
	return fmt.Sprintf("%s:%d:%d", e.TransactionID, e.PlanID, e.ExecutionNumber)
}

// Price returns amountIn/amountOut, or false when amountOut is zero.
func (e ExecutionEvent) Price() (decimal.Decimal, bool) {
	if e.AmountOut.IsZero() {
		return decimal.Zero, false
	}
	return e.AmountIn.Div(e.AmountOut), true
}

// ExecutionFromRecord decodes a PlanExecuted event record.
func ExecutionFromRecord(rec EventRecord) (ExecutionEvent, error) {
	ev := ExecutionEvent{
		BlockHeight:   rec.BlockHeight,
		TransactionID: rec.TransactionID,
	}
	var err error
	if ev.PlanID, err = uintField(rec.Fields, "planId"); err != nil {
		return ev, err
	}
	if ev.ExecutionNumber, err = uintField(rec.Fields, "executionNumber"); err != nil {
		return ev, err
	}
	if ev.AmountIn, err = decimalField(rec.Fields, "amountIn"); err != nil {
		return ev, err
	}
	if ev.AmountOut, err = decimalField(rec.Fields, "amountOut"); err != nil {
		return ev, err
	}
	owner, _ := rec.Fields["owner"].(string)
	if owner == "" {
		return ev, fmt.Errorf("event in tx %s has no owner", rec.TransactionID)
	}
	ev.Owner = strings.ToLower(owner)
	return ev, nil
}

func uintField(fields map[string]any, name string) (uint64, error) {
	switch v := fields[name].(type) {
	case uint64:
		return v, nil
	case int64:
		if v >= 0 {
			return uint64(v), nil
		}
	case int:
		if v >= 0 {
			return uint64(v), nil
		}
	case decimal.Decimal:
		return uint64(v.IntPart()), nil
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("field %s: unexpected value %v", name, fields[name])
}

func decimalField(fields map[string]any, name string) (decimal.Decimal, error) {
	switch v := fields[name].(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		return decimal.NewFromString(v)
	case uint64:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	}
	return decimal.Zero, fmt.Errorf("field %s: unexpected value %v", name, fields[name])
}
