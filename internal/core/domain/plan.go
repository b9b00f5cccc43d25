package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PlanSnapshot is the on-chain state of a recurring execution plan.
type PlanSnapshot struct {
	PlanID             uint64          `json:"plan_id"`
	Owner              string          `json:"owner"`
	AmountPerExecution decimal.Decimal `json:"amount_per_execution"`
	TimeCycle          time.Duration   `json:"time_cycle"`
	TotalExecutions    uint64          `json:"total_executions"`
	MaxExecutions      uint64          `json:"max_executions"` // 0 = unbounded
	LastExecutionTime  time.Time       `json:"last_execution_time"`
	IsActive           bool            `json:"is_active"`
	IsPaused           bool            `json:"is_paused"`
	Balance            decimal.Decimal `json:"balance"`
}
