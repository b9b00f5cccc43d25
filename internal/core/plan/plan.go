// Package plan projects readiness and display state from plan snapshots.
package plan

import (
	"fmt"
	"math"
	"time"

	"github.com/vietddude/planbridge/internal/core/domain"
)

// Status is the derived scheduling state of a plan at a given instant.
type Status struct {
	ReadyToExecute    bool      `json:"ready_to_execute"`
	SecondsUntilNext  int64     `json:"seconds_until_next"` // negative when overdue
	NextExecutionTime time.Time `json:"next_execution_time"`
}

// Project computes the plan status at now. A partial second left before the
// next execution counts as a whole one, so a waiting plan always reports at
// least one second.
func Project(s domain.PlanSnapshot, now time.Time) Status {
	next := s.LastExecutionTime.Add(s.TimeCycle)
	secs := int64(math.Ceil(next.Sub(now).Seconds()))
	return Status{
		ReadyToExecute:    s.IsActive && !s.IsPaused && secs <= 0,
		SecondsUntilNext:  secs,
		NextExecutionTime: next,
	}
}

// Label is the badge shown for a plan.
type Label string

const (
	LabelActive  Label = "Active"
	LabelPaused  Label = "Paused"
	LabelStopped Label = "Stopped"
)

func LabelOf(s domain.PlanSnapshot) Label {
	switch {
	case !s.IsActive:
		return LabelStopped
	case s.IsPaused:
		return LabelPaused
	default:
		return LabelActive
	}
}

// Schedulable reports whether the plan may be handed to a scheduler.
func Schedulable(s domain.PlanSnapshot) bool {
	return s.IsActive && !s.IsPaused
}

// Exhausted reports whether a bounded plan has used all its executions.
func Exhausted(s domain.PlanSnapshot) bool {
	return s.MaxExecutions > 0 && s.TotalExecutions >= s.MaxExecutions
}

// ExecutionsLabel renders "n/max", or "n/∞" for unbounded plans.
func ExecutionsLabel(s domain.PlanSnapshot) string {
	if s.MaxExecutions == 0 {
		return fmt.Sprintf("%d/∞", s.TotalExecutions)
	}
	return fmt.Sprintf("%d/%d", s.TotalExecutions, s.MaxExecutions)
}

// FormatDuration renders a wait in its largest whole unit: 45s, 12m, 3h, 2d.
// Negative input renders as 0s.
func FormatDuration(seconds int64) string {
	switch {
	case seconds <= 0:
		return "0s"
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%dh", seconds/3600)
	default:
		return fmt.Sprintf("%dd", seconds/86400)
	}
}

// FormatCycle names the common cycles and falls back to hours or seconds.
func FormatCycle(cycle time.Duration) string {
	switch cycle {
	case time.Minute:
		return "1 minute"
	case time.Hour:
		return "1 hour"
	case 24 * time.Hour:
		return "1 day"
	case 7 * 24 * time.Hour:
		return "1 week"
	}
	if cycle >= time.Hour && cycle%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int64(cycle/time.Hour))
	}
	return fmt.Sprintf("%ds", int64(cycle/time.Second))
}
