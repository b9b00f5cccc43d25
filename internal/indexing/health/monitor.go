package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vietddude/planbridge/internal/infra/storage"
)

type HeightSource interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

type LinkCounter interface {
	Count() int
}

type QueueDepth interface {
	QueueDepth(ctx context.Context, network string) (int64, error)
}

// Thresholds decide when lag or a growing rescan queue degrades health.
type Thresholds struct {
	DegradedLag   uint64
	CriticalLag   uint64
	DegradedQueue int64
	CriticalQueue int64
}

var DefaultThresholds = Thresholds{
	DegradedLag:   120,
	CriticalLag:   1200,
	DegradedQueue: 1,
	CriticalQueue: 50,
}

// Monitor aggregates health status from the chain, cursor store, link store
// and rescan queue.
type Monitor struct {
	network    string
	heights    HeightSource
	cursors    storage.CursorRepository
	links      LinkCounter
	queue      QueueDepth
	thresholds Thresholds
	interval   time.Duration

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport *Report
}

// NewMonitor creates a new health monitor. cursors and queue may be nil.
func NewMonitor(network string, heights HeightSource, cursors storage.CursorRepository, links LinkCounter, queue QueueDepth) *Monitor {
	return &Monitor{
		network:    network,
		heights:    heights,
		cursors:    cursors,
		links:      links,
		queue:      queue,
		thresholds: DefaultThresholds,
		interval:   10 * time.Second,
	}
}

// CheckHealth returns the current report, reusing the previous one for up to
// ten seconds to avoid hammering the access node.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.interval {
		return *m.lastReport
	}

	report := Report{Network: m.network, Status: StatusHealthy}
	if m.links != nil {
		report.LinkedWallets = m.links.Count()
	}

	latest, err := m.heights.LatestHeight(ctx)
	if err != nil {
		report.Status = StatusDegraded
		report.ChainError = err.Error()
	} else {
		report.LatestHeight = latest
	}

	if m.cursors != nil {
		c, err := m.cursors.Get(ctx, m.network)
		switch {
		case err == nil:
			report.CursorHeight = c.Height
			if latest > c.Height {
				report.BlockLag = latest - c.Height
			}
		case !errors.Is(err, storage.ErrCursorNotFound):
			report.Status = StatusDegraded
		}
	}

	if m.queue != nil {
		if depth, err := m.queue.QueueDepth(ctx, m.network); err == nil {
			report.RescanQueueDepth = depth
		} else {
			report.Status = StatusDegraded
		}
	}

	t := m.thresholds
	switch {
	case report.BlockLag > t.CriticalLag || report.RescanQueueDepth >= t.CriticalQueue:
		report.Status = worse(report.Status, StatusCritical)
	case report.BlockLag > t.DegradedLag || report.RescanQueueDepth >= t.DegradedQueue:
		report.Status = worse(report.Status, StatusDegraded)
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}
