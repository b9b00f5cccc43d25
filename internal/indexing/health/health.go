// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the bridge health at the last check.
type Report struct {
	Status           SystemStatus `json:"status"`
	Network          string       `json:"network"`
	LatestHeight     uint64       `json:"latest_height"`
	CursorHeight     uint64       `json:"cursor_height"`
	BlockLag         uint64       `json:"block_lag"`
	LinkedWallets    int          `json:"linked_wallets"`
	RescanQueueDepth int64        `json:"rescan_queue_depth"`
	ChainError       string       `json:"chain_error,omitempty"`
}

// worse returns the more severe of a and b.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
