package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChainCallsTotal tracks access node calls per method
	ChainCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planbridge_chain_calls_total",
			Help: "Total number of access node calls",
		},
		[]string{"network", "method"},
	)

	// ChainErrorsTotal tracks access node errors per method and class
	ChainErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planbridge_chain_errors_total",
			Help: "Total number of access node errors",
		},
		[]string{"network", "method", "error_type"},
	)

	// ChainLatency tracks access node call latency
	ChainLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "planbridge_chain_latency_seconds",
			Help:    "Access node call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "method"},
	)

	// ChainLatestHeight tracks the latest sealed height seen
	ChainLatestHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "planbridge_chain_latest_height",
			Help: "Latest sealed block height reported by the access node",
		},
		[]string{"network"},
	)

	// WatcherCursorHeight tracks the last height fully scanned by the watcher
	WatcherCursorHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "planbridge_watcher_cursor_height",
			Help: "Last block height scanned by the execution watcher",
		},
		[]string{"network"},
	)

	ScanWindowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planbridge_scan_windows_total",
			Help: "Event scan windows by outcome",
		},
		[]string{"outcome"},
	)

	ScanEventsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planbridge_scan_events_total",
			Help: "Total number of events collected by the scanner",
		},
	)

	RescanQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "planbridge_rescan_queue_depth",
			Help: "Number of failed windows waiting to be rescanned",
		},
		[]string{"network"},
	)

	// NotificationsTotal tracks dispatcher outcomes: sent, unlinked, duplicate, failed
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planbridge_notifications_total",
			Help: "Execution notifications by outcome",
		},
		[]string{"channel", "outcome"},
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planbridge_commands_total",
			Help: "Bot commands by outcome",
		},
		[]string{"command", "outcome"},
	)

	LinkedWallets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "planbridge_linked_wallets",
			Help: "Number of wallet links currently held",
		},
	)

	// DBConnectionPoolUsage tracks postgres pool usage
	DBConnectionPoolUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "planbridge_db_connection_pool",
			Help: "Database connection pool usage",
		},
		[]string{"state"},
	)
)
