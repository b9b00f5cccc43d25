package throttle

import "time"

// Config holds configuration for adaptive poll intervals.
type Config struct {
	// Enabled controls whether the interval adapts to lag
	Enabled bool

	// Interval bounds
	MinInterval time.Duration // Fastest polling rate (default: 1s)
	MaxInterval time.Duration // Slowest polling rate (default: 60s)

	// Lag thresholds in blocks
	LagNormalThreshold uint64 // Below this = base interval (default: 10)
	LagBurstThreshold  uint64 // Above this = max speed (default: 250)
}

// DefaultConfig returns sensible defaults for adaptive throttling.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		MinInterval:        time.Second,
		MaxInterval:        60 * time.Second,
		LagNormalThreshold: 10,
		LagBurstThreshold:  250,
	}
}
