// Package throttle adapts how often the chain is polled and caches the chain
// head between polls.
package throttle

import (
	"sync"
	"time"
)

// Controller computes the watcher poll interval from the block lag.
type Controller struct {
	base   time.Duration
	config Config

	mu      sync.Mutex
	current time.Duration
}

func NewController(base time.Duration, config Config) *Controller {
	return &Controller{
		base:    base,
		config:  config,
		current: base,
	}
}

// ComputeInterval calculates the next poll interval.
//
//   - lag < normal: base interval (at or near the head)
//   - lag < burst: base / 2, catching up
//   - lag ≥ burst: min interval
func (c *Controller) ComputeInterval(lag uint64) time.Duration {
	if !c.config.Enabled {
		return c.base
	}

	var interval time.Duration
	switch {
	case lag < c.config.LagNormalThreshold:
		interval = c.base
	case lag < c.config.LagBurstThreshold:
		interval = c.base / 2
	default:
		interval = c.config.MinInterval
	}

	interval = max(interval, c.config.MinInterval)
	if c.config.MaxInterval > 0 {
		interval = min(interval, c.config.MaxInterval)
	}

	c.mu.Lock()
	c.current = interval
	c.mu.Unlock()
	return interval
}

// Current returns the last computed interval.
func (c *Controller) Current() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
