// Package cleanup reaps wizard sessions that were opened and then abandoned
// without ever being submitted or dismissed.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// SessionReaper removes idle sessions and reports how many were reaped
type SessionReaper interface {
	ReapIdle() int
}

// Cleaner handles periodic cleanup of abandoned wizard sessions
type Cleaner struct {
	reaper   SessionReaper
	interval time.Duration
}

// NewCleaner creates a new cleanup worker
func NewCleaner(reaper SessionReaper, interval time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &Cleaner{
		reaper:   reaper,
		interval: interval,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

// run is the main loop for the cleanup worker
func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.cleanup()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup runs one reap cycle
func (c *Cleaner) cleanup() {
	slog.Debug("running cleanup cycle")

	reaped := c.reaper.ReapIdle()
	if reaped == 0 {
		slog.Debug("no abandoned wizard sessions found")
		return
	}

	slog.Info("reaped abandoned wizard sessions", "count", reaped)
}
