// internal/service/runner.go
package service

import (
	"context"
	"time"
)

// Run drives Cycle until ctx ends. Cycles never overlap; a zero poll
// interval runs them back to back. The pending window is dropped on exit.
func (c *Collector) Run(ctx context.Context) error {
	interval := c.cfg.PollInterval()

	for {
		if err := c.Cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if interval <= 0 {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}
