// internal/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tamzrod/sensorbox/internal/poller"
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock is the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Destination appends rows to an external store.
type Destination interface {
	Append(ctx context.Context, rows []poller.Sample) error
}

// Observer receives the outcome of every raw flush.
type Observer interface {
	ObserveFlush(rows int, err error)
}

// Config is the pipeline policy.
type Config struct {
	Window time.Duration

	// RawAttempts bounds the raw write; the window is cleared afterwards
	// whatever the outcome.
	RawAttempts int
}

// Pipeline turns a stream of samples into flushed windows.
//
// On trigger the window is copied, the copy is queued as completed, the raw
// destination is written and the window is cleared. Completed snapshots are
// collected by the caller with TakeCompleted once it released the port.
type Pipeline struct {
	win      *Window
	raw      Destination
	clock    Clock
	attempts int

	completed []Snapshot

	log zerolog.Logger
	obs Observer
}

// New creates a pipeline writing raw rows to raw.
func New(cfg Config, raw Destination, clock Clock, log zerolog.Logger) *Pipeline {
	if cfg.RawAttempts <= 0 {
		cfg.RawAttempts = 1
	}
	if clock == nil {
		clock = SystemClock
	}
	return &Pipeline{
		win:      NewWindow(cfg.Window),
		raw:      raw,
		clock:    clock,
		attempts: cfg.RawAttempts,
		log:      log,
	}
}

// SetObserver installs o. A nil observer disables reporting.
func (p *Pipeline) SetObserver(o Observer) { p.obs = o }

// Reconfigure applies reloaded settings. Pending samples are kept.
func (p *Pipeline) Reconfigure(cfg Config, raw Destination) {
	p.win.SetDuration(cfg.Window)
	if cfg.RawAttempts > 0 {
		p.attempts = cfg.RawAttempts
	}
	if raw != nil {
		p.raw = raw
	}
}

// Pending returns the number of samples in the open window.
func (p *Pipeline) Pending() int { return p.win.Len() }

// Add appends s and flushes the window when its trigger fires.
// It reports whether a flush happened; the error is the raw write failure,
// if any. The window is cleared after a flush regardless of that error.
func (p *Pipeline) Add(ctx context.Context, s poller.Sample) (bool, error) {
	p.win.Append(s)

	now := p.clock.Now()
	if !p.win.Due(now) {
		return false, nil
	}

	snap := p.win.Snapshot()
	p.completed = append(p.completed, snap)

	err := p.writeRaw(ctx, snap)
	if err != nil {
		p.log.Error().
			Str("window", snap.ID.String()).
			Int("rows_lost", snap.Rows()).
			Err(err).
			Msg("raw write failed, clearing window")
	} else {
		p.log.Info().
			Str("window", snap.ID.String()).
			Int("rows", snap.Rows()).
			Time("start", snap.Start).
			Msg("window flushed")
	}

	p.win.Clear()

	if p.obs != nil {
		p.obs.ObserveFlush(snap.Rows(), err)
	}
	return true, err
}

func (p *Pipeline) writeRaw(ctx context.Context, snap Snapshot) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.raw.Append(ctx, snap.Samples); err == nil {
			return nil
		}
		p.log.Warn().
			Str("window", snap.ID.String()).
			Int("attempt", attempt).
			Err(err).
			Msg("raw write attempt failed")
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("pipeline: raw write: %w", err)
}

// TakeCompleted returns the snapshots flushed since the last call, oldest
// first, and resets the accumulation-complete state.
func (p *Pipeline) TakeCompleted() []Snapshot {
	out := p.completed
	p.completed = nil
	return out
}
