// internal/service/collector.go
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tamzrod/sensorbox/internal/config"
	"github.com/tamzrod/sensorbox/internal/logging"
	"github.com/tamzrod/sensorbox/internal/metrics"
	"github.com/tamzrod/sensorbox/internal/pipeline"
	"github.com/tamzrod/sensorbox/internal/poller"
	"github.com/tamzrod/sensorbox/internal/rtu"
	"github.com/tamzrod/sensorbox/internal/serialport"
	"github.com/tamzrod/sensorbox/internal/status"
	"github.com/tamzrod/sensorbox/internal/writer"
)

// Locker is the advisory lock primitive the collector needs.
type Locker interface {
	writer.Locker
	CleanStale() ([]string, error)
}

// LogSink is the file output of the service logger.
type LogSink interface {
	SetFile(path string) error
}

// Options wires a Collector.
type Options struct {
	Config  *config.Config
	Locks   Locker
	Open    PortOpener     // OpenSerial when nil
	Clock   pipeline.Clock // pipeline.SystemClock when nil
	Metrics *metrics.Metrics
	Log     zerolog.Logger

	// LogSink follows local_files.logs unless the config names a log file.
	LogSink LogSink
}

// Collector is the long-running data collection loop: one poll cycle per
// iteration under the port lock, accumulation, raw and calculated writes.
// Single goroutine; not safe for concurrent use.
type Collector struct {
	cfg     *config.Config
	watcher *config.Watcher
	locks   Locker
	open    PortOpener
	clock   pipeline.Clock
	metrics *metrics.Metrics
	log     zerolog.Logger
	sink    LogSink

	settings *config.Settings
	poller   *poller.Poller
	pipe     *pipeline.Pipeline
	raw      *writer.CSV
	calc     *writer.CSV

	status status.Snapshot
}

// New creates a collector. Nothing is touched until Start.
func New(opts Options) *Collector {
	if opts.Open == nil {
		opts.Open = OpenSerial
	}
	if opts.Clock == nil {
		opts.Clock = pipeline.SystemClock
	}
	return &Collector{
		cfg:     opts.Config,
		watcher: config.NewWatcher(opts.Config.Settings),
		locks:   opts.Locks,
		open:    opts.Open,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		log:     logging.Component(opts.Log, "collector"),
		sink:    opts.LogSink,
		status:  status.Snapshot{Health: status.HealthUnknown},
	}
}

// Start clears stale locks of this service and loads the settings.
// Unreadable or invalid settings are fatal here, and only here.
func (c *Collector) Start(ctx context.Context) error {
	removed, err := c.locks.CleanStale()
	if err != nil {
		c.log.Warn().Err(err).Msg("stale lock cleanup incomplete")
	}
	if len(removed) > 0 {
		c.log.Info().Strs("locks", removed).Msg("stale locks removed")
	}

	if err := c.reload(ctx); err != nil {
		return err
	}
	if c.settings == nil {
		return fmt.Errorf("collector: settings file %s not found", c.watcher.Path())
	}
	return nil
}

// Settings returns the settings in use.
func (c *Collector) Settings() *config.Settings { return c.settings }

// Status returns the health after the last cycle.
func (c *Collector) Status() status.Snapshot { return c.status }

// reload applies the settings file when it changed. Once settings are in
// place a broken file is logged and the previous settings are kept.
func (c *Collector) reload(ctx context.Context) error {
	s, err := c.watcher.LoadIfModified()
	if err != nil {
		if c.settings == nil {
			return fmt.Errorf("collector: settings: %w", err)
		}
		c.log.Error().Err(err).Msg("settings reload failed, keeping previous settings")
		return nil
	}
	if s == nil {
		return nil
	}

	p, err := poller.Build(s, c.clock.Now, logging.Component(c.log, "poller"))
	if err != nil {
		if c.settings == nil {
			return fmt.Errorf("collector: %w", err)
		}
		c.log.Error().Err(err).Msg("settings rejected, keeping previous settings")
		return nil
	}

	plan := writer.BuildPlan(s)
	raw, calc := writer.Build(plan, c.locks)
	pcfg := pipeline.Config{
		Window:      s.Box.Window(),
		RawAttempts: s.Box.RawWriteAttempts,
	}

	if c.pipe == nil {
		c.pipe = pipeline.New(pcfg, raw, c.clock, logging.Component(c.log, "pipeline"))
		c.pipe.SetObserver(c.metrics)
	} else {
		c.pipe.Reconfigure(pcfg, raw)
	}

	c.settings = s
	c.poller = p
	c.raw = raw
	c.calc = calc

	c.followLogFile(s)

	c.log.Info().
		Str("port", s.Box.Port).
		Int("registers", len(p.Points())).
		Dur("window", s.Box.Window()).
		Str("raw", plan.Raw.Path).
		Str("calc", plan.Calc.Path).
		Msg("settings loaded")

	if _, err := raw.EnsureHeader(ctx, s.Columns()); err != nil {
		c.log.Error().Err(err).Msg("raw data header write failed")
	}
	return nil
}

func (c *Collector) followLogFile(s *config.Settings) {
	if c.sink == nil || c.cfg.Log.File != "" {
		return
	}
	path := logging.SettingsFile(s.LocalFiles.Logs)
	if path == "" {
		return
	}
	if err := c.sink.SetFile(path); err != nil {
		c.log.Error().Str("file", path).Err(err).Msg("log file switch failed")
	}
}

// Cycle runs one iteration of the loop. It only returns an error when the
// context ends while waiting for a lock, or settings cannot be loaded at all.
func (c *Collector) Cycle(ctx context.Context) error {
	if err := c.reload(ctx); err != nil {
		return err
	}

	var (
		res     poller.PollResult
		polled  bool
		rawErr  error
		flushed bool
	)

	err := WithPort(ctx, c.locks, c.open, c.settings, c.metrics, logging.Component(c.log, "rtu"),
		func(tx *rtu.Executor) error {
			res = c.poller.PollOnce(tx)
			polled = true
			c.metrics.ObserveSample(res.Sample)

			flushed, rawErr = c.pipe.Add(ctx, res.Sample)
			return nil
		})

	var cycleErr error
	switch {
	case err == nil:
		cycleErr = res.Err
	case errors.Is(err, serialport.ErrNotOpened):
		c.log.Error().Err(err).Msg("port is not opened")
		cycleErr = err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		c.log.Error().Err(err).Msg("cycle failed")
		cycleErr = err
	}

	// Port released: hand completed windows to the calculated destination.
	for _, snap := range c.pipe.TakeCompleted() {
		if err := c.calc.Append(ctx, snap.Samples); err != nil {
			c.log.Error().
				Str("window", snap.ID.String()).
				Int("rows", snap.Rows()).
				Err(err).
				Msg("calc data write failed")
			continue
		}
		c.log.Info().
			Str("window", snap.ID.String()).
			Int("rows", snap.Rows()).
			Msg("calc data written")
	}

	registers := 0
	if polled {
		registers = len(res.Sample.Values)
	}
	c.status = status.Next(c.status, status.Cycle{
		At:        c.clock.Now(),
		Registers: registers,
		Missing:   res.Sample.Missing(),
		Err:       cycleErr,
	})
	c.metrics.ObserveStatus(c.status)

	ev := c.log.Info()
	if c.status.Health != status.HealthOK {
		ev = c.log.Warn()
	}
	ev.Str("health", status.HealthName(c.status.Health)).
		Int("registers", registers).
		Int("missing", c.status.Missing).
		Int("pending", c.pipe.Pending()).
		Bool("flushed", flushed).
		AnErr("raw_error", rawErr).
		Msg("cycle done")

	return nil
}
