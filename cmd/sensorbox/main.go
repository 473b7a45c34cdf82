// cmd/sensorbox/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tamzrod/sensorbox/internal/config"
	"github.com/tamzrod/sensorbox/internal/lock"
	"github.com/tamzrod/sensorbox/internal/logging"
	"github.com/tamzrod/sensorbox/internal/metrics"
	"github.com/tamzrod/sensorbox/internal/poller"
	"github.com/tamzrod/sensorbox/internal/rtc"
	"github.com/tamzrod/sensorbox/internal/rtu"
	"github.com/tamzrod/sensorbox/internal/sensorinfo"
	"github.com/tamzrod/sensorbox/internal/serialport"
	"github.com/tamzrod/sensorbox/internal/service"
)

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "sensorbox",
		Short:        "Sensor box data collection over Modbus RTU",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "service configuration file (YAML)")

	root.AddCommand(
		runCmd(),
		readCmd(),
		infoCmd(),
		rtcCmd(),
		locksCmd(),
	)
	return root
}

// --------------------
// Environment
// --------------------

type env struct {
	cfg      *config.Config
	settings *config.Settings
	log      *logging.Logger
	locks    *lock.Locker
}

func (e *env) Close() { _ = e.log.Close() }

// setup loads the service config and, when withSettings is set, the shared
// settings file. The log file follows the settings unless the config names
// one explicitly.
func setup(withSettings bool) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	config.Normalize(cfg)

	e := &env{cfg: cfg}

	if withSettings {
		s, err := config.LoadSettings(cfg.Settings)
		if err != nil {
			return nil, fmt.Errorf("settings load failed: %w", err)
		}
		if err := config.ValidateSettings(s); err != nil {
			return nil, fmt.Errorf("settings validation failed: %w", err)
		}
		config.NormalizeSettings(s)
		e.settings = s
	}

	file := cfg.Log.File
	if file == "" && e.settings != nil {
		file = logging.SettingsFile(e.settings.LocalFiles.Logs)
	}
	log, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		File:    file,
		Console: cfg.Log.Console,
		Service: cfg.Name,
	})
	if err != nil {
		return nil, err
	}
	e.log = log
	e.locks = lock.New(cfg.LockDir, cfg.Name, logging.Component(log.Logger, "lock"))
	return e, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// --------------------
// run
// --------------------

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the data collection loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Settings are loaded (and reloaded) by the collector itself.
			e, err := setup(false)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			m := metrics.New()
			c := service.New(service.Options{
				Config:  e.cfg,
				Locks:   e.locks,
				Metrics: m,
				Log:     e.log.Logger,
				LogSink: e.log,
			})
			if err := c.Start(ctx); err != nil {
				e.log.Error().Err(err).Msg("startup failed")
				return err
			}

			if addr := e.cfg.Metrics.Listen; addr != "" {
				go func() {
					if err := m.Serve(ctx, addr, e.log.Logger); err != nil {
						e.log.Error().Err(err).Msg("metrics listener stopped")
					}
				}()
			}

			e.log.Info().
				Str("settings", e.cfg.Settings).
				Str("locks", e.cfg.LockDir).
				Msg("data collection started")

			err = c.Run(ctx)
			e.log.Info().Msg("data collection stopped")
			return err
		},
	}
}

// --------------------
// read
// --------------------

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <register>",
		Short: "Read one configured register and print its value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.Close()

			pt, ok := poller.Lookup(e.settings, args[0])
			if !ok {
				return fmt.Errorf("register %q is not configured", args[0])
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			return withPort(ctx, e, func(tx *rtu.Executor) error {
				v, err := poller.Read(tx, pt)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v.String())
				return nil
			})
		},
	}
}

// --------------------
// info
// --------------------

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Collect sensor information into local_files.sensor_data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			host := sensorinfo.DetectHost()
			var report sensorinfo.Report

			err = withPort(ctx, e, func(tx *rtu.Executor) error {
				report = sensorinfo.Collect(e.settings, tx, time.Now(), host)
				return nil
			})
			switch {
			case errors.Is(err, serialport.ErrNotOpened):
				e.log.Error().Err(err).Msg("port is not opened, statuses unanswered")
				report = sensorinfo.Collect(e.settings, nil, time.Now(), host)
			case err != nil:
				return err
			}

			if path := e.settings.LocalFiles.SensorData; path != "" {
				if err := report.WriteFile(path); err != nil {
					return err
				}
				e.log.Info().Str("file", path).Int("statuses", len(report.Entries)).Msg("sensor information written")
			}
			fmt.Fprint(cmd.OutOrStdout(), report.String())
			return nil
		},
	}
}

// --------------------
// rtc
// --------------------

func rtcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rtc",
		Short: "Read or set the auxiliary controller clock",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Print the controller time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClock(cmd, func(c *rtc.Clock) error {
				t, err := c.Read()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.Format(time.RFC3339))
				return nil
			})
		},
	}

	var at string
	set := &cobra.Command{
		Use:   "set",
		Short: "Set the controller time (default: now)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--time: %w", err)
				}
				t = parsed
			}
			return withClock(cmd, func(c *rtc.Clock) error {
				return c.Write(t)
			})
		},
	}
	set.Flags().StringVar(&at, "time", "", "RFC3339 time to set")

	cmd.AddCommand(get, set)
	return cmd
}

func withClock(cmd *cobra.Command, fn func(c *rtc.Clock) error) error {
	e, err := setup(true)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	b := e.settings.Box
	clockCfg := rtc.Config{
		Slave:         uint8(b.ArduinoAddress),
		Address:       uint16(b.RTCAddress),
		ReadFunction:  uint8(b.Functions.ReadHolding),
		WriteFunction: uint8(b.Functions.WriteMultiple),
	}
	return withPort(ctx, e, func(tx *rtu.Executor) error {
		return fn(rtc.New(clockCfg, tx))
	})
}

// --------------------
// locks
// --------------------

func locksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect advisory lock markers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clean",
		Short: "Remove markers left behind by this service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(false)
			if err != nil {
				return err
			}
			defer e.Close()

			removed, err := e.locks.CleanStale()
			for _, name := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return err
		},
	})
	return cmd
}

func withPort(ctx context.Context, e *env, fn func(tx *rtu.Executor) error) error {
	return service.WithPort(ctx, e.locks, service.OpenSerial, e.settings, nil,
		logging.Component(e.log.Logger, "rtu"), fn)
}
