// internal/service/port.go
package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tamzrod/sensorbox/internal/config"
	"github.com/tamzrod/sensorbox/internal/rtu"
	"github.com/tamzrod/sensorbox/internal/serialport"
	"github.com/tamzrod/sensorbox/internal/writer"
)

// LockPort is the lock guarding the shared serial line.
const LockPort = "port"

// Port is an open serial session.
type Port interface {
	rtu.Channel
	Close() error
}

// PortOpener opens the serial line described by cfg.
type PortOpener func(cfg serialport.Config, log zerolog.Logger) (Port, error)

// OpenSerial opens a real serial port.
func OpenSerial(cfg serialport.Config, log zerolog.Logger) (Port, error) {
	s, err := serialport.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// PortConfig derives the serial configuration from settings.
func PortConfig(s *config.Settings) serialport.Config {
	return serialport.Config{
		Port:        s.Box.Port,
		BaudRate:    s.Box.BaudRate,
		ReadTimeout: s.Box.ReadTimeout(),
		Attempts:    s.Box.Tries,
	}
}

// WithPort holds the port lock, opens the line and runs fn with an
// executor bound to it. The port is closed and the lock released on every
// exit path. An open failure is returned wrapping serialport.ErrNotOpened
// and fn is not called.
func WithPort(
	ctx context.Context,
	locks writer.Locker,
	open PortOpener,
	s *config.Settings,
	obs rtu.Observer,
	log zerolog.Logger,
	fn func(tx *rtu.Executor) error,
) error {
	profiles, err := s.Box.ProtocolProfiles()
	if err != nil {
		return err
	}

	return locks.With(ctx, LockPort, func() error {
		port, err := open(PortConfig(s), log)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := port.Close(); cerr != nil {
				log.Warn().Err(cerr).Msg("port close failed")
			}
		}()

		exec := rtu.NewExecutor(port, rtu.ExecutorConfig{
			Attempts: s.Box.Tries,
			Settle:   s.Box.Settle(),
			Profiles: profiles,
		}, log)
		if obs != nil {
			exec.SetObserver(obs)
		}
		if err := fn(exec); err != nil {
			return fmt.Errorf("%s: %w", s.Box.Port, err)
		}
		return nil
	})
}
