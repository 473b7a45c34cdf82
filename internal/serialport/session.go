// internal/serialport/session.go
package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
	"github.com/rs/zerolog"
)

// ErrNotOpened is returned when the port could not be opened within the
// configured attempt budget. Callers log it and skip the cycle.
var ErrNotOpened = errors.New("serialport: port not opened")

const (
	// DefaultReadTimeout bounds every read on the port.
	DefaultReadTimeout = 100 * time.Millisecond

	// maxFrameSize bounds ReadAvailable; no RTU frame is longer.
	maxFrameSize = 256

	// maxFlushBytes bounds how much stale input Flush discards.
	maxFlushBytes = 4 * maxFrameSize
)

// Config describes the physical link. Framing is fixed at 8-N-2.
type Config struct {
	Port        string
	BaudRate    int
	ReadTimeout time.Duration
	Attempts    int
}

// Opener opens a port. serial.Open in production.
type Opener func(*serial.Config) (serial.Port, error)

// Session owns an open port for a single caller.
// It implements rtu.Channel.
type Session struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	name   string
	closed bool
	chunk  []byte
}

// Open opens cfg.Port with serial.Open.
func Open(cfg Config, log zerolog.Logger) (*Session, error) {
	return OpenWith(serial.Open, cfg, log)
}

// OpenWith opens cfg.Port using open, retrying immediately on failure until
// cfg.Attempts is spent.
func OpenWith(open Opener, cfg Config, log zerolog.Logger) (*Session, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: no port configured", ErrNotOpened)
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	sc := &serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		StopBits: 2,
		Parity:   "N",
		Timeout:  cfg.ReadTimeout,
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		p, err := open(sc)
		if err == nil {
			log.Debug().Str("port", cfg.Port).Int("attempt", attempt).Msg("port opened")
			return &Session{
				port:  p,
				name:  cfg.Port,
				chunk: make([]byte, maxFrameSize),
			}, nil
		}
		lastErr = err
		log.Debug().Str("port", cfg.Port).Int("attempt", attempt).Err(err).Msg("port open failed")
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %w", ErrNotOpened, cfg.Port, cfg.Attempts, lastErr)
}

// Name returns the device path.
func (s *Session) Name() string { return s.name }

// Flush discards pending input until the line goes quiet.
// goburrow/serial has no input purge, so on a quiet line Flush returns only
// after one read timeout: every attempt pays that on top of the settle delays.
func (s *Session) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}

	discarded := 0
	for discarded < maxFlushBytes {
		n, err := s.port.Read(s.chunk)
		discarded += n
		if err != nil {
			if isQuiet(err) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}

// Write sends p in one call; the executor checks the count.
func (s *Session) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, io.ErrClosedPipe
	}
	return s.port.Write(p)
}

// ReadAvailable reads until the port's read timeout expires without new data.
// Its duration is bounded by the timeout, not by a byte count.
func (s *Session) ReadAvailable() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, io.ErrClosedPipe
	}

	var out []byte
	for len(out) < maxFrameSize {
		n, err := s.port.Read(s.chunk)
		out = append(out, s.chunk[:n]...)
		if err != nil {
			if isQuiet(err) {
				return out, nil
			}
			return out, err
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

// Close releases the port. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

// isQuiet reports whether err only means "nothing arrived before the timeout".
func isQuiet(err error) bool {
	return errors.Is(err, serial.ErrTimeout) || errors.Is(err, io.EOF)
}
