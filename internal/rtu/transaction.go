// internal/rtu/transaction.go
package rtu

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ErrExhausted is returned when every attempt of a transaction failed.
// It wraps the last attempt's failure.
var ErrExhausted = errors.New("rtu: attempt budget exhausted")

// DefaultSettle is the pause after flushing and after writing a request.
const DefaultSettle = 100 * time.Millisecond

// Channel is the half-duplex byte link the executor drives.
type Channel interface {
	// Flush discards any stale buffered input.
	Flush() error
	Write(p []byte) (int, error)
	// ReadAvailable returns whatever arrives before the link's read timeout.
	ReadAvailable() ([]byte, error)
}

// Observer receives the outcome of every transaction.
type Observer interface {
	ObserveTransaction(function uint8, attempts int, err error)
}

// ExecutorConfig is the retry / timing policy of an Executor.
type ExecutorConfig struct {
	Attempts int
	Settle   time.Duration
	Profiles Profiles
}

// Result is an accepted response.
type Result struct {
	Raw      []byte
	Attempts int
}

// Payload returns the response data without header and CRC.
func (r Result) Payload() []byte { return DecodeResponse(r.Raw) }

// Executor drives one logical register operation to completion:
// send, receive, validate, retry or give up.
type Executor struct {
	ch       Channel
	attempts int
	settle   time.Duration
	profiles Profiles
	log      zerolog.Logger
	obs      Observer
	sleep    func(time.Duration)
}

// NewExecutor creates an executor bound to ch.
func NewExecutor(ch Channel, cfg ExecutorConfig, log zerolog.Logger) *Executor {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	return &Executor{
		ch:       ch,
		attempts: cfg.Attempts,
		settle:   cfg.Settle,
		profiles: cfg.Profiles,
		log:      log,
		sleep:    time.Sleep,
	}
}

// SetObserver installs o. A nil observer disables reporting.
func (e *Executor) SetObserver(o Observer) { e.obs = o }

// Do runs req until a response is accepted or the attempt budget is spent.
// Failures are expected events: the error is returned, never raised.
func (e *Executor) Do(req Request) (Result, error) {
	frame, err := EncodeRequest(req, e.profiles.For(req.Slave))
	if err != nil {
		e.observe(req.Function, 0, err)
		return Result{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		raw, err := e.attempt(frame, req.Function)
		if err == nil {
			e.log.Debug().
				Str("request", req.String()).
				Int("attempt", attempt).
				Hex("response", raw).
				Msg("transaction accepted")
			e.observe(req.Function, attempt, nil)
			return Result{Raw: raw, Attempts: attempt}, nil
		}

		lastErr = err
		e.log.Debug().
			Str("request", req.String()).
			Int("attempt", attempt).
			Err(err).
			Msg("transaction attempt failed")
	}

	err = fmt.Errorf("%w after %d attempts (%s): %w", ErrExhausted, e.attempts, req, lastErr)
	e.observe(req.Function, e.attempts, err)
	return Result{Attempts: e.attempts}, err
}

func (e *Executor) attempt(frame []byte, function uint8) ([]byte, error) {
	if err := e.ch.Flush(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	e.sleep(e.settle)

	n, err := e.ch.Write(frame)
	if err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}
	if n != len(frame) {
		return nil, fmt.Errorf("write: %d of %d bytes", n, len(frame))
	}
	e.sleep(e.settle)

	raw, err := e.ch.ReadAvailable()
	if err != nil && len(raw) == 0 {
		return nil, fmt.Errorf("read: %w", err)
	}
	if err := CheckResponse(raw, function); err != nil {
		return nil, err
	}
	return raw, nil
}

func (e *Executor) observe(function uint8, attempts int, err error) {
	if e.obs != nil {
		e.obs.ObserveTransaction(function, attempts, err)
	}
}
