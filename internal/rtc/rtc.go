// internal/rtc/rtc.go
package rtc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/tamzrod/sensorbox/internal/rtu"
)

// ErrBadPayload is returned when the clock answer is not 4 bytes.
var ErrBadPayload = errors.New("rtc: unexpected clock payload")

// Transactor runs one request to completion.
type Transactor interface {
	Do(req rtu.Request) (rtu.Result, error)
}

// Config locates the clock on the bus.
type Config struct {
	Slave         uint8
	Address       uint16
	ReadFunction  uint8 // read holding registers
	WriteFunction uint8 // write multiple registers
}

// Clock is the real-time clock of the auxiliary controller. It holds unix
// seconds in two consecutive holding registers, high word first.
type Clock struct {
	cfg Config
	tx  Transactor
}

func New(cfg Config, tx Transactor) *Clock {
	return &Clock{cfg: cfg, tx: tx}
}

// Read returns the controller time in UTC.
func (c *Clock) Read() (time.Time, error) {
	res, err := c.tx.Do(rtu.Request{
		Slave:    c.cfg.Slave,
		Function: c.cfg.ReadFunction,
		Address:  c.cfg.Address,
		Quantity: 2,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("rtc: read: %w", err)
	}

	p := res.Payload()
	if len(p) != 4 {
		return time.Time{}, fmt.Errorf("%w: %d bytes", ErrBadPayload, len(p))
	}
	return time.Unix(int64(binary.BigEndian.Uint32(p)), 0).UTC(), nil
}

// Write sets the controller time to t, truncated to seconds.
func (c *Clock) Write(t time.Time) error {
	secs := t.Unix()
	if secs < 0 || secs > 0xFFFFFFFF {
		return fmt.Errorf("rtc: time %s out of range", t.UTC().Format(time.RFC3339))
	}

	_, err := c.tx.Do(rtu.Request{
		Slave:    c.cfg.Slave,
		Function: c.cfg.WriteFunction,
		Address:  c.cfg.Address,
		Quantity: 4,
		Payload:  rtu.ValuePayload(uint64(secs), 4),
	})
	if err != nil {
		return fmt.Errorf("rtc: write: %w", err)
	}
	return nil
}
