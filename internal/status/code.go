// internal/status/code.go
package status

import (
	"errors"

	"github.com/goburrow/modbus"

	"github.com/tamzrod/sensorbox/internal/poller"
	"github.com/tamzrod/sensorbox/internal/rtu"
	"github.com/tamzrod/sensorbox/internal/serialport"
)

// Code extracts a best-effort uint16 code from an error.
// Device exceptions pass their exception code through.
// If the error does not expose anything specific, returns ErrorGeneric.
func Code(err error) uint16 {
	if err == nil {
		return ErrorNone
	}

	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return uint16(mbErr.ExceptionCode)
	}

	switch {
	case errors.Is(err, serialport.ErrNotOpened):
		return ErrorPortNotOpened
	case errors.Is(err, rtu.ErrCRC):
		return ErrorCRC
	case errors.Is(err, rtu.ErrShortFrame):
		return ErrorShortFrame
	case errors.Is(err, rtu.ErrNoResponse):
		return ErrorNoResponse
	case errors.Is(err, poller.ErrEmptyPayload):
		return ErrorEmptyPayload
	}

	return ErrorGeneric
}
