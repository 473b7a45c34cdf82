// internal/rtu/frame.go
package rtu

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/goburrow/modbus"
)

// Function codes used by the appliance.
// The RAM / EPROM reads are vendor extensions of the sensor.
const (
	FuncReadHoldingRegisters   uint8 = modbus.FuncCodeReadHoldingRegisters
	FuncReadInputRegisters     uint8 = modbus.FuncCodeReadInputRegisters
	FuncWriteSingleRegister    uint8 = modbus.FuncCodeWriteSingleRegister
	FuncWriteMultipleRegisters uint8 = modbus.FuncCodeWriteMultipleRegisters
	FuncReadRAM                uint8 = 0x44
	FuncReadEPROM              uint8 = 0x46
)

// exceptionBit is set in the function code of an exception response.
const exceptionBit = 0x80

// minResponseSize = address + function + 2 CRC bytes + at least one byte.
const minResponseSize = 5

var (
	ErrNoResponse = errors.New("rtu: empty response")
	ErrShortFrame = errors.New("rtu: response shorter than 5 bytes")
	ErrCRC        = errors.New("rtu: crc mismatch")
)

// Request is one logical register operation.
// Payload nil means read; non-nil means write of exactly Quantity bytes.
type Request struct {
	Slave    uint8
	Function uint8
	Address  uint16
	Quantity int
	Payload  []byte
}

// IsWrite reports whether the request carries a write payload.
func (r Request) IsWrite() bool { return r.Payload != nil }

func (r Request) String() string {
	op := "read"
	if r.IsWrite() {
		op = "write"
	}
	return fmt.Sprintf("%s slave=0x%02X fc=0x%02X addr=0x%04X qty=%d", op, r.Slave, r.Function, r.Address, r.Quantity)
}

// EncodeRequest builds the request frame for req.
//
// Layout:
//
//	[slave][fc][addr:2][qty:1|2 (omitted for fc 0x06 writes)][payload?][crc:2]
//
// The quantity field is 2 bytes only for register reads (fc 3/4) addressed
// to a slave whose profile asks for it.
func EncodeRequest(req Request, prof Profile) ([]byte, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("rtu: quantity must be > 0, got %d", req.Quantity)
	}

	frame := make([]byte, 0, 8+len(req.Payload))
	frame = append(frame, req.Slave, req.Function)
	frame = binary.BigEndian.AppendUint16(frame, req.Address)

	switch {
	case req.IsWrite():
		if len(req.Payload) != req.Quantity {
			return nil, fmt.Errorf("rtu: payload is %d bytes, quantity is %d", len(req.Payload), req.Quantity)
		}
		if req.Function != FuncWriteSingleRegister {
			if req.Quantity > 0xFF {
				return nil, fmt.Errorf("rtu: quantity %d does not fit a 1-byte field", req.Quantity)
			}
			frame = append(frame, byte(req.Quantity))
		}
		frame = append(frame, req.Payload...)

	case isRegisterRead(req.Function) && prof.WideReadQuantity:
		if req.Quantity > 0xFFFF {
			return nil, fmt.Errorf("rtu: quantity %d does not fit a 2-byte field", req.Quantity)
		}
		frame = binary.BigEndian.AppendUint16(frame, uint16(req.Quantity))

	default:
		if req.Quantity > 0xFF {
			return nil, fmt.Errorf("rtu: quantity %d does not fit a 1-byte field", req.Quantity)
		}
		frame = append(frame, byte(req.Quantity))
	}

	return append(frame, CRC16(frame)...), nil
}

// DecodeResponse strips address, function and byte-count echo (3 bytes) and
// the trailing CRC. An empty result means no usable data.
func DecodeResponse(raw []byte) []byte {
	if len(raw) <= 5 {
		return nil
	}
	out := make([]byte, len(raw)-5)
	copy(out, raw[3:len(raw)-2])
	return out
}

// IsException reports whether raw answers function with an exception.
func IsException(raw []byte, function uint8) bool {
	return len(raw) >= 2 && raw[1] == function|exceptionBit
}

// CheckResponse returns nil iff raw is an accepted answer to function:
// non-empty, at least 5 bytes, CRC valid and not an exception.
// Exceptions are reported as *modbus.ModbusError.
func CheckResponse(raw []byte, function uint8) error {
	switch {
	case len(raw) == 0:
		return ErrNoResponse
	case len(raw) < minResponseSize:
		return fmt.Errorf("%w: got %d", ErrShortFrame, len(raw))
	case !VerifyCRC(raw):
		return fmt.Errorf("%w: % X", ErrCRC, raw)
	case IsException(raw, function):
		return &modbus.ModbusError{FunctionCode: raw[1], ExceptionCode: raw[2]}
	}
	return nil
}

func isRegisterRead(fc uint8) bool {
	return fc == FuncReadHoldingRegisters || fc == FuncReadInputRegisters
}

// ValuePayload encodes v big-endian into exactly width bytes.
// Higher-order bytes that do not fit are dropped.
func ValuePayload(v uint64, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0 && v != 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}
