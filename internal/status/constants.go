// internal/status/constants.go
package status

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK means every register answered in the last cycle.
const HealthOK uint16 = 1

// HealthError means the port could not be opened or no register answered.
const HealthError uint16 = 2

// HealthDegraded means some, but not all, registers answered.
const HealthDegraded uint16 = 3

// ---- ERROR CODES ----

// Codes 0x01..0xFF are Modbus exception codes passed through verbatim.

// ErrorNone means no error.
const ErrorNone uint16 = 0

// ErrorPortNotOpened means the serial port could not be opened.
const ErrorPortNotOpened uint16 = 0x0100

// ErrorNoResponse means the device stayed silent for every attempt.
const ErrorNoResponse uint16 = 0x0101

// ErrorCRC means the last answer failed the CRC check.
const ErrorCRC uint16 = 0x0102

// ErrorShortFrame means the last answer was shorter than a frame.
const ErrorShortFrame uint16 = 0x0103

// ErrorEmptyPayload means the device answered without data.
const ErrorEmptyPayload uint16 = 0x0104

// ErrorGeneric is used when the error exposes nothing more specific.
const ErrorGeneric uint16 = 0xFFFF

// MaxSecondsInError saturates SecondsInError.
const MaxSecondsInError = 65535

// HealthName returns a label for a health code.
func HealthName(h uint16) string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthError:
		return "error"
	case HealthDegraded:
		return "degraded"
	}
	return "unknown"
}
