// internal/rtu/crc.go
package rtu

import "github.com/sigurn/crc16"

// crcTable is the CRC-16/MODBUS lookup table: init 0xFFFF, reflected
// polynomial 0xA001, no final xor.
var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// Checksum returns the Modbus CRC-16 register value for data.
// Pure function of the input bytes.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// CRC16 returns the checksum of data in wire order (low byte first).
func CRC16(data []byte) []byte {
	crc := Checksum(data)
	return []byte{byte(crc), byte(crc >> 8)}
}

// VerifyCRC recomputes the checksum over all but the last two bytes of frame
// and compares it with the trailing little-endian CRC.
func VerifyCRC(frame []byte) bool {
	if len(frame) < 2 {
		return false
	}
	n := len(frame) - 2
	received := uint16(frame[n]) | uint16(frame[n+1])<<8
	return Checksum(frame[:n]) == received
}
