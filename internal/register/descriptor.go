// internal/register/descriptor.go
package register

import "fmt"

// Encoding selects how a payload is rendered.
type Encoding string

const (
	EncodingHex     Encoding = "hex"
	EncodingDecimal Encoding = "decimal"
)

// Signedness applies to decimal encoding only.
type Signedness string

const (
	Signed   Signedness = "signed"
	Unsigned Signedness = "unsigned"
)

// Class is the register space a descriptor lives in.
type Class string

const (
	ClassHolding Class = "holding"
	ClassInput   Class = "input"
	ClassCustom  Class = "custom"
)

// Descriptor is one entry of the static register map.
// Immutable after load.
type Descriptor struct {
	Name        string
	Address     uint16
	Length      int // bytes
	Class       Class
	Encoding    Encoding
	Signedness  Signedness
	Measurement string // column title; Name when empty
}

// Column returns the header title of the descriptor.
func (d Descriptor) Column() string {
	if d.Measurement != "" {
		return d.Measurement
	}
	return d.Name
}

// Validate checks the descriptor is decodable.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("register: name required")
	}
	if d.Length <= 0 {
		return fmt.Errorf("register %q: data length must be > 0", d.Name)
	}
	switch d.Encoding {
	case EncodingHex:
	case EncodingDecimal:
		if d.Signedness != Signed && d.Signedness != Unsigned {
			return fmt.Errorf("register %q: data_type must be %q or %q", d.Name, Signed, Unsigned)
		}
	default:
		return fmt.Errorf("register %q: keep_in must be %q or %q", d.Name, EncodingHex, EncodingDecimal)
	}
	switch d.Class {
	case ClassHolding, ClassInput, ClassCustom:
	default:
		return fmt.Errorf("register %q: unknown register class %q", d.Name, d.Class)
	}
	return nil
}
