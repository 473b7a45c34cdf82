// internal/register/value.go
package register

import (
	"math/big"
	"strings"
)

// Sentinel is the literal written in place of a missing value.
const Sentinel = "-999.99"

// Kind tags a Value.
type Kind uint8

const (
	KindMissing Kind = iota
	KindHex
	KindInt
)

// Value is a decoded register value or the Missing marker.
// The zero Value is Missing.
type Value struct {
	kind Kind
	hex  string
	num  *big.Int
}

// Missing returns the "no valid answer" value.
func Missing() Value { return Value{} }

// Hex builds a hex value; s must already be "0x" + uppercase digits.
func Hex(s string) Value { return Value{kind: KindHex, hex: s} }

// Int builds an integer value.
func Int(n int64) Value { return Value{kind: KindInt, num: big.NewInt(n)} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Int64 returns the integer and whether it is one that fits int64.
func (v Value) Int64() (int64, bool) {
	if v.kind != KindInt || !v.num.IsInt64() {
		return 0, false
	}
	return v.num.Int64(), true
}

// Uint64 returns the integer and whether it is one that fits uint64.
func (v Value) Uint64() (uint64, bool) {
	if v.kind != KindInt || !v.num.IsUint64() {
		return 0, false
	}
	return v.num.Uint64(), true
}

// BigInt returns a copy of the integer, nil for other kinds.
func (v Value) BigInt() *big.Int {
	if v.kind != KindInt {
		return nil
	}
	return new(big.Int).Set(v.num)
}

// Equal reports whether both values carry the same data.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindHex:
		return v.hex == o.hex
	case KindInt:
		return v.num.Cmp(o.num) == 0
	}
	return true
}

// String renders the value for tabular output; Missing renders as Sentinel.
func (v Value) String() string {
	switch v.kind {
	case KindHex:
		return v.hex
	case KindInt:
		return v.num.String()
	}
	return Sentinel
}

// Decode turns a response payload into a Value according to d.
// Empty payloads are Missing. Byte width is the payload length.
// Pure: no hidden state.
func Decode(payload []byte, d Descriptor) Value {
	if len(payload) == 0 {
		return Missing()
	}

	switch d.Encoding {
	case EncodingHex:
		return Hex(hexString(payload))
	case EncodingDecimal:
		n := new(big.Int).SetBytes(payload)
		if d.Signedness == Signed && payload[0]&0x80 != 0 {
			n.Sub(n, new(big.Int).Lsh(big.NewInt(1), uint(8*len(payload))))
		}
		return Value{kind: KindInt, num: n}
	}
	return Missing()
}

func hexString(b []byte) string {
	const digits = "0123456789ABCDEF"

	var sb strings.Builder
	sb.Grow(2 + 2*len(b))
	sb.WriteString("0x")
	for _, c := range b {
		sb.WriteByte(digits[c>>4])
		sb.WriteByte(digits[c&0x0F])
	}
	return sb.String()
}
