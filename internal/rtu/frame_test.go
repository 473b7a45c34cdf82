// internal/rtu/frame_test.go
package rtu

import (
	"errors"
	"testing"

	"github.com/goburrow/modbus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withCRC appends the wire CRC to body.
func withCRC(body ...byte) []byte {
	return append(body, CRC16(body)...)
}

func TestEncodeRequest_Layouts(t *testing.T) {
	profiles := Profiles{105: {WideReadQuantity: true}}

	cases := []struct {
		name string
		req  Request
		want []byte
	}{
		{
			name: "write single register omits length field",
			req:  Request{Slave: 0x01, Function: 0x06, Address: 0x0010, Quantity: 2, Payload: []byte{0x12, 0x34}},
			want: []byte{0x01, 0x06, 0x00, 0x10, 0x12, 0x34, 0x85, 0x78},
		},
		{
			name: "write multiple uses 1-byte quantity then payload",
			req:  Request{Slave: 0x01, Function: 0x10, Address: 0x0010, Quantity: 4, Payload: []byte{0x65, 0x00, 0x00, 0x00}},
			want: []byte{0x01, 0x10, 0x00, 0x10, 0x04, 0x65, 0x00, 0x00, 0x00, 0xEB, 0xF0},
		},
		{
			name: "read holding on wide profile uses 2-byte quantity",
			req:  Request{Slave: 105, Function: 0x03, Address: 0x0010, Quantity: 2},
			want: []byte{0x69, 0x03, 0x00, 0x10, 0x00, 0x02, 0xCD, 0x26},
		},
		{
			name: "custom RAM read uses 1-byte quantity",
			req:  Request{Slave: 0x68, Function: 0x44, Address: 0x0008, Quantity: 2},
			want: []byte{0x68, 0x44, 0x00, 0x08, 0x02, 0xD7, 0x38},
		},
		{
			name: "read holding on narrow profile uses 1-byte quantity",
			req:  Request{Slave: 0x01, Function: 0x03, Address: 0x0000, Quantity: 2},
			want: withCRC(0x01, 0x03, 0x00, 0x00, 0x02),
		},
		{
			name: "custom read on wide slave stays 1-byte",
			req:  Request{Slave: 105, Function: 0x44, Address: 0x0008, Quantity: 2},
			want: withCRC(0x69, 0x44, 0x00, 0x08, 0x02),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeRequest(tc.req, profiles.For(tc.req.Slave))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.True(t, VerifyCRC(got))
		})
	}
}

func TestEncodeRequest_Invalid(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		prof Profile
	}{
		{"zero quantity", Request{Slave: 1, Function: 3, Quantity: 0}, Profile{}},
		{"payload length mismatch", Request{Slave: 1, Function: 0x10, Quantity: 4, Payload: []byte{1, 2}}, Profile{}},
		{"narrow quantity overflow", Request{Slave: 1, Function: 3, Quantity: 256}, Profile{}},
		{"wide quantity overflow", Request{Slave: 1, Function: 3, Quantity: 70000}, Profile{WideReadQuantity: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := EncodeRequest(tc.req, tc.prof)
			assert.Error(t, err)
		})
	}
}

func TestEncodeRequest_FreshFramePerCall(t *testing.T) {
	req := Request{Slave: 1, Function: 0x10, Address: 1, Quantity: 2, Payload: []byte{0xAA, 0xBB}}
	a, err := EncodeRequest(req, Profile{})
	require.NoError(t, err)
	b, err := EncodeRequest(req, Profile{})
	require.NoError(t, err)

	a[0] = 0xFF
	assert.Equal(t, byte(0x01), b[0])
	assert.Equal(t, []byte{0xAA, 0xBB}, req.Payload)
}

func TestDecodeResponse(t *testing.T) {
	assert.Equal(t, []byte{0x0A, 0x0B}, DecodeResponse(withCRC(0x68, 0x44, 0x02, 0x0A, 0x0B)))
	assert.Empty(t, DecodeResponse(withCRC(0x68, 0x44, 0x00)))
	assert.Empty(t, DecodeResponse(nil))
	assert.Empty(t, DecodeResponse([]byte{0x01, 0x02}))
}

func TestCheckResponse(t *testing.T) {
	require.NoError(t, CheckResponse(withCRC(0x68, 0x44, 0x02, 0x0A, 0x0B), 0x44))

	assert.ErrorIs(t, CheckResponse(nil, 0x44), ErrNoResponse)
	assert.ErrorIs(t, CheckResponse([]byte{0x68, 0x44, 0x02}, 0x44), ErrShortFrame)
	assert.ErrorIs(t, CheckResponse([]byte{0x68, 0x44, 0x02, 0x0A, 0x0B, 0x00, 0x00}, 0x44), ErrCRC)

	err := CheckResponse(withCRC(0x68, 0xC4, 0x02), 0x44)
	var mbErr *modbus.ModbusError
	require.True(t, errors.As(err, &mbErr))
	assert.Equal(t, byte(0xC4), mbErr.FunctionCode)
	assert.Equal(t, byte(0x02), mbErr.ExceptionCode)
}

func TestIsException(t *testing.T) {
	assert.True(t, IsException([]byte{0x01, 0x83, 0x02}, 0x03))
	assert.False(t, IsException([]byte{0x01, 0x03, 0x02}, 0x03))
	assert.False(t, IsException([]byte{0x01, 0x84, 0x02}, 0x03))
	assert.False(t, IsException([]byte{0x01}, 0x03))
}

func TestValuePayload(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x00, 0x12, 0x34}, ValuePayload(0x1234, 4))
	assert.Equal(t, []byte{0x34}, ValuePayload(0x1234, 1))
	assert.Equal(t, []byte{0x65, 0x00, 0x00, 0x00}, ValuePayload(0x65000000, 4))
}
