// internal/rtu/profile.go
package rtu

// Profile carries the framing quirks of one slave device family.
type Profile struct {
	// WideReadQuantity selects a 2-byte quantity field for read holding /
	// read input register requests. Without it the field is 1 byte wide.
	WideReadQuantity bool
}

// Profiles maps a slave address to its protocol profile.
// Slaves without an entry use the zero Profile.
type Profiles map[uint8]Profile

// For returns the profile of slave.
func (p Profiles) For(slave uint8) Profile {
	if p == nil {
		return Profile{}
	}
	return p[slave]
}
