// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/sensorbox/internal/register"
	"github.com/tamzrod/sensorbox/internal/rtu"
)

// Point describes one register read: which slave, which function,
// and how the answer is decoded.
type Point struct {
	Slave      uint8
	Function   uint8
	Descriptor register.Descriptor
}

// Request builds the read request for p.
// The quantity field carries the descriptor's byte length.
func (p Point) Request() rtu.Request {
	return rtu.Request{
		Slave:    p.Slave,
		Function: p.Function,
		Address:  p.Descriptor.Address,
		Quantity: p.Descriptor.Length,
	}
}

// Sample is one row produced by a poll cycle.
// Names and Values are parallel and follow the register map order.
// Immutable once handed to the pipeline.
type Sample struct {
	At       time.Time
	Location string
	Names    []string
	Values   []register.Value
}

// Clone returns a deep copy of s.
func (s Sample) Clone() Sample {
	out := Sample{At: s.At, Location: s.Location}
	out.Names = append([]string(nil), s.Names...)
	out.Values = append([]register.Value(nil), s.Values...)
	return out
}

// Missing counts the values without a valid answer.
func (s Sample) Missing() int {
	n := 0
	for _, v := range s.Values {
		if v.IsMissing() {
			n++
		}
	}
	return n
}

// PollResult is what one poll cycle produced.
type PollResult struct {
	Sample Sample

	// Failed lists the registers that produced Missing, in map order.
	Failed []string

	// Err joins the per-register failures; nil when every register answered.
	Err error
}
