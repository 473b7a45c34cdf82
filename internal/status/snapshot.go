// internal/status/snapshot.go
package status

import "time"

// Snapshot is the collector health after the last cycle.
// It contains no logic; Next derives the following one.
type Snapshot struct {
	Health         uint16
	LastErrorCode  uint16
	SecondsInError uint16

	// ErrorSince is when the current non-OK streak started.
	ErrorSince time.Time

	Registers int // registers polled in the last cycle
	Missing   int // registers without a valid answer
	Cycles    uint64
}

// Cycle is what one collector cycle observed.
type Cycle struct {
	At        time.Time
	Registers int
	Missing   int
	Err       error // port error, or the joined register errors
}

// Next folds c into prev.
// No IO. No side effects.
func Next(prev Snapshot, c Cycle) Snapshot {
	next := prev
	next.Cycles++
	next.Registers = c.Registers
	next.Missing = c.Missing

	switch {
	case c.Err == nil && c.Missing == 0:
		next.Health = HealthOK
	case c.Registers > 0 && c.Missing < c.Registers:
		next.Health = HealthDegraded
	default:
		next.Health = HealthError
	}

	if next.Health == HealthOK {
		// Reset on recovery.
		next.LastErrorCode = ErrorNone
		next.SecondsInError = 0
		next.ErrorSince = time.Time{}
		return next
	}

	next.LastErrorCode = Code(c.Err)
	if prev.Health == HealthOK || prev.Health == HealthUnknown || prev.ErrorSince.IsZero() {
		next.ErrorSince = c.At
	}
	secs := c.At.Sub(next.ErrorSince) / time.Second
	if secs > MaxSecondsInError {
		secs = MaxSecondsInError
	}
	if secs < 0 {
		secs = 0
	}
	next.SecondsInError = uint16(secs)
	return next
}
