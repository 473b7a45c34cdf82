// internal/pipeline/window.go
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/tamzrod/sensorbox/internal/poller"
)

// Window accumulates samples until its trigger fires.
// Not safe for concurrent use; the collector loop owns it.
type Window struct {
	duration time.Duration
	start    time.Time
	samples  []poller.Sample
}

// NewWindow returns an empty window of the given length.
func NewWindow(d time.Duration) *Window {
	return &Window{duration: d}
}

// Duration returns the window length.
func (w *Window) Duration() time.Duration { return w.duration }

// SetDuration changes the window length; pending samples are kept.
func (w *Window) SetDuration(d time.Duration) { w.duration = d }

// Append adds s. The first sample fixes the window start.
func (w *Window) Append(s poller.Sample) {
	if len(w.samples) == 0 {
		w.start = s.At
	}
	w.samples = append(w.samples, s)
}

func (w *Window) Len() int { return len(w.samples) }

// Start returns the timestamp of the first sample, zero when empty.
func (w *Window) Start() time.Time { return w.start }

// Due reports whether the window must be flushed at now: the first sample
// is at least one window length old, or now falls on another calendar day
// than the window start. An empty window is never due.
func (w *Window) Due(now time.Time) bool {
	if len(w.samples) == 0 {
		return false
	}
	if now.Sub(w.start) >= w.duration {
		return true
	}
	return !sameDate(now.In(w.start.Location()), w.start)
}

// Snapshot returns a deep copy of the window content.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{
		ID:      uuid.New(),
		Start:   w.start,
		Samples: make([]poller.Sample, len(w.samples)),
	}
	for i, s := range w.samples {
		snap.Samples[i] = s.Clone()
	}
	if n := len(w.samples); n > 0 {
		snap.End = w.samples[n-1].At
	}
	return snap
}

// Clear empties the window.
func (w *Window) Clear() {
	w.samples = nil
	w.start = time.Time{}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Snapshot is a frozen copy of a window taken when it was flushed.
type Snapshot struct {
	ID      uuid.UUID
	Start   time.Time
	End     time.Time
	Samples []poller.Sample
}

// Rows returns the number of samples.
func (s Snapshot) Rows() int { return len(s.Samples) }
