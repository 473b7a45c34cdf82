// internal/writer/types.go
package writer

import (
	"context"

	"github.com/tamzrod/sensorbox/internal/poller"
)

// Lock names shared with the other services of the box.
const (
	LockRawData  = "rawdata"
	LockCalcData = "calcdata"
)

// TimestampLayout is the row timestamp format (second resolution, no zone).
const TimestampLayout = "2006-01-02T15:04:05"

// Locker runs fn under a named advisory lock. *lock.Locker in production.
type Locker interface {
	With(ctx context.Context, name string, fn func() error) error
}

// Target is one tabular destination file guarded by a named lock.
type Target struct {
	Path string
	Lock string
}

// Plan is the fully-built destination plan for one settings revision.
type Plan struct {
	Raw  Target
	Calc Target
}

// Writer appends sample rows to a destination.
type Writer interface {
	Append(ctx context.Context, rows []poller.Sample) error
}
