// internal/writer/writer.go
package writer

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tamzrod/sensorbox/internal/poller"
)

// CSV is an append-only comma separated destination.
// Every access happens under the target's lock.
type CSV struct {
	target Target
	locks  Locker
}

// NewCSV creates a destination for t.
func NewCSV(t Target, locks Locker) *CSV {
	return &CSV{target: t, locks: locks}
}

// Path returns the destination file.
func (w *CSV) Path() string { return w.target.Path }

// Append writes one row per sample, in order.
func (w *CSV) Append(ctx context.Context, rows []poller.Sample) error {
	if len(rows) == 0 {
		return nil
	}
	return w.locks.With(ctx, w.target.Lock, func() error {
		return appendRecords(w.target.Path, records(rows))
	})
}

// EnsureHeader writes columns as the first row when the file is missing or
// its first line is blank. It reports whether a header was written.
func (w *CSV) EnsureHeader(ctx context.Context, columns []string) (bool, error) {
	written := false
	err := w.locks.With(ctx, w.target.Lock, func() error {
		has, err := hasHeader(w.target.Path)
		if err != nil || has {
			return err
		}
		written = true
		return appendRecords(w.target.Path, [][]string{columns})
	})
	return written, err
}

// Record renders one sample as a row:
// timestamp, location, then the values in column order.
// Missing values render as the sentinel.
func Record(s poller.Sample) []string {
	row := make([]string, 0, 2+len(s.Values))
	row = append(row, s.At.Format(TimestampLayout), s.Location)
	for _, v := range s.Values {
		row = append(row, v.String())
	}
	return row
}

func records(rows []poller.Sample) [][]string {
	out := make([][]string, 0, len(rows))
	for _, s := range rows {
		out = append(out, Record(s))
	}
	return out
}

func appendRecords(path string, recs [][]string) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("writer: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("writer: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("writer: %w", cerr)
		}
	}()

	cw := csv.NewWriter(f)
	if err := cw.WriteAll(recs); err != nil {
		return fmt.Errorf("writer: %s: %w", path, err)
	}
	return nil
}

func hasHeader(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("writer: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		// empty file
		return false, nil
	}
	return strings.TrimSpace(line) != "", nil
}
