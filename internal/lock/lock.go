// internal/lock/lock.go
package lock

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNotOwner is returned when releasing a marker held by another owner.
var ErrNotOwner = errors.New("lock: marker held by another owner")

// DefaultPollInterval is the busy-wait period of Acquire.
const DefaultPollInterval = 100 * time.Millisecond

const markerSuffix = ".lock"

// Locker implements named advisory locks shared between cooperating
// processes. A lock is a marker file <dir>/<name>.lock created exclusively.
//
// There is no timeout: a waiter blocks until the marker disappears or its
// context is cancelled.
type Locker struct {
	dir   string
	owner string
	poll  time.Duration
	log   zerolog.Logger
}

// New returns a Locker writing markers into dir on behalf of owner.
func New(dir, owner string, log zerolog.Logger) *Locker {
	return &Locker{
		dir:   dir,
		owner: owner,
		poll:  DefaultPollInterval,
		log:   log,
	}
}

// SetPollInterval overrides DefaultPollInterval.
func (l *Locker) SetPollInterval(d time.Duration) {
	if d > 0 {
		l.poll = d
	}
}

// Owner returns the owner name written into markers.
func (l *Locker) Owner() string { return l.owner }

func (l *Locker) path(name string) string {
	return filepath.Join(l.dir, name+markerSuffix)
}

// Acquire blocks until the marker for name is created by this Locker.
func (l *Locker) Acquire(ctx context.Context, name string) error {
	if name == "" || strings.ContainsRune(name, os.PathSeparator) {
		return fmt.Errorf("lock: invalid name %q", name)
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("lock: %w", err)
	}

	p := l.path(name)
	waited := false
	for {
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			_, werr := fmt.Fprintf(f, "%s %d\n", l.owner, os.Getpid())
			cerr := f.Close()
			if werr = errors.Join(werr, cerr); werr != nil {
				_ = os.Remove(p)
				return fmt.Errorf("lock %s: %w", name, werr)
			}
			return nil
		}
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("lock %s: %w", name, err)
		}

		if !waited {
			l.log.Debug().Str("lock", name).Msg("waiting for lock")
			waited = true
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("lock %s: %w", name, ctx.Err())
		case <-time.After(l.poll):
		}
	}
}

// Release removes the marker for name. A missing marker is not an error;
// a marker owned by someone else is left in place.
func (l *Locker) Release(name string) error {
	p := l.path(name)

	owner, err := readOwner(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("lock %s: %w", name, err)
	}
	if owner != l.owner {
		return fmt.Errorf("%w: %s held by %q", ErrNotOwner, name, owner)
	}

	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("lock %s: %w", name, err)
	}
	return nil
}

// With runs fn while holding name. The lock is released on every exit path,
// panics included. A release error is returned only when fn succeeded.
func (l *Locker) With(ctx context.Context, name string, fn func() error) (err error) {
	if err := l.Acquire(ctx, name); err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(name); rerr != nil {
			l.log.Error().Str("lock", name).Err(rerr).Msg("lock release failed")
			if err == nil {
				err = rerr
			}
		}
	}()
	return fn()
}

// CleanStale removes markers left behind by an earlier run of the same
// owner. It returns the names it removed.
func (l *Locker) CleanStale() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock: %w", err)
	}

	var (
		removed []string
		errs    []error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), markerSuffix) {
			continue
		}
		p := filepath.Join(l.dir, e.Name())
		owner, err := readOwner(p)
		if err != nil || owner != l.owner {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		name := strings.TrimSuffix(e.Name(), markerSuffix)
		removed = append(removed, name)
		l.log.Warn().Str("lock", name).Msg("stale lock removed")
	}
	return removed, errors.Join(errs...)
}

// readOwner returns the first field of a marker file.
func readOwner(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return "", sc.Err()
	}
	fields := strings.Fields(sc.Text())
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], nil
}

// Holder describes the current holder of a marker.
type Holder struct {
	Owner string
	PID   int
}

// Holder returns who holds name, or ok=false when it is free.
func (l *Locker) Holder(name string) (Holder, bool, error) {
	b, err := os.ReadFile(l.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Holder{}, false, nil
		}
		return Holder{}, false, err
	}
	fields := strings.Fields(string(b))
	var h Holder
	if len(fields) > 0 {
		h.Owner = fields[0]
	}
	if len(fields) > 1 {
		h.PID, _ = strconv.Atoi(fields[1])
	}
	return h, true, nil
}
