// internal/config/watcher.go
package config

import (
	"errors"
	"os"
	"time"
)

// Watcher reports whether a file changed since the last check by comparing
// modification times. A missing file counts as not modified.
type Watcher struct {
	path string
	last time.Time
}

// NewWatcher starts with a zero timestamp, so the first Modified call on an
// existing file reports true.
func NewWatcher(path string) *Watcher {
	return &Watcher{path: path}
}

func (w *Watcher) Path() string { return w.path }

// Modified returns true when the file's mtime is newer than the stored one
// and stores the new mtime.
func (w *Watcher) Modified() (bool, error) {
	mt, changed, err := w.changed()
	if changed {
		w.last = mt
	}
	return changed, err
}

func (w *Watcher) changed() (time.Time, bool, error) {
	fi, err := os.Stat(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	mt := fi.ModTime()
	return mt, mt.After(w.last), nil
}

// Reset forgets the stored mtime; the next Modified call reports a change.
func (w *Watcher) Reset() { w.last = time.Time{} }

// LoadIfModified loads, validates and normalizes the settings file when it
// changed. It returns nil settings when nothing changed. The mtime is only
// stored once the file loaded and validated, so a file caught mid-write is
// read again on the next call.
func (w *Watcher) LoadIfModified() (*Settings, error) {
	mt, changed, err := w.changed()
	if err != nil || !changed {
		return nil, err
	}

	s, err := LoadSettings(w.path)
	if err != nil {
		return nil, err
	}
	if err := ValidateSettings(s); err != nil {
		return nil, err
	}
	NormalizeSettings(s)
	w.last = mt
	return s, nil
}
