// internal/logging/logging.go
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDir holds log files whose settings only name a basename.
const DefaultDir = "logs"

// Options selects where and how much to log.
type Options struct {
	Level   string
	File    string // empty: no file output
	Console bool   // human readable output on stderr
	Service string
}

// Logger is a configured root logger plus its file sink. Child loggers
// share the sink, so SetFile moves them all.
type Logger struct {
	zerolog.Logger
	sink *fileSink
}

// fileSink is an append-mode file that can be swapped while logging.
// Writes are dropped while no file is open.
type fileSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

func (s *fileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return len(p), nil
	}
	return s.f.Write(p)
}

func (s *fileSink) open(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == s.path && s.f != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	old := s.f
	s.f, s.path = f, path
	if old != nil {
		return old.Close()
	}
	return nil
}

func (s *fileSink) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f, s.path = nil, ""
	return err
}

// New builds the root logger. Without a file it also logs to the console,
// and keeps doing so after a file is set with SetFile.
func New(opt Options) (*Logger, error) {
	level := zerolog.InfoLevel
	if opt.Level != "" {
		l, err := zerolog.ParseLevel(opt.Level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		level = l
	}

	sink := &fileSink{}
	writers := []io.Writer{sink}
	if opt.File != "" {
		if err := sink.open(opt.File); err != nil {
			return nil, err
		}
	}
	if opt.Console || opt.File == "" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	if opt.Service != "" {
		zl = zl.With().Str("service", opt.Service).Logger()
	}

	return &Logger{Logger: zl, sink: sink}, nil
}

// SetFile points the file output at path, closing the previous file.
// Reopening the current path is a no-op.
func (l *Logger) SetFile(path string) error {
	return l.sink.open(path)
}

// File returns the path of the open log file, empty when none.
func (l *Logger) File() string {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return l.sink.path
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.close()
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// SettingsFile derives the log path from the settings' local_files.logs
// entry: only its basename is kept, placed under DefaultDir.
func SettingsFile(logs string) string {
	if logs == "" {
		return ""
	}
	return filepath.Join(DefaultDir, filepath.Base(logs))
}
