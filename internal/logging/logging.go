// Package logging builds the *log.Logger instances shared by the
// components. Each component gets its own bracketed prefix ("[sync] ",
// "[daemon] ") on a common writer: a size-rotated log file, plus stderr when
// running in debug mode or when no file is configured.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the shared writer.
type Options struct {
	// File is the log file path. Empty disables file logging.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Debug also mirrors log output to Stderr.
	Debug bool
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// Factory hands out component loggers writing to one destination.
type Factory struct {
	w      io.Writer
	file   *lumberjack.Logger
	flags  int
	stderr io.Writer
}

// New creates a Factory. It never fails: if the log directory cannot be
// created, output falls back to stderr.
func New(opts Options) *Factory {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	f := &Factory{flags: log.LstdFlags, stderr: stderr}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err == nil {
			f.file = &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   true,
			}
		}
	}

	switch {
	case f.file != nil && opts.Debug:
		f.w = io.MultiWriter(f.file, stderr)
	case f.file != nil:
		f.w = f.file
	default:
		f.w = stderr
	}
	if opts.Debug {
		f.flags |= log.Lmicroseconds
	}
	return f
}

// Logger returns a logger for component, prefixed "[component] ".
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.w, "["+component+"] ", f.flags)
}

// Writer returns the shared destination.
func (f *Factory) Writer() io.Writer {
	return f.w
}

// Rotate closes the current log file and starts a new one.
func (f *Factory) Rotate() error {
	if f.file == nil {
		return nil
	}
	return f.file.Rotate()
}

// Close flushes and closes the log file, if any.
func (f *Factory) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

// Discard returns a Factory whose loggers write nowhere.
func Discard() *Factory {
	return &Factory{w: io.Discard, stderr: io.Discard}
}
