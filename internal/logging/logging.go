// Package logging builds the component loggers.
//
// Every component logs through a *log.Logger with a bracketed prefix such
// as "[sync] ". When a log file is configured, output also goes to a
// size-rotated file managed by lumberjack.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mschirtzinger/sessionvault/internal/config"
)

// Factory hands out component loggers sharing one writer.
type Factory struct {
	out  io.Writer
	file *lumberjack.Logger
}

// New returns a Factory for cfg. Verbose false discards component logs
// unless a log file is configured, in which case they go to the file only.
func New(cfg config.LogConfig, verbose bool) (*Factory, error) {
	var writers []io.Writer
	if verbose {
		writers = append(writers, os.Stderr)
	}

	f := &Factory{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, err
		}
		f.file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		writers = append(writers, f.file)
	}

	switch len(writers) {
	case 0:
		f.out = io.Discard
	case 1:
		f.out = writers[0]
	default:
		f.out = io.MultiWriter(writers...)
	}
	return f, nil
}

// Logger returns a logger for component, prefixed "[component] ".
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared output.
func (f *Factory) Writer() io.Writer { return f.out }

// Close closes the log file, if any.
func (f *Factory) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}
