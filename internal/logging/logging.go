// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where and how much to log.
type Options struct {
	Level slog.Level
	// File, when set, receives JSON records with size-based rotation.
	// Otherwise text records go to Stderr.
	File   string
	Stderr io.Writer
}

// New returns the logger and a close function for its output.
func New(opts Options) (*slog.Logger, func() error) {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	if opts.File != "" {
		out := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), out.Close
	}

	w := opts.Stderr
	if w == nil {
		w = io.Discard
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts)), func() error { return nil }
}
