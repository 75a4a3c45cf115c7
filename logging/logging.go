// Package logging builds the root zerolog logger handed to every component.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jrick/logrotate/rotator"
	"github.com/rs/zerolog"
)

const (
	// rotateThresholdKB is the size at which the log file is rolled.
	rotateThresholdKB = 10 * 1024
	// maxRolls is the number of rolled files kept next to the active one.
	maxRolls = 3
)

// ParseLevel maps a config log level onto a zerolog level.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	}
	return zerolog.NoLevel, fmt.Errorf("logging: unknown level %q", level)
}

// New returns a logger writing human-readable lines to stderr when file is
// empty, or JSON lines to a size-rotated file otherwise. The returned closer
// must be closed on shutdown; it is a no-op for the console logger.
func New(level, file string) (zerolog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	if file == "" {
		w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		return build(w, lvl), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("logging: create log directory: %w", err)
	}
	r, err := rotator.New(file, rotateThresholdKB, false, maxRolls)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("logging: create file rotator: %w", err)
	}
	return build(r, lvl), r, nil
}

func build(w io.Writer, lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
