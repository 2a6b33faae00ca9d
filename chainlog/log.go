// Package chainlog provides the shared logging setup used across
// chainharness components. It follows the teacher repo's pattern of
// accepting an optional *logrus.Logger and falling back to the package
// default rather than forcing every constructor to thread one through.
package chainlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Config controls how New builds a logger.
type Config struct {
	// Level is a logrus level name ("debug", "info", "warn", ...). Empty
	// defaults to "info".
	Level string
	// JSON switches the formatter to JSON, for harnesses that ship logs to
	// a collector instead of a terminal.
	JSON bool
	// File, when non-empty, appends output to the named file in addition
	// to stderr.
	File string
}

// New builds a *logrus.Logger from cfg. A zero Config yields a
// text-formatted, info-level logger writing to stderr.
func New(cfg Config) (*logrus.Logger, error) {
	lg := logrus.New()
	lg.SetOutput(os.Stderr)

	level := logrus.InfoLevel
	if cfg.Level != "" {
		parsed, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = parsed
	}
	lg.SetLevel(level)

	if cfg.JSON {
		lg.SetFormatter(&logrus.JSONFormatter{})
	}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		lg.SetOutput(io.MultiWriter(os.Stderr, f))
	}

	return lg, nil
}

// OrDefault returns lg if non-nil, otherwise logrus.StandardLogger(). Used
// by constructors throughout chainharness so callers may pass nil.
func OrDefault(lg *logrus.Logger) *logrus.Logger {
	if lg == nil {
		return logrus.StandardLogger()
	}
	return lg
}
