// Package logger builds the agent's logrus logger.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourflock/roost-autoconfig/internal/logrotate"
)

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	FilePath   string // empty = stderr only
	MaxSizeMB  int    // rotate at this size (default 10)
	MaxBackups int    // rotated files kept (default 3)
}

// New creates a logger. With FilePath set, output goes to a rotating file
// and is mirrored to stderr. The returned close func releases the file and
// is never nil.
func New(cfg Config) (*logrus.Logger, func() error) {
	return newWithStderr(cfg, os.Stderr)
}

func newWithStderr(cfg Config, stderr io.Writer) (*logrus.Logger, func() error) {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	log.SetOutput(stderr)
	if cfg.FilePath == "" {
		return log, func() error { return nil }
	}

	maxSizeMB := cfg.MaxSizeMB
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	base := filepath.Base(cfg.FilePath)
	rot, err := logrotate.New(logrotate.Config{
		Dir:          filepath.Dir(cfg.FilePath),
		Name:         strings.TrimSuffix(base, filepath.Ext(base)),
		MaxSizeBytes: int64(maxSizeMB) << 20,
		MaxBackups:   cfg.MaxBackups,
	})
	if err != nil {
		log.WithError(err).Warn("failed to open log file, logging to stderr only")
		return log, func() error { return nil }
	}
	log.SetOutput(io.MultiWriter(rot, stderr))
	return log, rot.Close
}

// ForRun returns an entry that tags every line with the run id.
func ForRun(log *logrus.Logger, runID string) *logrus.Entry {
	return log.WithField("run_id", runID)
}

// Component scopes entry to a named component.
func Component(entry *logrus.Entry, name string) *logrus.Entry {
	return entry.WithField("component", name)
}

// Discard returns an entry that writes nowhere.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
