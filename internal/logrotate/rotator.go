// Package logrotate is a size-based rotating file writer for the agent log.
package logrotate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Config configures rotation.
type Config struct {
	// Dir holds the active log and its backups.
	Dir string
	// Name is the file stem, e.g. "autoconfig" for autoconfig.log.
	Name string
	// MaxSizeBytes triggers a rotation when the next write would exceed it.
	MaxSizeBytes int64
	// MaxBackups is how many rotated files are kept.
	MaxBackups int
}

// Rotator is an io.Writer that rotates the underlying file by size.
type Rotator struct {
	cfg     Config
	mu      sync.Mutex
	current *os.File
	size    int64
	now     func() time.Time
}

// New creates Dir if needed and opens the active log for appending.
func New(cfg Config) (*Rotator, error) {
	if cfg.Name == "" {
		cfg.Name = "autoconfig"
	}
	if cfg.MaxSizeBytes <= 0 {
		cfg.MaxSizeBytes = 10 << 20
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 3
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("logrotate: create log dir: %w", err)
	}

	r := &Rotator{cfg: cfg, now: time.Now}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path is the active log file.
func (r *Rotator) Path() string {
	return filepath.Join(r.cfg.Dir, r.cfg.Name+".log")
}

// Write appends p, rotating first when p would push the file past
// MaxSizeBytes. A write larger than the limit still lands in one file.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current == nil {
		return 0, os.ErrClosed
	}
	if r.size > 0 && r.size+int64(len(p)) > r.cfg.MaxSizeBytes {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.current.Write(p)
	r.size += int64(n)
	return n, err
}

// Close closes the active file. Later writes fail with os.ErrClosed.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	err := r.current.Close()
	r.current = nil
	return err
}

// Backups lists rotated files, oldest first.
func (r *Rotator) Backups() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(r.cfg.Dir, r.cfg.Name+"-*.log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func (r *Rotator) open() error {
	f, err := os.OpenFile(r.Path(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logrotate: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("logrotate: stat log file: %w", err)
	}
	r.current = f
	r.size = info.Size()
	return nil
}

func (r *Rotator) rotate() error {
	if err := r.current.Close(); err != nil {
		return fmt.Errorf("logrotate: close: %w", err)
	}
	r.current = nil

	// Millisecond stamps keep names unique and lexically ordered.
	ts := r.now().UTC().Format("20060102-150405.000")
	backup := filepath.Join(r.cfg.Dir, fmt.Sprintf("%s-%s.log", r.cfg.Name, ts))
	if err := os.Rename(r.Path(), backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("logrotate: rename: %w", err)
	}
	r.prune()
	return r.open()
}

func (r *Rotator) prune() {
	backups, err := r.Backups()
	if err != nil || len(backups) <= r.cfg.MaxBackups {
		return
	}
	for _, path := range backups[:len(backups)-r.cfg.MaxBackups] {
		os.Remove(path) //nolint:errcheck
	}
}
