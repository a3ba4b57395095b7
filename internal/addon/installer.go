// Package addon installs add-on packages from zip archives into the host's
// add-ons directory.
package addon

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourflock/roost-autoconfig/internal/recovery"
)

const (
	// DefaultTimeout bounds one package download.
	DefaultTimeout = 120 * time.Second
	userAgent      = "Kodi IPTV Auto-Config"
)

// ErrChecksum is returned when a download does not match Package.SHA256.
var ErrChecksum = errors.New("addon: checksum mismatch")

// Package identifies an add-on and its archive.
type Package struct {
	ID  string
	URL string
	// Name is shown to the user; ID is used when empty.
	Name string
	// SHA256 is the hex digest of the archive; empty skips verification.
	SHA256 string
}

// Config configures an Installer.
type Config struct {
	Client    *http.Client
	AddonsDir string
	TempDir   string
	Timeout   time.Duration
	Retries   int
	// Backoff scales the quadratic wait between download attempts.
	Backoff time.Duration
	Logger  *logrus.Entry
}

// Installer downloads and extracts add-on packages.
type Installer struct {
	client    *http.Client
	addonsDir string
	tempDir   string
	timeout   time.Duration
	retries   int
	backoff   time.Duration
	logger    *logrus.Entry
}

// New returns an Installer.
func New(cfg Config) *Installer {
	in := &Installer{
		client:    cfg.Client,
		addonsDir: cfg.AddonsDir,
		tempDir:   cfg.TempDir,
		timeout:   cfg.Timeout,
		retries:   cfg.Retries,
		backoff:   cfg.Backoff,
		logger:    cfg.Logger,
	}
	if in.client == nil {
		in.client = &http.Client{}
	}
	if in.timeout <= 0 {
		in.timeout = DefaultTimeout
	}
	if in.retries < 0 {
		in.retries = 0
	}
	if in.tempDir == "" {
		in.tempDir = os.TempDir()
	}
	if in.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		in.logger = logrus.NewEntry(l)
	}
	return in
}

// DisplayName is Name, or ID when Name is empty.
func (p Package) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

// Installed reports whether id has a directory under the add-ons dir.
func (in *Installer) Installed(id string) bool {
	info, err := os.Stat(filepath.Join(in.addonsDir, id))
	return err == nil && info.IsDir()
}

// EnsureInstalled installs pkg unless it is already present. It reports
// whether an install happened.
func (in *Installer) EnsureInstalled(ctx context.Context, pkg Package) (bool, error) {
	if in.Installed(pkg.ID) {
		in.logger.WithField("addon", pkg.ID).Info("add-on already installed")
		return false, nil
	}
	if err := in.Install(ctx, pkg); err != nil {
		return false, err
	}
	return true, nil
}

// Install downloads pkg, verifies it and extracts it into the add-ons dir.
func (in *Installer) Install(ctx context.Context, pkg Package) error {
	log := in.logger.WithFields(logrus.Fields{"addon": pkg.ID, "url": pkg.URL})
	log.Info("installing add-on")

	if err := os.MkdirAll(in.tempDir, 0o755); err != nil {
		return fmt.Errorf("addon: create temp dir: %w", err)
	}
	tmp, err := os.CreateTemp(in.tempDir, pkg.ID+"-*.zip")
	if err != nil {
		return fmt.Errorf("addon: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	err = recovery.WithRetry(ctx, log, "download "+pkg.ID, in.retries, in.backoff, func(ctx context.Context) error {
		return in.download(ctx, pkg.URL, tmpPath)
	})
	if err != nil {
		return fmt.Errorf("addon: download %s: %w", pkg.ID, err)
	}

	if pkg.SHA256 != "" {
		if err := verifyChecksum(tmpPath, pkg.SHA256); err != nil {
			return fmt.Errorf("addon: %s: %w", pkg.ID, err)
		}
	}

	n, err := extract(tmpPath, in.addonsDir)
	if err != nil {
		return fmt.Errorf("addon: extract %s: %w", pkg.ID, err)
	}
	if !in.Installed(pkg.ID) {
		return fmt.Errorf("addon: archive for %s has no %s/ directory", pkg.ID, pkg.ID)
	}
	log.WithField("files", n).Info("add-on installed")
	return nil
}

func (in *Installer) download(ctx context.Context, url, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := in.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func verifyChecksum(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksum, want, got)
	}
	return nil
}

// extract unpacks the archive at src into dest and returns the number of
// files written. Entries that would land outside dest and symlinks are
// rejected.
func extract(src, dest string) (int, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return 0, err
	}
	defer zr.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return 0, err
	}

	files := 0
	for _, f := range zr.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return files, fmt.Errorf("entry %q escapes destination", f.Name)
		}
		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return files, err
			}
			continue
		case mode&os.ModeSymlink != 0:
			return files, fmt.Errorf("entry %q is a symlink", f.Name)
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return files, err
		}
		if err := writeEntry(f, target); err != nil {
			return files, fmt.Errorf("entry %q: %w", f.Name, err)
		}
		files++
	}
	return files, nil
}

func writeEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	perm := f.Mode().Perm() | 0o600
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
