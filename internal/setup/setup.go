// Package setup runs the first-run configuration: detect the region,
// install the PVR client, build the merged playlist, provision the guide,
// write the PVR and skin settings, and offer a restart.
//
// Steps run in a fixed order with fixed progress percentages. Failing to
// install the PVR client, fetch any playlist, save the playlist or write
// the PVR settings aborts the run; every later step only logs.
package setup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourflock/roost-autoconfig/internal/addon"
	"github.com/yourflock/roost-autoconfig/internal/atomicfile"
	"github.com/yourflock/roost-autoconfig/internal/epg"
	"github.com/yourflock/roost-autoconfig/internal/fetch"
	"github.com/yourflock/roost-autoconfig/internal/geo"
	"github.com/yourflock/roost-autoconfig/internal/metrics"
	"github.com/yourflock/roost-autoconfig/internal/pipeline"
	"github.com/yourflock/roost-autoconfig/internal/recovery"
	"github.com/yourflock/roost-autoconfig/internal/settings"
)

// Title is the default dialog title.
const Title = "IPTV Auto-Config"

var (
	// ErrDeclined is returned when the user declines the confirmation.
	ErrDeclined = errors.New("setup: declined by user")
	// ErrCancelled is returned when ctx is cancelled during the run.
	ErrCancelled = errors.New("setup: cancelled")
	// ErrAlreadyRun is returned by Run on a runner that has already run.
	ErrAlreadyRun = errors.New("setup: runner already used")
)

// StepError reports the step that aborted a run.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("setup: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Step names a stage of the run. Steps are used as log fields, metric
// labels and in StepError.
type Step string

const (
	StepLocate    Step = "locate"
	StepConfirm   Step = "confirm"
	StepPVR       Step = "install_pvr"
	StepPlaylists Step = "playlists"
	StepSave      Step = "save_playlist"
	StepGuide     Step = "guide"
	StepPVRConfig Step = "pvr_settings"
	StepEnablePVR Step = "enable_pvr"
	StepSkin      Step = "install_skin"
	StepSkinMenu  Step = "skin_menu"
	StepActivate  Step = "activate_skin"
	StepComplete  Step = "complete"
)

// The playlist step owns this band of overall progress.
const (
	playlistsStart = 30
	playlistsSpan  = 20
)

// Dialogs is the user-facing side of a run.
type Dialogs interface {
	// Confirm asks a yes/no question before anything is changed.
	Confirm(message string) bool
	// Alert shows a message the user must see.
	Alert(message string)
	// Notify shows a transient message.
	Notify(message string)
	// Progress reports overall progress (0-100) with a label.
	Progress(percent int, label string)
	// AskRestart shows the summary and asks whether to restart now.
	AskRestart(summary string) bool
}

// Host is the media center being configured. *kodi.Client implements it.
type Host interface {
	EnableAddon(ctx context.Context, id string) error
	Notify(ctx context.Context, title, message string, d time.Duration) error
	Restart(ctx context.Context) error
}

// Locator resolves the region. *geo.Locator implements it.
type Locator interface {
	Lookup(ctx context.Context) geo.Location
}

// Installer installs add-on packages. *addon.Installer implements it.
type Installer interface {
	EnsureInstalled(ctx context.Context, pkg addon.Package) (bool, error)
}

// Config configures a Runner.
type Config struct {
	RunID       string
	Title       string
	UserdataDir string
	PVR         addon.Package
	Skin        addon.Package
	GuideMode   string
	Sources     []pipeline.Source
	Concurrency int
	// Restart restarts the host after setup without asking.
	Restart bool
	// EnableRetries bounds attempts to enable the PVR client while the host
	// registers the freshly installed add-on.
	EnableRetries int
	EnableBackoff time.Duration

	Locator   Locator
	Fetcher   fetch.Fetcher
	Installer Installer
	Host      Host
	Dialogs   Dialogs
	Logger    *logrus.Entry
	Metrics   *metrics.Metrics
}

// Report describes a completed run.
type Report struct {
	RunID          string
	Location       geo.Location
	Channels       int
	PlaylistPath   string
	Guide          epg.Guide
	PVRSettings    string
	PVRInstalled   bool
	PVREnabled     bool
	SkinInstalled  bool
	SkinActivated  bool
	Restarted      bool
	Sources        []pipeline.SourceReport
	Duration       time.Duration
	NonFatalErrors []string
}

// Runner performs one setup run.
type Runner struct {
	cfg Config
	log *logrus.Entry

	mu        sync.RWMutex
	status    Status
	stepStart time.Time
}

// New returns a Runner in StateIdle.
func New(cfg Config) *Runner {
	if cfg.Title == "" {
		cfg.Title = Title
	}
	if cfg.GuideMode == "" {
		cfg.GuideMode = epg.ModePlaceholder
	}
	if cfg.Sources == nil {
		cfg.Sources = pipeline.DefaultSources()
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = logrus.NewEntry(l)
	}
	return &Runner{
		cfg:    cfg,
		log:    log.WithField("component", "setup"),
		status: Status{RunID: cfg.RunID, State: StateIdle},
	}
}

// Run performs the setup. It returns ErrDeclined, ErrCancelled,
// ErrAlreadyRun or a *StepError for a fatal step.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if !r.begin() {
		return nil, ErrAlreadyRun
	}
	started := time.Now()
	rep := &Report{RunID: r.cfg.RunID}

	err := r.run(ctx, rep)
	rep.Duration = time.Since(started)
	r.end(err)
	if err != nil {
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"channels": rep.Channels,
		"country":  rep.Location.Code,
		"duration": rep.Duration.String(),
	}).Info("setup completed")
	return rep, nil
}

func (r *Runner) run(ctx context.Context, rep *Report) error {
	cfg := r.cfg

	r.enter(StepLocate, 0, "Detecting location...")
	rep.Location = cfg.Locator.Lookup(ctx)

	r.enter(StepConfirm, 0, "Waiting for confirmation...")
	if !cfg.Dialogs.Confirm(confirmMessage(rep.Location, cfg)) {
		return ErrDeclined
	}

	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.enter(StepPVR, 10, "Checking "+cfg.PVR.DisplayName()+"...")
	installed, err := cfg.Installer.EnsureInstalled(ctx, cfg.PVR)
	if err != nil {
		if ctx.Err() != nil {
			return ErrCancelled
		}
		cfg.Dialogs.Alert(fmt.Sprintf("Failed to install %s.\n\nPlease install manually:\nSettings > Add-ons > Install from repository", cfg.PVR.DisplayName()))
		return &StepError{Step: StepPVR, Err: err}
	}
	rep.PVRInstalled = true
	if installed {
		r.notify(ctx, "Installed "+cfg.PVR.DisplayName())
	}

	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.enter(StepPlaylists, playlistsStart, "Downloading playlists...")
	r.notify(ctx, "Downloading playlists...")
	result, err := r.mergePlaylists(ctx, rep.Location)
	switch {
	case errors.Is(err, pipeline.ErrCancelled):
		return ErrCancelled
	case err != nil:
		cfg.Dialogs.Alert("Failed to download playlists.\nCheck internet connection.")
		return &StepError{Step: StepPlaylists, Err: err}
	}
	rep.Channels = result.Total
	rep.Sources = result.Sources
	r.setChannels(result.Total)
	r.notify(ctx, fmt.Sprintf("Found %d channels", result.Total))

	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.enter(StepSave, 50, "Saving playlists...")
	rep.PlaylistPath = filepath.Join(cfg.UserdataDir, PlaylistName)
	if err := atomicfile.WriteFile(rep.PlaylistPath, []byte(result.Playlist)); err != nil {
		cfg.Dialogs.Alert(fmt.Sprintf("Failed to save playlists.\nError: %v", err))
		return &StepError{Step: StepSave, Err: err}
	}
	r.log.WithField("path", rep.PlaylistPath).Info("playlist saved")

	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.enter(StepGuide, 60, "Setting up EPG...")
	r.notify(ctx, "Setting up EPG...")
	rep.Guide = epg.Provision(cfg.UserdataDir, cfg.GuideMode, result.GuideURLs, r.log)
	if rep.Guide.Empty() {
		rep.NonFatalErrors = append(rep.NonFatalErrors, "guide unavailable")
	}

	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.enter(StepPVRConfig, 70, "Configuring PVR...")
	rep.PVRSettings = filepath.Join(cfg.UserdataDir, "addon_data", cfg.PVR.ID, "settings.xml")
	if err := settings.Write(rep.PVRSettings, PVRSettings(rep.PlaylistPath, rep.Guide)); err != nil {
		cfg.Dialogs.Alert("Failed to configure PVR.")
		return &StepError{Step: StepPVRConfig, Err: err}
	}
	r.log.WithField("path", rep.PVRSettings).Info("PVR configured")

	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.enter(StepEnablePVR, 75, "Enabling PVR...")
	if err := r.enableAddon(ctx, cfg.PVR.ID); err != nil {
		r.nonFatal(rep, StepEnablePVR, err)
	} else {
		rep.PVREnabled = true
	}

	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.enter(StepSkin, 80, "Installing "+cfg.Skin.DisplayName()+"...")
	if installed, err := cfg.Installer.EnsureInstalled(ctx, cfg.Skin); err != nil {
		r.nonFatal(rep, StepSkin, err)
	} else {
		rep.SkinInstalled = true
		if installed {
			r.notify(ctx, "Installed "+cfg.Skin.DisplayName())
		}
	}

	if err := r.checkpoint(ctx); err != nil {
		return err
	}
	r.enter(StepSkinMenu, 90, "Configuring menu...")
	menuPath := filepath.Join(cfg.UserdataDir, "addon_data", cfg.Skin.ID, "settings.xml")
	if err := settings.Write(menuPath, SkinMenu()); err != nil {
		r.nonFatal(rep, StepSkinMenu, err)
	}

	if rep.SkinInstalled {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		r.enter(StepActivate, 95, "Activating "+cfg.Skin.DisplayName()+"...")
		guiSettings := filepath.Join(cfg.UserdataDir, "guisettings.xml")
		if err := settings.SetValue(guiSettings, SkinSetting, cfg.Skin.ID); err != nil {
			r.nonFatal(rep, StepActivate, err)
		} else {
			rep.SkinActivated = true
		}
	}

	r.enter(StepComplete, 100, "Complete!")

	summary := summaryMessage(rep, cfg)
	restart := cfg.Restart
	if restart {
		cfg.Dialogs.Alert(summary)
	} else {
		restart = cfg.Dialogs.AskRestart(summary)
	}
	if restart && cfg.Host != nil {
		r.log.Info("restarting host")
		if err := cfg.Host.Restart(context.WithoutCancel(ctx)); err != nil {
			r.nonFatal(rep, StepComplete, err)
		} else {
			rep.Restarted = true
		}
	}
	return nil
}

// mergePlaylists runs the playlist pipeline, mapping its progress onto the
// 30-50% band of the overall run.
func (r *Runner) mergePlaylists(ctx context.Context, loc geo.Location) (*pipeline.Result, error) {
	orch := pipeline.New(pipeline.Config{
		Sources:     pipeline.ResolveAll(r.cfg.Sources, loc.Code),
		Fetcher:     r.cfg.Fetcher,
		Logger:      r.log,
		Metrics:     r.cfg.Metrics,
		Concurrency: r.cfg.Concurrency,
		Progress: func(percent int, label string) {
			r.progress(playlistsStart+percent*playlistsSpan/100, "Downloading: "+label)
		},
	})
	return orch.Run(ctx)
}

// enableAddon asks the host to enable id, retrying while the host catches
// up with the new add-on.
func (r *Runner) enableAddon(ctx context.Context, id string) error {
	if r.cfg.Host == nil {
		return errors.New("no host connection")
	}
	return recovery.WithRetry(ctx, r.log, "enable "+id, r.cfg.EnableRetries, r.cfg.EnableBackoff, func(ctx context.Context) error {
		return r.cfg.Host.EnableAddon(ctx, id)
	})
}

func (r *Runner) checkpoint(ctx context.Context) error {
	if ctx.Err() != nil {
		return ErrCancelled
	}
	return nil
}

func (r *Runner) notify(ctx context.Context, msg string) {
	r.cfg.Dialogs.Notify(msg)
	if r.cfg.Host == nil {
		return
	}
	if err := r.cfg.Host.Notify(ctx, r.cfg.Title, msg, 3*time.Second); err != nil {
		r.log.WithError(err).Debug("host notification failed")
	}
}

func (r *Runner) nonFatal(rep *Report, step Step, err error) {
	r.log.WithError(err).WithField("step", string(step)).Warn("setup step failed, continuing")
	rep.NonFatalErrors = append(rep.NonFatalErrors, fmt.Sprintf("%s: %v", step, err))
}

func confirmMessage(loc geo.Location, cfg Config) string {
	return fmt.Sprintf("Auto-configure IPTV for %s?\n\nThis will:\n- Install %s (if needed)\n- Download channel playlists\n- Install %s skin\n- Configure clean menu\n- Set up EPG",
		loc.Name, cfg.PVR.DisplayName(), cfg.Skin.DisplayName())
}

func summaryMessage(rep *Report, cfg Config) string {
	var b strings.Builder
	b.WriteString("Setup Complete!\n\n")
	fmt.Fprintf(&b, "✓ %d channels for %s\n", rep.Channels, rep.Location.Name)
	if rep.PVREnabled {
		fmt.Fprintf(&b, "✓ %s enabled\n", cfg.PVR.DisplayName())
	} else {
		fmt.Fprintf(&b, "✗ %s could not be enabled, enable it under Add-ons\n", cfg.PVR.DisplayName())
	}
	if rep.SkinInstalled {
		fmt.Fprintf(&b, "✓ %s skin installed\n", cfg.Skin.DisplayName())
	}
	b.WriteString("\nRESTART KODI to activate:\n")
	if rep.SkinActivated {
		fmt.Fprintf(&b, "- %s skin\n", cfg.Skin.DisplayName())
	}
	b.WriteString("- Clean menu (TV, Movies, TV Shows only)\n\nAfter restart: Go to TV section!")
	return b.String()
}
