// Command autoconfig performs the first-run IPTV setup of a Kodi install:
// it builds a merged channel playlist from public sources, installs and
// configures the PVR IPTV Simple client, and sets up the skin.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/yourflock/roost-autoconfig/internal/addon"
	"github.com/yourflock/roost-autoconfig/internal/config"
	"github.com/yourflock/roost-autoconfig/internal/console"
	"github.com/yourflock/roost-autoconfig/internal/fetch"
	"github.com/yourflock/roost-autoconfig/internal/geo"
	"github.com/yourflock/roost-autoconfig/internal/kodi"
	"github.com/yourflock/roost-autoconfig/internal/logger"
	"github.com/yourflock/roost-autoconfig/internal/metrics"
	"github.com/yourflock/roost-autoconfig/internal/netclient"
	"github.com/yourflock/roost-autoconfig/internal/recovery"
	"github.com/yourflock/roost-autoconfig/internal/setup"
	"github.com/yourflock/roost-autoconfig/internal/shutdown"
	"github.com/yourflock/roost-autoconfig/internal/status"
	"github.com/yourflock/roost-autoconfig/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownGrace = 30 * time.Second
	statusLinger  = 5 * time.Second
	enableRetries = 4
)

type flags struct {
	configPath  string
	assumeYes   bool
	restart     bool
	country     string
	statusAddr  string
	logLevel    string
	showVersion bool
}

func parseFlags(args []string) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("autoconfig", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to YAML config (default $"+config.EnvConfigPath+")")
	fs.BoolVar(&f.assumeYes, "yes", false, "do not ask for confirmation")
	fs.BoolVar(&f.restart, "restart", false, "restart Kodi when setup completes")
	fs.StringVar(&f.country, "country", "", "two-letter country code; skips the region lookup")
	fs.StringVar(&f.statusAddr, "status-addr", "", "serve /health, /status and /metrics on this address")
	fs.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&f.showVersion, "version", false, "print the version and exit")
	err := fs.Parse(args)
	return f, err
}

// apply overlays the flags that were set on cfg.
func (f flags) apply(cfg *config.Config) {
	if f.assumeYes {
		cfg.AssumeYes = true
	}
	if f.restart {
		cfg.Kodi.Restart = true
	}
	if f.country != "" {
		cfg.Geo.Country = f.country
	}
	if f.statusAddr != "" {
		cfg.Status.Addr = f.statusAddr
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	f, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if f.showVersion {
		fmt.Println(version)
		return 0
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "autoconfig: %v\n", err)
		return 1
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "autoconfig: invalid configuration: %v\n", err)
		return 1
	}

	base, closeLog := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer closeLog()

	runID := uuid.NewString()
	log := logger.ForRun(base, runID)
	log.WithFields(logrus.Fields{
		"version":     version,
		"sources":     len(cfg.Sources),
		"guide_mode":  cfg.Guide.Mode,
		"concurrency": cfg.Fetch.Concurrency,
	}).Info("starting autoconfig")

	enabled, err := telemetry.Init(telemetry.Options{
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     version,
		RunID:       runID,
	})
	if err != nil {
		log.WithError(err).Warn("sentry init failed, error reporting disabled")
	} else if enabled {
		log.Info("sentry error reporting enabled")
	}
	defer telemetry.Flush()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	client := netclient.New(netclient.Options{AllowedHosts: cfg.Network.AllowedHosts})
	host := kodi.New(kodi.Config{
		HTTPClient: client,
		URL:        cfg.Kodi.URL,
		Username:   cfg.Kodi.Username,
		Password:   cfg.Kodi.Password,
		Timeout:    cfg.Kodi.Timeout,
	})

	runner := setup.New(setup.Config{
		RunID:       runID,
		UserdataDir: cfg.Paths.Userdata,
		PVR:         pkg(cfg.PVR),
		Skin:        pkg(cfg.Skin),
		GuideMode:   cfg.Guide.Mode,
		Sources:     cfg.Sources,
		Concurrency: cfg.Fetch.Concurrency,
		Restart:     cfg.Kodi.Restart,
		// The host registers freshly extracted add-ons a few seconds late.
		EnableRetries: enableRetries,
		EnableBackoff: recovery.DefaultBackoff,
		Locator: geo.New(geo.Config{
			Client:    client,
			URL:       cfg.Geo.URL,
			Timeout:   cfg.Geo.Timeout,
			UserAgent: cfg.Fetch.UserAgent,
			Country:   cfg.Geo.Country,
			Logger:    log,
		}),
		Fetcher: fetch.New(fetch.Config{
			Client:    client,
			Timeout:   cfg.Fetch.Timeout,
			UserAgent: cfg.Fetch.UserAgent,
			MaxBytes:  cfg.Fetch.MaxBytes,
			Logger:    log,
			Metrics:   m,
		}),
		Installer: addon.New(addon.Config{
			Client:    client,
			AddonsDir: cfg.Paths.Addons,
			TempDir:   cfg.Paths.Temp,
			Timeout:   cfg.Download.Timeout,
			Retries:   cfg.Download.Retries,
			Logger:    log,
		}),
		Host:    host,
		Dialogs: console.New(setup.Title, os.Stdin, os.Stderr, cfg.AssumeYes),
		Logger:  log,
		Metrics: m,
	})

	if cfg.Status.Addr != "" {
		srv, err := status.Start(cfg.Status.Addr, status.NewRouter(status.Config{
			Version:  version,
			Runner:   runner,
			Gatherer: reg,
			Logger:   log,
		}), log)
		if err != nil {
			log.WithError(err).Warn("status server unavailable")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), statusLinger)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					log.WithError(err).Warn("status server shutdown")
				}
			}()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := shutdown.Notify(cancel, shutdownGrace, log)
	defer stop()

	if err := host.Ping(ctx); err != nil {
		log.WithError(err).Warn("kodi JSON-RPC not reachable, notifications and add-on enabling may fail")
	}

	report, err := runner.Run(ctx)

	if cfg.Metrics.TextfilePath != "" {
		if werr := metrics.WriteTextfile(cfg.Metrics.TextfilePath, reg); werr != nil {
			log.WithError(werr).Warn("metrics textfile not written")
		}
	}

	switch {
	case err == nil:
		log.WithFields(logrus.Fields{
			"channels":  report.Channels,
			"playlist":  report.PlaylistPath,
			"restarted": report.Restarted,
			"duration":  report.Duration.String(),
		}).Info("autoconfig finished")
		return 0
	case errors.Is(err, setup.ErrDeclined):
		return 0
	case errors.Is(err, setup.ErrCancelled):
		return shutdown.ExitCode
	default:
		tags := map[string]string{"run_id": runID}
		var stepErr *setup.StepError
		if errors.As(err, &stepErr) {
			tags["step"] = string(stepErr.Step)
		}
		telemetry.CaptureError(err, tags)
		log.WithError(err).Error("autoconfig failed")
		return 1
	}
}

func pkg(p config.PackageConfig) addon.Package {
	return addon.Package{ID: p.ID, URL: p.URL, Name: p.Name, SHA256: p.SHA256}
}
