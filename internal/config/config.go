// Package config loads the agent configuration.
//
// Values are layered: built-in defaults, then the optional YAML file, then
// AUTOCONFIG_* environment variables. Command-line flags are applied by the
// caller on top, after which Validate must be called.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yourflock/roost-autoconfig/internal/pipeline"
)

// EnvConfigPath names the YAML file when -config is not given.
const EnvConfigPath = "AUTOCONFIG_CONFIG"

// Guide modes.
const (
	GuidePlaceholder = "placeholder"
	GuidePlaylist    = "playlist"
)

// Config is the complete agent configuration.
type Config struct {
	Paths    PathsConfig       `yaml:"paths"`
	Kodi     KodiConfig        `yaml:"kodi"`
	Geo      GeoConfig         `yaml:"geo"`
	Fetch    FetchConfig       `yaml:"fetch"`
	Sources  []pipeline.Source `yaml:"sources"`
	PVR      PackageConfig     `yaml:"pvr"`
	Skin     PackageConfig     `yaml:"skin"`
	Download DownloadConfig    `yaml:"download"`
	Guide    GuideConfig       `yaml:"guide"`
	Logging  LoggingConfig     `yaml:"logging"`
	Sentry   SentryConfig      `yaml:"sentry"`
	Metrics  MetricsConfig     `yaml:"metrics"`
	Status   StatusConfig      `yaml:"status"`
	Network  NetworkConfig     `yaml:"network"`
	// AssumeYes skips the confirmation prompt.
	AssumeYes bool `yaml:"assume_yes"`
}

// PathsConfig locates the host's data directories.
type PathsConfig struct {
	Userdata string `yaml:"userdata"`
	Addons   string `yaml:"addons"`
	Temp     string `yaml:"temp"`
}

// KodiConfig addresses the host's JSON-RPC endpoint.
type KodiConfig struct {
	URL      string        `yaml:"url"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
	// Restart asks the host to restart once setup completes.
	Restart bool `yaml:"restart"`
}

// GeoConfig configures the region lookup.
type GeoConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	// Country skips the lookup when set (two-letter code).
	Country string `yaml:"country"`
}

// FetchConfig configures playlist downloads.
type FetchConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	UserAgent   string        `yaml:"user_agent"`
	Concurrency int           `yaml:"concurrency"`
	MaxBytes    int64         `yaml:"max_bytes"`
}

// PackageConfig names an add-on package and where to get it.
type PackageConfig struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256"`
}

// DownloadConfig configures package downloads.
type DownloadConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Retries int           `yaml:"retries"`
}

// GuideConfig selects how the programme guide is provisioned.
type GuideConfig struct {
	Mode string `yaml:"mode"`
}

// LoggingConfig holds logging and log-rotation settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// SentryConfig enables error reporting when DSN is set.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// MetricsConfig controls the node-exporter textfile written at exit.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

// StatusConfig controls the local status server. Empty Addr disables it.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// NetworkConfig restricts outbound connections when AllowedHosts is set.
type NetworkConfig struct {
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// Default returns a Config with every default filled in. Host paths are
// derived from KODI_HOME, falling back to ~/.kodi.
func Default() *Config {
	home := kodiHome()
	return &Config{
		Paths: PathsConfig{
			Userdata: filepath.Join(home, "userdata"),
			Addons:   filepath.Join(home, "addons"),
			Temp:     filepath.Join(home, "temp"),
		},
		Kodi: KodiConfig{
			URL:     "http://127.0.0.1:8080/jsonrpc",
			Timeout: 10 * time.Second,
		},
		Geo: GeoConfig{
			URL:     "http://ip-api.com/json/",
			Timeout: 10 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:     60 * time.Second,
			UserAgent:   "Kodi IPTV Auto-Config",
			Concurrency: 1,
			MaxBytes:    64 << 20,
		},
		Sources: pipeline.DefaultSources(),
		PVR: PackageConfig{
			ID:   "pvr.iptvsimple",
			Name: "PVR IPTV Simple",
			URL:  "https://mirrors.kodi.tv/addons/omega/pvr.iptvsimple+windows-x86_64/pvr.iptvsimple-21.11.0.zip",
		},
		Skin: PackageConfig{
			ID:   "skin.arctic.zephyr.mod",
			Name: "Arctic Zephyr",
			URL:  "https://mirrors.kodi.tv/addons/omega/skin.arctic.zephyr.mod/skin.arctic.zephyr.mod-3.0.3.zip",
		},
		Download: DownloadConfig{
			Timeout: 120 * time.Second,
			Retries: 2,
		},
		Guide: GuideConfig{Mode: GuidePlaceholder},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Sentry: SentryConfig{Environment: "production"},
	}
}

// Load returns defaults overlaid with the YAML file at path (if path is
// non-empty, or AUTOCONFIG_CONFIG is set) and then the environment. The
// result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// decodeYAML overlays data on c. Unknown keys are rejected so typos surface.
func (c *Config) decodeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Paths.Userdata = getEnv("AUTOCONFIG_USERDATA_DIR", c.Paths.Userdata)
	c.Paths.Addons = getEnv("AUTOCONFIG_ADDONS_DIR", c.Paths.Addons)
	c.Paths.Temp = getEnv("AUTOCONFIG_TEMP_DIR", c.Paths.Temp)

	c.Kodi.URL = getEnv("AUTOCONFIG_KODI_URL", c.Kodi.URL)
	c.Kodi.Username = getEnv("AUTOCONFIG_KODI_USER", c.Kodi.Username)
	c.Kodi.Password = getEnv("AUTOCONFIG_KODI_PASSWORD", c.Kodi.Password)
	c.Kodi.Restart = getEnvBool("AUTOCONFIG_RESTART", c.Kodi.Restart)

	c.Geo.Country = getEnv("AUTOCONFIG_COUNTRY", c.Geo.Country)
	c.Geo.Timeout = getEnvDuration("AUTOCONFIG_GEO_TIMEOUT", c.Geo.Timeout)

	c.Fetch.Timeout = getEnvDuration("AUTOCONFIG_FETCH_TIMEOUT", c.Fetch.Timeout)
	c.Fetch.Concurrency = getEnvInt("AUTOCONFIG_FETCH_CONCURRENCY", c.Fetch.Concurrency)

	c.Guide.Mode = getEnv("AUTOCONFIG_GUIDE_MODE", c.Guide.Mode)

	c.Logging.Level = getEnv("AUTOCONFIG_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("AUTOCONFIG_LOG_FORMAT", c.Logging.Format)
	c.Logging.FilePath = getEnv("AUTOCONFIG_LOG_FILE", c.Logging.FilePath)

	c.Sentry.DSN = getEnv("SENTRY_DSN", c.Sentry.DSN)
	c.Sentry.Environment = getEnv("SENTRY_ENVIRONMENT", c.Sentry.Environment)

	c.Metrics.TextfilePath = getEnv("AUTOCONFIG_METRICS_TEXTFILE", c.Metrics.TextfilePath)
	c.Status.Addr = getEnv("AUTOCONFIG_STATUS_ADDR", c.Status.Addr)
	if hosts := getEnv("AUTOCONFIG_ALLOWED_HOSTS", ""); hosts != "" {
		c.Network.AllowedHosts = splitList(hosts)
	}
	c.AssumeYes = getEnvBool("AUTOCONFIG_ASSUME_YES", c.AssumeYes)
}

// Validate returns an error describing every validation failure.
func (c *Config) Validate() error {
	var errs []string

	if c.Paths.Userdata == "" {
		errs = append(errs, "paths.userdata is required")
	}
	if c.Paths.Addons == "" {
		errs = append(errs, "paths.addons is required")
	}
	if c.Paths.Temp == "" {
		c.Paths.Temp = os.TempDir()
	}

	if c.Kodi.URL == "" {
		errs = append(errs, "kodi.url is required")
	}
	if c.Geo.Country != "" && len(c.Geo.Country) != 2 {
		errs = append(errs, fmt.Sprintf("geo.country must be a two-letter code (got %q)", c.Geo.Country))
	}

	if c.Fetch.Timeout <= 0 {
		errs = append(errs, "fetch.timeout must be positive")
	}
	if c.Fetch.Concurrency < 1 {
		c.Fetch.Concurrency = 1
	}
	if c.Fetch.Concurrency > 16 {
		errs = append(errs, fmt.Sprintf("fetch.concurrency must be at most 16 (got %d)", c.Fetch.Concurrency))
	}

	if len(c.Sources) == 0 {
		errs = append(errs, "at least one playlist source is required")
	}
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Sprintf("sources[%d].name is required", i))
		}
		if !strings.HasPrefix(s.URL, "http") {
			errs = append(errs, fmt.Sprintf("sources[%d].url must be an http(s) URL (got %q)", i, s.URL))
		}
	}

	if c.PVR.ID == "" || c.PVR.URL == "" {
		errs = append(errs, "pvr.id and pvr.url are required")
	}
	if c.Skin.ID == "" {
		errs = append(errs, "skin.id is required")
	}
	if c.Download.Retries < 0 {
		errs = append(errs, "download.retries must not be negative")
	}

	switch c.Guide.Mode {
	case GuidePlaceholder, GuidePlaylist:
	case "":
		c.Guide.Mode = GuidePlaceholder
	default:
		errs = append(errs, fmt.Sprintf("guide.mode must be %s or %s (got %q)", GuidePlaceholder, GuidePlaylist, c.Guide.Mode))
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of: debug, info, warn, error (got %q)", c.Logging.Level))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Sprintf("logging.format must be json or text (got %q)", c.Logging.Format))
	}

	if c.Status.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Status.Addr); err != nil {
			errs = append(errs, fmt.Sprintf("status.addr %q is not a valid host:port: %v", c.Status.Addr, err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func kodiHome() string {
	if h := os.Getenv("KODI_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".kodi"
	}
	return filepath.Join(home, ".kodi")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
