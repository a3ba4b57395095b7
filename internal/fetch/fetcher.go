// Package fetch retrieves playlist text from remote sources.
//
// One call makes one GET request bounded by a timeout. There is no retry:
// a source that is down for this run simply contributes nothing.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourflock/roost-autoconfig/internal/metrics"
)

const (
	// DefaultTimeout bounds one fetch.
	DefaultTimeout = 60 * time.Second
	// DefaultMaxBytes caps a playlist body. The largest public lists are a
	// few MiB.
	DefaultMaxBytes int64 = 64 << 20
	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "Kodi IPTV Auto-Config"
)

// ErrTooLarge is returned when a body exceeds Config.MaxBytes.
var ErrTooLarge = errors.New("fetch: response body too large")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: HTTP %d from %s", e.Code, e.URL)
}

// Fetcher retrieves the text behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Config configures an HTTPFetcher. Zero values get defaults.
type Config struct {
	Client    *http.Client
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	Logger    *logrus.Entry
	Metrics   *metrics.Metrics
}

// HTTPFetcher is the production Fetcher.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	maxBytes  int64
	logger    *logrus.Entry
	metrics   *metrics.Metrics
}

// New returns an HTTPFetcher.
func New(cfg Config) *HTTPFetcher {
	f := &HTTPFetcher{
		client:    cfg.Client,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	if f.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		f.logger = logrus.NewEntry(l)
	}
	return f
}

// Fetch downloads url and returns its body decoded as UTF-8; invalid byte
// sequences are dropped. Network errors, timeouts, non-2xx statuses and
// oversize bodies are returned as errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	start := time.Now()
	body, err := f.get(ctx, url)
	elapsed := time.Since(start)

	log := f.logger.WithFields(logrus.Fields{
		"url":         url,
		"duration_ms": elapsed.Milliseconds(),
	})
	if err != nil {
		f.metrics.ObserveFetch(classify(err), elapsed)
		log.WithError(err).Warn("playlist download failed")
		return "", err
	}
	f.metrics.ObserveFetch(metrics.FetchOK, elapsed)
	log.WithField("bytes", len(body)).Debug("playlist downloaded")
	return decode(body), nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, ErrTooLarge
	}
	return body, nil
}

// decode turns body into valid UTF-8 text without a leading byte-order mark.
func decode(body []byte) string {
	s := strings.ToValidUTF8(string(body), "")
	return strings.TrimPrefix(s, "\ufeff")
}

// classify maps a fetch error to a metrics result label.
func classify(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return metrics.FetchHTTPCode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return metrics.FetchTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return metrics.FetchTimeout
	}
	return metrics.FetchError
}
