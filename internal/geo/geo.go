// Package geo looks up the region the agent is running in so the
// country-specific playlist can be chosen.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// DefaultURL is the public IP geolocation endpoint.
	DefaultURL = "http://ip-api.com/json/"
	// DefaultTimeout bounds one lookup.
	DefaultTimeout = 10 * time.Second
)

// Fallback is used whenever the lookup fails.
var Fallback = Location{Code: "us", Name: "United States"}

// Location is a region: a lower-case two-letter code and a display name.
type Location struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Config configures a Locator.
type Config struct {
	Client    *http.Client
	URL       string
	Timeout   time.Duration
	UserAgent string
	// Country skips the network lookup when set.
	Country string
	Logger  *logrus.Entry
}

// Locator resolves the current region.
type Locator struct {
	client    *http.Client
	url       string
	timeout   time.Duration
	userAgent string
	country   string
	logger    *logrus.Entry
}

// New returns a Locator.
func New(cfg Config) *Locator {
	l := &Locator{
		client:    cfg.Client,
		url:       cfg.URL,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		country:   strings.ToLower(strings.TrimSpace(cfg.Country)),
		logger:    cfg.Logger,
	}
	if l.client == nil {
		l.client = &http.Client{}
	}
	if l.url == "" {
		l.url = DefaultURL
	}
	if l.timeout <= 0 {
		l.timeout = DefaultTimeout
	}
	if l.userAgent == "" {
		l.userAgent = "Kodi IPTV Auto-Config"
	}
	if l.logger == nil {
		lg := logrus.New()
		lg.SetOutput(io.Discard)
		l.logger = logrus.NewEntry(lg)
	}
	return l
}

type lookupResponse struct {
	Status      string `json:"status"`
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
}

// Lookup returns the configured country or the detected one. It never
// fails: any error yields Fallback.
func (l *Locator) Lookup(ctx context.Context) Location {
	if l.country != "" {
		loc := Location{Code: l.country, Name: DisplayName(l.country)}
		l.logger.WithField("country", loc.Code).Info("using configured country")
		return loc
	}

	loc, err := l.lookup(ctx)
	if err != nil {
		l.logger.WithError(err).WithField("fallback", Fallback.Code).Warn("location detection failed")
		return Fallback
	}
	l.logger.WithFields(logrus.Fields{"country": loc.Code, "name": loc.Name}).Info("location detected")
	return loc
}

func (l *Locator) lookup(ctx context.Context) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return Location{}, fmt.Errorf("geo: build request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo: HTTP %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("geo: decode response: %w", err)
	}
	if body.Status == "fail" {
		return Location{}, fmt.Errorf("geo: lookup refused")
	}

	loc := Location{
		Code: strings.ToLower(body.CountryCode),
		Name: body.Country,
	}
	if loc.Code == "" {
		loc.Code = Fallback.Code
	}
	if loc.Name == "" {
		loc.Name = DisplayName(loc.Code)
	}
	return loc, nil
}

var names = map[string]string{
	"au": "Australia",
	"br": "Brazil",
	"ca": "Canada",
	"de": "Germany",
	"es": "Spain",
	"fr": "France",
	"gb": "United Kingdom",
	"ie": "Ireland",
	"in": "India",
	"it": "Italy",
	"mx": "Mexico",
	"nl": "Netherlands",
	"nz": "New Zealand",
	"pt": "Portugal",
	"us": "United States",
}

// DisplayName returns a country name for a code, or the upper-cased code
// when it is not in the built-in table.
func DisplayName(code string) string {
	code = strings.ToLower(code)
	if n, ok := names[code]; ok {
		return n
	}
	return strings.ToUpper(code)
}
