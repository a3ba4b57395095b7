// Package telemetry reports terminal failures to Sentry.
//
// Usage in main.go:
//
//	enabled, err := telemetry.Init(telemetry.Options{DSN: dsn, Release: version, RunID: runID})
//	defer telemetry.Flush()
//
// All functions are safe to call when Sentry is disabled (empty DSN).
package telemetry

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/getsentry/sentry-go"
)

// Options configures Sentry.
type Options struct {
	DSN         string
	Environment string
	Release     string
	// RunID is attached to every event as the run_id tag.
	RunID string
}

// Init initializes the Sentry SDK. It reports whether reporting is enabled;
// an empty DSN disables it without error.
func Init(opts Options) (bool, error) {
	if opts.DSN == "" {
		return false, nil
	}
	env := opts.Environment
	if env == "" {
		env = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Environment:      env,
		Release:          opts.Release,
		AttachStacktrace: true,
		Tags: map[string]string{
			"service": "autoconfig",
			"run_id":  opts.RunID,
		},
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			return scrubPII(event)
		},
	})
	if err != nil {
		return false, fmt.Errorf("sentry.Init: %w", err)
	}
	return true, nil
}

// CaptureError sends err with tags such as step or source.
func CaptureError(err error, tags map[string]string) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush waits briefly for buffered events. Call with defer in main.
func Flush() {
	sentry.Flush(2 * time.Second)
}

// PanicRecoveryMiddleware reports handler panics and answers 500.
func PanicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(r)
				hub.Scope().SetTag("panic", "true")

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("panic: %v", rec)
				}
				hub.CaptureException(err)
				hub.Flush(2 * time.Second)

				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// scrubPII drops the user's address, credentials and query strings before
// an event leaves the machine. Playlist and JSON-RPC URLs can carry tokens.
func scrubPII(event *sentry.Event) *sentry.Event {
	if event == nil {
		return nil
	}

	event.User.IPAddress = ""
	event.ServerName = ""

	if event.Request != nil {
		event.Request.QueryString = ""
		event.Request.Cookies = ""
		event.Request.URL = stripURL(event.Request.URL)
		for k := range event.Request.Headers {
			switch k {
			case "Authorization", "Cookie", "X-Api-Key", "X-Auth-Token":
				event.Request.Headers[k] = "[redacted]"
			}
		}
	}

	for i := range event.Breadcrumbs {
		if u, ok := event.Breadcrumbs[i].Data["url"].(string); ok {
			event.Breadcrumbs[i].Data["url"] = stripURL(u)
		}
	}
	return event
}

// stripURL removes user info, query and fragment from raw.
func stripURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
