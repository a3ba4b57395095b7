// Package netclient builds the outbound HTTP client used for every remote
// call the agent makes (playlists, geolocation, add-on archives).
//
// When an allowlist is configured, all outbound connections are restricted
// to the listed domains. This is for operators who run the agent on a
// locked-down network and want no undocumented outbound connections.
//
// Allowlist rules:
//   - Exact hostname match: "api.example.com" allows api.example.com only
//   - Subdomain match: "example.com" allows *.example.com and example.com itself
//   - Port is stripped before comparison
package netclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Options configures New.
type Options struct {
	// Timeout bounds a whole request including reading the body. Zero means
	// no client-level timeout; callers then rely on context deadlines.
	Timeout time.Duration
	// AllowedHosts restricts outbound connections. Empty allows everything.
	AllowedHosts []string
}

// New returns an *http.Client configured by opts.
func New(opts Options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if allow := normalize(opts.AllowedHosts); len(allow) > 0 {
		dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
		transport.DialContext = allowlistDialer(dialer, allow)
		// A proxy would be dialed instead of the target and bypass the check.
		transport.Proxy = nil
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: transport,
	}
}

// Allowed reports whether host (optionally with a port) passes allow.
// An empty allowlist allows every host.
func Allowed(host string, allow []string) bool {
	allow = normalize(allow)
	if len(allow) == 0 {
		return true
	}
	return isAllowed(host, allow)
}

func allowlistDialer(d *net.Dialer, allow []string) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !isAllowed(addr, allow) {
			return nil, fmt.Errorf("netclient: outbound connection to %q blocked (not in allowlist)", addr)
		}
		return d.DialContext(ctx, network, addr)
	}
}

func isAllowed(host string, allow []string) bool {
	h, _, err := net.SplitHostPort(host)
	if err != nil {
		h = host
	}
	h = strings.ToLower(h)
	for _, allowed := range allow {
		if h == allowed || strings.HasSuffix(h, "."+allowed) {
			return true
		}
	}
	return false
}

func normalize(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out = append(out, h)
		}
	}
	return out
}
