package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNew_DoubleRegistrationPanics proves New really registers something.
func TestNew_DoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on double registration")
		}
	}()
	New(reg)
}

func TestMetrics_Observable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch(FetchOK, 150*time.Millisecond)
	m.ObserveFetch(FetchTimeout, 60*time.Second)
	m.SetChannels(42)
	m.AddDuplicates(3)
	m.RunFinished("completed")
	m.ObserveStep("playlists", 2*time.Second)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
		if mf.GetName() == "autoconfig_channels_merged" {
			if got := mf.GetMetric()[0].GetGauge().GetValue(); got != 42 {
				t.Errorf("expected channels gauge 42, got %v", got)
			}
		}
	}
	for _, n := range []string{
		"autoconfig_source_fetch_total",
		"autoconfig_source_fetch_duration_seconds",
		"autoconfig_channels_merged",
		"autoconfig_duplicates_dropped_total",
		"autoconfig_runs_total",
		"autoconfig_step_duration_seconds",
	} {
		if !names[n] {
			t.Errorf("metric %q not found after observation", n)
		}
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	// None of these may panic.
	m.ObserveFetch(FetchError, time.Second)
	m.SetChannels(1)
	m.AddDuplicates(1)
	m.RunFinished("failed")
	m.ObserveStep("pvr", time.Second)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SetChannels(7)

	path := filepath.Join(t.TempDir(), "autoconfig.prom")
	if err := WriteTextfile(path, reg); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "autoconfig_channels_merged 7") {
		t.Errorf("expected gauge sample in textfile, got:\n%s", data)
	}
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).RunFinished("completed")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `autoconfig_runs_total{outcome="completed"} 1`) {
		t.Errorf("expected run counter in scrape output, got:\n%s", rec.Body.String())
	}
}
