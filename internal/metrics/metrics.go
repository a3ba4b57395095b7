// Package metrics provides Prometheus instrumentation for a setup run.
//
// The agent is a one-shot process, so metrics are registered on a
// run-scoped registry rather than the global default. They are exported
// two ways: scraped live from the status server while the run is in
// progress, and written once at exit to a node-exporter textfile.
//
// Metrics registered here:
//
//	autoconfig_source_fetch_total{result}      counter: playlist fetches by outcome
//	autoconfig_source_fetch_duration_seconds   histogram: playlist fetch latency
//	autoconfig_channels_merged                 gauge: distinct channels in the merged playlist
//	autoconfig_duplicates_dropped_total        counter: entries dropped by dedup
//	autoconfig_runs_total{outcome}             counter: setup runs by outcome
//	autoconfig_step_duration_seconds{step}     histogram: setup step latency
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes used as the result label.
const (
	FetchOK       = "ok"
	FetchError    = "error"
	FetchTimeout  = "timeout"
	FetchHTTPCode = "bad_status"
)

// Metrics holds the collectors for one run. A nil *Metrics is valid and
// records nothing, so packages can be used without instrumentation.
type Metrics struct {
	sourceFetches     *prometheus.CounterVec
	fetchDuration     prometheus.Histogram
	channelsMerged    prometheus.Gauge
	duplicatesDropped prometheus.Counter
	runs              *prometheus.CounterVec
	stepDuration      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. Registering twice
// on the same registry panics, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sourceFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoconfig_source_fetch_total",
			Help: "Playlist source fetches by result.",
		}, []string{"result"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoconfig_source_fetch_duration_seconds",
			Help:    "Time to fetch one playlist source.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}),
		channelsMerged: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autoconfig_channels_merged",
			Help: "Distinct channels in the merged playlist.",
		}),
		duplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoconfig_duplicates_dropped_total",
			Help: "Playlist entries dropped because their stream was already merged.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoconfig_runs_total",
			Help: "Setup runs by outcome.",
		}, []string{"outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoconfig_step_duration_seconds",
			Help:    "Setup step latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
	}

	reg.MustRegister(
		m.sourceFetches,
		m.fetchDuration,
		m.channelsMerged,
		m.duplicatesDropped,
		m.runs,
		m.stepDuration,
	)
	return m
}

// ObserveFetch records one source fetch.
func (m *Metrics) ObserveFetch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.sourceFetches.WithLabelValues(result).Inc()
	m.fetchDuration.Observe(d.Seconds())
}

// FetchCounter returns the fetch counter for result.
func (m *Metrics) FetchCounter(result string) prometheus.Counter {
	return m.sourceFetches.WithLabelValues(result)
}

// ChannelsGauge returns the merged channel gauge.
func (m *Metrics) ChannelsGauge() prometheus.Gauge {
	return m.channelsMerged
}

// DuplicatesCounter returns the dropped duplicate counter.
func (m *Metrics) DuplicatesCounter() prometheus.Counter {
	return m.duplicatesDropped
}

// SetChannels sets the merged channel gauge.
func (m *Metrics) SetChannels(n int) {
	if m == nil {
		return
	}
	m.channelsMerged.Set(float64(n))
}

// AddDuplicates adds n dropped duplicates.
func (m *Metrics) AddDuplicates(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.duplicatesDropped.Add(float64(n))
}

// RunFinished counts a run outcome (completed, cancelled, declined, failed).
func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// RunCounter returns the run counter for outcome.
func (m *Metrics) RunCounter(outcome string) prometheus.Counter {
	return m.runs.WithLabelValues(outcome)
}

// ObserveStep records how long a setup step took.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

// Handler returns the scrape handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// WriteTextfile writes everything in g to path in the text exposition
// format. The write is atomic so the textfile collector never reads a
// partial file.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
