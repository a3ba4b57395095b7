// Package pipeline drives one playlist acquisition run: fetch every
// configured source, parse it, fold its entries into the merged playlist,
// and hand back the playlist text with its channel count.
//
// Sources are folded strictly in list order, because dedup ties go to the
// first source that contributed a stream. With Concurrency > 1 the
// downloads overlap on a bounded worker pool, but folding still happens on
// the orchestrator goroutine in list order, never in completion order.
//
// Cancellation is cooperative and checked only between sources. A fetch
// that is already in flight finishes or times out on its own.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/yourflock/roost-autoconfig/internal/fetch"
	"github.com/yourflock/roost-autoconfig/internal/m3u"
	"github.com/yourflock/roost-autoconfig/internal/merge"
	"github.com/yourflock/roost-autoconfig/internal/metrics"
)

// State is the lifecycle state of an Orchestrator.
type State string

const (
	// StateIdle means Run has not been called.
	StateIdle State = "idle"
	// StateRunning means sources are being processed.
	StateRunning State = "running"
	// StateCompleted means a playlist was produced.
	StateCompleted State = "completed"
	// StateCancelled means the caller cancelled between sources.
	StateCancelled State = "cancelled"
	// StateFailed means no source could be fetched.
	StateFailed State = "failed"
)

var (
	// ErrCancelled is returned when ctx is cancelled before the run finishes.
	// Partial results are discarded.
	ErrCancelled = errors.New("pipeline: cancelled")
	// ErrAllSourcesFailed is returned when no source could be fetched. It is
	// distinct from a completed run that found zero channels.
	ErrAllSourcesFailed = errors.New("pipeline: no playlist source could be fetched")
	// ErrAlreadyRun is returned by Run on an orchestrator that has left
	// StateIdle. Each run needs a fresh Orchestrator.
	ErrAlreadyRun = errors.New("pipeline: orchestrator already used")
)

// ProgressFunc receives the percentage of sources processed so far (0-100)
// and the name of the source about to be fetched.
type ProgressFunc func(percent int, label string)

// SourceReport describes what one source contributed.
type SourceReport struct {
	Source   Source
	Fetched  bool
	Parsed   int
	Added    int
	Err      error
	Duration time.Duration
}

// Result is a completed run.
type Result struct {
	// Playlist is the merged extended M3U text.
	Playlist string
	// Total is the number of distinct channels in Playlist.
	Total   int
	Entries []m3u.Entry
	// GuideURLs are the distinct guide locations advertised by source
	// headers, in first-seen order.
	GuideURLs []string
	Sources   []SourceReport
	Duration  time.Duration
}

// Config configures an Orchestrator.
type Config struct {
	Sources  []Source
	Fetcher  fetch.Fetcher
	Logger   *logrus.Entry
	Progress ProgressFunc
	Metrics  *metrics.Metrics
	// Concurrency is the number of downloads allowed in flight. Values below
	// 2 keep the run strictly sequential.
	Concurrency int
}

// Orchestrator runs the pipeline once.
type Orchestrator struct {
	sources     []Source
	fetcher     fetch.Fetcher
	logger      *logrus.Entry
	progress    ProgressFunc
	metrics     *metrics.Metrics
	concurrency int

	mu    sync.RWMutex
	state State
}

// New creates an Orchestrator in StateIdle. The source list is copied.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		sources:     append([]Source(nil), cfg.Sources...),
		fetcher:     cfg.Fetcher,
		logger:      cfg.Logger,
		progress:    cfg.Progress,
		metrics:     cfg.Metrics,
		concurrency: cfg.Concurrency,
		state:       StateIdle,
	}
	if o.logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.logger = logrus.NewEntry(l)
	}
	o.logger = o.logger.WithField("component", "pipeline")
	if o.progress == nil {
		o.progress = func(int, string) {}
	}
	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Run processes every source in order and returns the merged playlist.
// It returns ErrCancelled, ErrAllSourcesFailed or ErrAlreadyRun; failures
// of individual sources are recorded in Result.Sources and never returned.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if !o.begin() {
		return nil, ErrAlreadyRun
	}
	started := time.Now()
	if ctx.Err() != nil {
		o.finish(StateCancelled)
		o.logger.WithField("processed", 0).Info("playlist merge cancelled")
		return nil, ErrCancelled
	}

	// Fetches are not interrupted by cancellation; only the loop and the
	// start of each pooled fetch check it.
	fetchCtx := context.WithoutCancel(ctx)
	prefetched, release := o.prefetch(ctx, fetchCtx)
	defer release()

	seen := merge.NewSet()
	guides := merge.NewSet()
	var (
		entries   []m3u.Entry
		guideURLs []string
		fetched   int
	)
	reports := make([]SourceReport, 0, len(o.sources))

	for i, src := range o.sources {
		if ctx.Err() != nil {
			o.finish(StateCancelled)
			o.logger.WithField("processed", i).Info("playlist merge cancelled")
			return nil, ErrCancelled
		}

		o.progress(i*100/len(o.sources), src.Name)

		var out fetchOutcome
		if prefetched != nil {
			out = <-prefetched[i]
		} else {
			out = o.fetchOne(fetchCtx, src)
		}

		report := SourceReport{Source: src, Duration: out.took}
		log := o.logger.WithFields(logrus.Fields{"source": src.Name, "url": src.URL})
		if out.err != nil {
			report.Err = out.err
			reports = append(reports, report)
			log.WithError(out.err).Warn("playlist source skipped")
			continue
		}
		fetched++
		report.Fetched = true

		doc, err := m3u.ParseDocument(strings.NewReader(out.content))
		if err != nil {
			log.WithError(err).Warn("playlist only partially parsed")
		}
		added := seen.Fold(doc.Entries)
		entries = append(entries, added...)
		for _, g := range guides.Fold(guideEntries(doc.GuideURLs)) {
			guideURLs = append(guideURLs, g.StreamURL)
		}

		report.Parsed = len(doc.Entries)
		report.Added = len(added)
		reports = append(reports, report)
		o.metrics.AddDuplicates(report.Parsed - report.Added)

		log.WithFields(logrus.Fields{
			"parsed": report.Parsed,
			"added":  report.Added,
		}).Info("playlist source merged")
	}

	if fetched == 0 {
		o.finish(StateFailed)
		o.logger.WithField("sources", len(o.sources)).Error("no playlist source could be fetched")
		return nil, ErrAllSourcesFailed
	}

	o.metrics.SetChannels(len(entries))
	o.finish(StateCompleted)

	result := &Result{
		Playlist:  m3u.Format(entries),
		Total:     len(entries),
		Entries:   entries,
		GuideURLs: guideURLs,
		Sources:   reports,
		Duration:  time.Since(started),
	}
	o.logger.WithFields(logrus.Fields{
		"channels": result.Total,
		"fetched":  fetched,
		"sources":  len(o.sources),
		"duration": result.Duration.String(),
	}).Info("playlist merge complete")
	return result, nil
}

func (o *Orchestrator) begin() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return false
	}
	o.state = StateRunning
	return true
}

func (o *Orchestrator) finish(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

type fetchOutcome struct {
	content string
	err     error
	took    time.Duration
}

// fetchOne fetches src. A panicking Fetcher is reported as a failed fetch.
func (o *Orchestrator) fetchOne(ctx context.Context, src Source) (out fetchOutcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = fetchOutcome{err: fmt.Errorf("pipeline: fetch %s panicked: %v", src.Name, r)}
		}
		out.took = time.Since(start)
	}()
	content, err := o.fetcher.Fetch(ctx, src.URL)
	return fetchOutcome{content: content, err: err}
}

// prefetch starts every download on a bounded pool and returns one
// single-slot channel per source, indexed like o.sources. It returns nil
// when the run is sequential. A download that has not started when ctx is
// cancelled is never started; its slot receives ctx's error instead.
// Started downloads run on fetchCtx.
func (o *Orchestrator) prefetch(ctx, fetchCtx context.Context) ([]chan fetchOutcome, func()) {
	if o.concurrency < 2 || len(o.sources) < 2 {
		return nil, func() {}
	}
	pool, err := ants.NewPool(o.concurrency)
	if err != nil {
		o.logger.WithError(err).Warn("worker pool unavailable, fetching sequentially")
		return nil, func() {}
	}

	results := make([]chan fetchOutcome, len(o.sources))
	for i := range results {
		results[i] = make(chan fetchOutcome, 1)
	}
	go func() {
		for i, src := range o.sources {
			i, src := i, src
			if err := ctx.Err(); err != nil {
				results[i] <- fetchOutcome{err: err}
				continue
			}
			task := func() {
				if err := ctx.Err(); err != nil {
					results[i] <- fetchOutcome{err: err}
					return
				}
				results[i] <- o.fetchOne(fetchCtx, src)
			}
			if err := pool.Submit(task); err != nil {
				results[i] <- fetchOutcome{err: fmt.Errorf("pipeline: schedule fetch %s: %w", src.Name, err)}
			}
		}
	}()
	return results, pool.Release
}

// guideEntries wraps guide URLs so they can share the case-insensitive
// first-seen dedup used for streams.
func guideEntries(urls []string) []m3u.Entry {
	out := make([]m3u.Entry, len(urls))
	for i, u := range urls {
		out[i] = m3u.Entry{StreamURL: u}
	}
	return out
}
