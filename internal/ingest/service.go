package ingest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/JonMunkholm/DBImport/internal/config"
	"github.com/JonMunkholm/DBImport/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Service wires Loader, Partitioner, Worker and Scheduler into one run.
type Service struct {
	store  Store
	cfg    *config.Config
	clock  func() time.Time
	client *http.Client
	newID  func() string

	mu      sync.RWMutex
	tracker *Tracker
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the insertion timestamp clock.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

// WithHTTPClient sets the client used for http(s) source locators.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// WithRunID overrides run id generation.
func WithRunID(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// NewService creates a Service persisting to store.
func NewService(store Store, cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		store: store,
		cfg:   cfg,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InsertRange is the span of insertion timestamps currently in the store.
type InsertRange struct {
	Min *time.Time `json:"min"`
	Max *time.Time `json:"max"`
}

// RunReport describes a finished run.
type RunReport struct {
	RunID      string
	Source     string
	Lines      int
	Dropped    int
	Partitions int
	Summary    *Summary
	Range      *InsertRange // nil when the run failed
}

// Run ingests the configured source once.
//
// A source failure aborts before any partition work. A partition failure
// is returned after every partition has finished; the insert-range
// diagnostics are only gathered on success.
func (s *Service) Run(ctx context.Context) (*RunReport, error) {
	location := s.cfg.Source.Location
	report := &RunReport{RunID: s.newID(), Source: location}

	ctx = logging.WithRun(ctx, report.RunID)
	log := logging.FromContext(ctx)

	tracker := NewTracker(report.RunID, location)
	s.mu.Lock()
	s.tracker = tracker
	s.mu.Unlock()

	log.Info("starting to process data file", "source", location)
	tracker.setPhase(PhaseReading)

	lr, err := OpenSource(ctx, location, SourceOptions{
		HeaderSentinel: s.cfg.Source.HeaderSentinel,
		ResourceRoot:   s.cfg.Source.ResourceRoot,
		HTTPClient:     s.client,
	})
	if err != nil {
		tracker.finish(err)
		return report, err
	}
	defer lr.Close()

	parts, err := Partition(lr, s.cfg.Ingest.Strict)
	if err != nil {
		tracker.finish(err)
		return report, err
	}
	blank, headers := lr.Skipped()
	report.Lines = parts.Total
	report.Dropped = parts.Dropped
	report.Partitions = parts.Len()
	tracker.partitioned(parts, lr.BytesRead())

	log.Info("read lines from file",
		"accepted", parts.Total,
		"dropped", parts.Dropped,
		"blank", blank,
		"headers", headers,
		"bytes", lr.BytesRead(),
	)
	log.Info("grouped data into partitions", "partitions", parts.Len())

	tracker.setPhase(PhaseIngesting)
	worker := NewWorker(s.store, WorkerConfig{
		BatchSize: s.cfg.Ingest.BatchSize,
		Pacer:     newPacer(s.cfg.Ingest.RateLimit, s.cfg.Ingest.RateBurst),
		Clock:     s.clock,
	})
	summary, err := NewScheduler(worker, s.cfg.Ingest.Concurrency, tracker).Run(ctx, parts)
	report.Summary = summary
	if err != nil {
		tracker.finish(err)
		return report, err
	}
	log.Info("completed processing data file", "records", summary.Records)

	tracker.setPhase(PhaseReporting)
	rng, err := s.InsertRange(ctx)
	if err != nil {
		log.Warn("insert range unavailable", "error", err)
	} else {
		report.Range = &rng
		log.Info("min date_insert", "value", formatTime(rng.Min))
		log.Info("max date_insert", "value", formatTime(rng.Max))
	}

	tracker.finish(nil)
	return report, nil
}

// InsertRange queries the minimum and maximum insertion timestamps.
func (s *Service) InsertRange(ctx context.Context) (InsertRange, error) {
	var rng InsertRange

	minTS, ok, err := s.store.MinInsertionTimestamp(ctx)
	if err != nil {
		return rng, fmt.Errorf("min insertion timestamp: %w", err)
	}
	if ok {
		rng.Min = &minTS
	}

	maxTS, ok, err := s.store.MaxInsertionTimestamp(ctx)
	if err != nil {
		return rng, fmt.Errorf("max insertion timestamp: %w", err)
	}
	if ok {
		rng.Max = &maxTS
	}

	return rng, nil
}

// Progress returns the progress of the current or last run.
func (s *Service) Progress() (Progress, bool) {
	s.mu.RLock()
	tracker := s.tracker
	s.mu.RUnlock()
	if tracker == nil {
		return Progress{}, false
	}
	return tracker.Snapshot(), true
}

// newPacer builds the per-record pacing limiter; nil when pacing is off.
func newPacer(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format(time.RFC3339Nano)
}
