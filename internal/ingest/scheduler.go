package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/DBImport/internal/logging"
	"golang.org/x/sync/errgroup"
)

// PartitionProcessor ingests one partition. *Worker satisfies it.
type PartitionProcessor interface {
	Process(ctx context.Context, key string, lines []RawLine) (PartitionResult, error)
}

// Summary collects the outcome of every partition of a run.
type Summary struct {
	Results  []PartitionResult // committed partitions, in submission order
	Failed   []string          // keys whose unit of work failed
	Records  int               // records committed across all partitions
	Duration time.Duration
}

// Scheduler runs one PartitionProcessor task per partition key with at most
// P tasks executing at once.
//
// Every key is submitted up front. Run waits for all tasks to finish and
// returns the first failure observed; a failing partition never cancels or
// interrupts its siblings, and nothing is retried.
type Scheduler struct {
	processor   PartitionProcessor
	concurrency int
	tracker     *Tracker
}

// NewScheduler creates a Scheduler with the given concurrency limit.
// tracker may be nil.
func NewScheduler(processor PartitionProcessor, concurrency int, tracker *Tracker) *Scheduler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Scheduler{
		processor:   processor,
		concurrency: concurrency,
		tracker:     tracker,
	}
}

// Run processes every partition in parts.
func (s *Scheduler) Run(ctx context.Context, parts *Partitions) (*Summary, error) {
	start := time.Now()
	log := logging.FromContext(ctx)

	limiter := NewSlotLimiter(s.concurrency)
	s.tracker.attach(limiter)

	type outcome struct {
		result PartitionResult
		err    error
	}
	outcomes := make([]outcome, len(parts.Keys))

	// A plain Group: no derived context, so one failure never cancels the rest.
	var g errgroup.Group
	for i, key := range parts.Keys {
		i, key := i, key // per-iteration copies for go < 1.22 loop semantics
		lines := parts.Lines[key]
		g.Go(func() error {
			if err := limiter.Acquire(ctx); err != nil {
				err = fmt.Errorf("partition %q: wait for slot: %w", key, err)
				outcomes[i] = outcome{err: err}
				s.tracker.partitionDone(0, err)
				return err
			}
			defer limiter.Release()

			res, err := s.processor.Process(ctx, key, lines)
			outcomes[i] = outcome{result: res, err: err}
			s.tracker.partitionDone(res.Records, err)
			if err != nil {
				log.Error("partition failed", "partition", key, "error", err)
				return err
			}
			return nil
		})
	}

	firstErr := g.Wait()

	summary := &Summary{Duration: time.Since(start)}
	for i, o := range outcomes {
		if o.err != nil {
			summary.Failed = append(summary.Failed, parts.Keys[i])
			continue
		}
		summary.Results = append(summary.Results, o.result)
		summary.Records += o.result.Records
	}

	log.Info("partitions processed",
		"partitions", len(parts.Keys),
		"failed", len(summary.Failed),
		"records", summary.Records,
		"peak_concurrency", limiter.Status().Peak,
		"duration_ms", summary.Duration.Milliseconds(),
	)

	if firstErr != nil {
		return summary, fmt.Errorf("ingest partitions (%d of %d failed): %w",
			len(summary.Failed), len(parts.Keys), firstErr)
	}
	return summary, nil
}
