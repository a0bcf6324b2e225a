package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/JonMunkholm/DBImport/internal/logging"
	"golang.org/x/time/rate"
)

// DefaultBatchSize is used when WorkerConfig.BatchSize is not positive.
const DefaultBatchSize = 1000

// WorkerConfig holds the settings shared by every partition worker.
type WorkerConfig struct {
	BatchSize int

	// Pacer throttles record assignment; nil disables pacing.
	// A rate.Limiter is safe to share between workers.
	Pacer *rate.Limiter

	// Clock stamps InsertedAt; nil means time.Now.
	Clock func() time.Time
}

// Worker turns one partition's raw lines into sequenced records and
// persists them inside a single Store transaction.
type Worker struct {
	store     Store
	batchSize int
	pacer     *rate.Limiter
	clock     func() time.Time
}

// NewWorker creates a Worker writing to store.
func NewWorker(store Store, cfg WorkerConfig) *Worker {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Worker{
		store:     store,
		batchSize: batchSize,
		pacer:     cfg.Pacer,
		clock:     clock,
	}
}

// Process ingests lines for key as one atomic unit of work.
//
// Sequence numbers continue from the highest one already stored for key;
// original order restarts at 1. Records are flushed every batchSize records
// and once more for the remainder. If anything fails the transaction is
// rolled back and no record of this partition is kept.
func (w *Worker) Process(ctx context.Context, key string, lines []RawLine) (PartitionResult, error) {
	start := time.Now()
	log := logging.WithFields(ctx, "partition", key)
	log.Info("processing partition", "lines", len(lines))

	result := PartitionResult{Key: key}

	tx, err := w.store.Begin(ctx, key)
	if err != nil {
		return result, &PartitionError{Key: key, Op: "begin", Err: err}
	}
	// Rollback is a no-op once committed.
	defer tx.Rollback(context.WithoutCancel(ctx))

	base, found, err := tx.MaxSequenceNumber(ctx, key)
	if err != nil {
		return result, &PartitionError{Key: key, Op: "max_sequence", Err: err}
	}
	if !found {
		base = 0
	}

	seq := base
	var order int64
	batch := make([]Record, 0, min(w.batchSize, len(lines)))

	for _, line := range lines {
		if w.pacer != nil {
			if err := w.pacer.Wait(ctx); err != nil {
				return result, &PartitionError{Key: key, Op: "pacing", Err: err}
			}
		}

		rec, ok := w.buildRecord(key, line)
		if !ok {
			continue
		}
		seq++
		order++
		rec.SequenceNumber = seq
		rec.OriginalOrder = order
		batch = append(batch, rec)

		if len(batch) >= w.batchSize {
			if err := tx.SaveBatch(ctx, batch); err != nil {
				log.Error("batch flush failed", "batch", result.Batches+1, "error", err)
				return result, &PartitionError{Key: key, Op: "save_batch", Err: err}
			}
			result.Batches++
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		if err := tx.SaveBatch(ctx, batch); err != nil {
			log.Error("batch flush failed", "batch", result.Batches+1, "error", err)
			return result, &PartitionError{Key: key, Op: "save_batch", Err: err}
		}
		result.Batches++
	}

	if err := tx.Commit(ctx); err != nil {
		return result, &PartitionError{Key: key, Op: "commit", Err: err}
	}

	result.Records = int(order)
	if order > 0 {
		result.FirstSequence = base + 1
		result.LastSequence = seq
	}
	result.Duration = time.Since(start)

	log.Info("completed partition",
		"records", result.Records,
		"batches", result.Batches,
		"first_sequence", result.FirstSequence,
		"last_sequence", result.LastSequence,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

// buildRecord parses the market, outcome and specifier fields of line and
// stamps the processing time. Lines the Partitioner would have dropped are
// rejected.
func (w *Worker) buildRecord(key string, line RawLine) (Record, bool) {
	fields := SplitFields(line.Text)
	if len(fields) < MinFields {
		return Record{}, false
	}

	var specifiers string
	if len(fields) > fieldSpecifiers && strings.TrimSpace(fields[fieldSpecifiers]) != "" {
		specifiers = CleanField(fields[fieldSpecifiers])
	}

	return Record{
		PartitionKey: key,
		MarketID:     CleanField(fields[fieldMarketID]),
		OutcomeID:    CleanField(fields[fieldOutcomeID]),
		Specifiers:   specifiers,
		InsertedAt:   w.clock(),
	}, true
}
