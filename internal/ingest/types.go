package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Field layout of a source line: partitionKey|marketId|outcomeId[|specifiers]
const (
	FieldDelimiter = "|"
	QuoteChar      = "'"

	fieldPartitionKey = 0
	fieldMarketID     = 1
	fieldOutcomeID    = 2
	fieldSpecifiers   = 3

	// MinFields is the number of fields a line needs to be accepted.
	MinFields = 3
)

var (
	// ErrSourceUnavailable is returned when the input resource cannot be opened or read.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrMalformedLine is returned in strict mode for lines with fewer than MinFields fields.
	ErrMalformedLine = errors.New("malformed line")

	// ErrPersistence marks failures inside a partition's unit of work.
	ErrPersistence = errors.New("persistence failure")
)

// RawLine is one accepted source line before parsing.
type RawLine struct {
	Number int    // 1-based physical line number in the source
	Text   string // line content without the trailing newline
}

// Record is the unit persisted to the Store.
type Record struct {
	PartitionKey   string
	MarketID       string
	OutcomeID      string
	Specifiers     string // never absent; "" when omitted
	InsertedAt     time.Time
	SequenceNumber int64
	OriginalOrder  int64
}

// Store is the durable destination of ingested records.
//
// Begin must return an isolated transaction; the Scheduler calls it
// concurrently from several goroutines, one per partition.
type Store interface {
	Begin(ctx context.Context, partitionKey string) (Tx, error)
	MinInsertionTimestamp(ctx context.Context) (time.Time, bool, error)
	MaxInsertionTimestamp(ctx context.Context) (time.Time, bool, error)
}

// Tx is one partition's atomic unit of work.
// SaveBatch must not retain the records slice; the caller reuses it.
// Rollback after a successful Commit is a no-op.
type Tx interface {
	MaxSequenceNumber(ctx context.Context, partitionKey string) (int64, bool, error)
	SaveBatch(ctx context.Context, records []Record) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// PartitionError reports a failed partition unit of work.
type PartitionError struct {
	Key string
	Op  string // begin, max_sequence, pacing, save_batch, commit
	Err error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %q: %s: %v", e.Key, e.Op, e.Err)
}

func (e *PartitionError) Unwrap() error { return e.Err }

// Is makes every PartitionError match ErrPersistence.
func (e *PartitionError) Is(target error) bool {
	return target == ErrPersistence
}

// PartitionResult summarises a committed partition.
type PartitionResult struct {
	Key           string
	Records       int
	Batches       int
	FirstSequence int64
	LastSequence  int64
	Duration      time.Duration
}
