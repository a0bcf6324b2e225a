// Package memory implements ingest.Store in process memory.
//
// Transactions buffer their writes and apply them atomically on Commit, so a
// rolled back partition leaves no rows behind. It backs dry runs
// (STORE_DRIVER=memory) and tests.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/DBImport/internal/ingest"
)

// ErrTxDone is returned when a finished transaction is used again.
var ErrTxDone = errors.New("transaction already committed or rolled back")

// Row is a persisted record with its store-assigned id.
type Row struct {
	ID int64
	ingest.Record
}

// FailFunc decides whether a SaveBatch call fails. call is 1-based per transaction.
type FailFunc func(partitionKey string, call int) error

// Store is an in-memory ingest.Store.
type Store struct {
	mu     sync.RWMutex
	rows   []Row
	nextID int64
	failOn FailFunc
}

// New creates an empty Store.
func New() *Store {
	return &Store{nextID: 1}
}

// FailSaveBatch installs a hook used to inject SaveBatch failures.
func (s *Store) FailSaveBatch(fn FailFunc) {
	s.mu.Lock()
	s.failOn = fn
	s.mu.Unlock()
}

// Seed inserts committed rows directly, bypassing transactions.
func (s *Store) Seed(records ...ingest.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(records)
}

func (s *Store) appendLocked(records []ingest.Record) {
	for _, rec := range records {
		s.rows = append(s.rows, Row{ID: s.nextID, Record: rec})
		s.nextID++
	}
}

// Rows returns a copy of all committed rows in insertion order.
func (s *Store) Rows() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Row, len(s.rows))
	copy(out, s.rows)
	return out
}

// RowsFor returns the committed rows of one partition in insertion order.
func (s *Store) RowsFor(partitionKey string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Row
	for _, r := range s.rows {
		if r.PartitionKey == partitionKey {
			out = append(out, r)
		}
	}
	return out
}

// Begin starts a transaction.
func (s *Store) Begin(ctx context.Context, partitionKey string) (ingest.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &tx{store: s, key: partitionKey}, nil
}

// MinInsertionTimestamp returns the earliest committed InsertedAt.
func (s *Store) MinInsertionTimestamp(ctx context.Context) (time.Time, bool, error) {
	return s.extremeTimestamp(func(a, b time.Time) bool { return a.Before(b) })
}

// MaxInsertionTimestamp returns the latest committed InsertedAt.
func (s *Store) MaxInsertionTimestamp(ctx context.Context) (time.Time, bool, error) {
	return s.extremeTimestamp(func(a, b time.Time) bool { return a.After(b) })
}

func (s *Store) extremeTimestamp(better func(a, b time.Time) bool) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.rows) == 0 {
		return time.Time{}, false, nil
	}
	best := s.rows[0].InsertedAt
	for _, r := range s.rows[1:] {
		if better(r.InsertedAt, best) {
			best = r.InsertedAt
		}
	}
	return best, true, nil
}

type tx struct {
	store   *Store
	key     string
	pending []ingest.Record
	saves   int
	done    bool
}

// MaxSequenceNumber sees committed rows only.
func (t *tx) MaxSequenceNumber(ctx context.Context, partitionKey string) (int64, bool, error) {
	if t.done {
		return 0, false, ErrTxDone
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	var maxSeq int64
	found := false
	for _, r := range t.store.rows {
		if r.PartitionKey != partitionKey {
			continue
		}
		if !found || r.SequenceNumber > maxSeq {
			maxSeq = r.SequenceNumber
			found = true
		}
	}
	return maxSeq, found, nil
}

func (t *tx) SaveBatch(ctx context.Context, records []ingest.Record) error {
	if t.done {
		return ErrTxDone
	}
	t.saves++

	t.store.mu.RLock()
	failOn := t.store.failOn
	t.store.mu.RUnlock()
	if failOn != nil {
		if err := failOn(t.key, t.saves); err != nil {
			return err
		}
	}

	t.pending = append(t.pending, records...)
	return nil
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true

	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.appendLocked(t.pending)
	t.pending = nil
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.pending = nil
	return nil
}
