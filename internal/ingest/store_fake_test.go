package ingest

import (
	"context"
	"sync"
	"time"
)

// fakeStore is a minimal Store for package tests. Committed records are kept
// per partition; SaveBatch calls are recorded per transaction.
type fakeStore struct {
	mu        sync.Mutex
	committed map[string][]Record
	seeded    map[string]int64
	batches   map[string][]int // batch sizes per partition, last transaction
	rollbacks map[string]int

	beginErr map[string]error
	saveErr  func(key string, call int) error
	rangeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		committed: make(map[string][]Record),
		seeded:    make(map[string]int64),
		batches:   make(map[string][]int),
		rollbacks: make(map[string]int),
		beginErr:  make(map[string]error),
	}
}

func (s *fakeStore) seed(key string, maxSeq int64) {
	s.mu.Lock()
	s.seeded[key] = maxSeq
	s.mu.Unlock()
}

func (s *fakeStore) records(key string) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.committed[key]...)
}

func (s *fakeStore) batchSizes(key string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.batches[key]...)
}

func (s *fakeStore) rollbackCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbacks[key]
}

func (s *fakeStore) Begin(ctx context.Context, key string) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginErr[key]; err != nil {
		return nil, err
	}
	s.batches[key] = nil
	return &fakeTx{store: s, key: key}, nil
}

func (s *fakeStore) MinInsertionTimestamp(ctx context.Context) (time.Time, bool, error) {
	return s.extreme(func(a, b time.Time) bool { return a.Before(b) })
}

func (s *fakeStore) MaxInsertionTimestamp(ctx context.Context) (time.Time, bool, error) {
	return s.extreme(func(a, b time.Time) bool { return a.After(b) })
}

func (s *fakeStore) extreme(better func(a, b time.Time) bool) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rangeErr != nil {
		return time.Time{}, false, s.rangeErr
	}
	var best time.Time
	found := false
	for _, recs := range s.committed {
		for _, r := range recs {
			if !found || better(r.InsertedAt, best) {
				best = r.InsertedAt
				found = true
			}
		}
	}
	return best, found, nil
}

type fakeTx struct {
	store   *fakeStore
	key     string
	pending []Record
	calls   int
	done    bool
}

func (t *fakeTx) MaxSequenceNumber(ctx context.Context, key string) (int64, bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	maxSeq, found := t.store.seeded[key]
	for _, r := range t.store.committed[key] {
		if !found || r.SequenceNumber > maxSeq {
			maxSeq = r.SequenceNumber
			found = true
		}
	}
	return maxSeq, found, nil
}

func (t *fakeTx) SaveBatch(ctx context.Context, records []Record) error {
	t.calls++
	if fail := t.store.saveErr; fail != nil {
		if err := fail(t.key, t.calls); err != nil {
			return err
		}
	}
	t.store.mu.Lock()
	t.store.batches[t.key] = append(t.store.batches[t.key], len(records))
	t.store.mu.Unlock()

	t.pending = append(t.pending, records...)
	return nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.done = true
	t.store.mu.Lock()
	t.store.committed[t.key] = append(t.store.committed[t.key], t.pending...)
	t.store.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.rollbacks[t.key]++
	t.store.mu.Unlock()
	return nil
}
