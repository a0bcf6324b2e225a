package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/JonMunkholm/DBImport/internal/config"
	"github.com/JonMunkholm/DBImport/internal/ingest"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockKey_Deterministic(t *testing.T) {
	assert.Equal(t, lockKey("M1"), lockKey("M1"))
	assert.NotEqual(t, lockKey("M1"), lockKey("M2"))
}

func TestCopyRow_MatchesColumns(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	row := copyRow(ingest.Record{
		PartitionKey:   "M1",
		MarketID:       "MKT1",
		OutcomeID:      "OUT1",
		Specifiers:     "spec1",
		InsertedAt:     ts,
		SequenceNumber: 6,
		OriginalOrder:  1,
	})

	require.Len(t, row, len(copyColumns))
	assert.Equal(t, []any{"M1", "MKT1", "OUT1", "spec1", ts, int64(6), int64(1)}, row)
}

// Integration tests below need a disposable database:
//
//	TEST_DATABASE_URL=postgres://localhost/dbimport_test go test ./internal/store/postgres

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, config.DatabaseConfig{
		URL:             url,
		MaxConns:        8,
		MinConns:        0,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, New(pool, Options{}).Migrate(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE data RESTART IDENTITY")
	require.NoError(t, err)
	return pool
}

func records(key string, from, n int) []ingest.Record {
	out := make([]ingest.Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ingest.Record{
			PartitionKey:   key,
			MarketID:       fmt.Sprintf("MKT%d", i),
			OutcomeID:      fmt.Sprintf("OUT%d", i),
			InsertedAt:     time.Now(),
			SequenceNumber: int64(from + i),
			OriginalOrder:  int64(i + 1),
		})
	}
	return out
}

func TestStore_CommitAndMaxSequence(t *testing.T) {
	for _, mode := range []string{config.WriteModeCopy, config.WriteModeInsert} {
		t.Run(mode, func(t *testing.T) {
			pool := testPool(t)
			ctx := context.Background()
			store := New(pool, Options{WriteMode: mode, PartitionLock: true})

			tx, err := store.Begin(ctx, "M1")
			require.NoError(t, err)
			_, found, err := tx.MaxSequenceNumber(ctx, "M1")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, tx.SaveBatch(ctx, records("M1", 1, 3)))
			require.NoError(t, tx.Commit(ctx))
			require.NoError(t, tx.Rollback(ctx), "rollback after commit must be a no-op")

			tx, err = store.Begin(ctx, "M1")
			require.NoError(t, err)
			seq, found, err := tx.MaxSequenceNumber(ctx, "M1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, int64(3), seq)
			require.NoError(t, tx.Rollback(ctx))

			_, ok, err := store.MinInsertionTimestamp(ctx)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestStore_RollbackDiscardsBatches(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := New(pool, Options{WriteMode: config.WriteModeCopy})

	tx, err := store.Begin(ctx, "A")
	require.NoError(t, err)
	require.NoError(t, tx.SaveBatch(ctx, records("A", 1, 2)))
	require.NoError(t, tx.Rollback(ctx))

	var count int
	require.NoError(t, pool.QueryRow(ctx, "SELECT COUNT(*) FROM data WHERE match_id = 'A'").Scan(&count))
	assert.Zero(t, count)

	_, ok, err := store.MaxInsertionTimestamp(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ServiceRunEndToEnd(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := New(pool, Options{WriteMode: config.WriteModeCopy, PartitionLock: true})

	seed, err := store.Begin(ctx, "M1")
	require.NoError(t, err)
	require.NoError(t, seed.SaveBatch(ctx, records("M1", 1, 5)))
	require.NoError(t, seed.Commit(ctx))

	path := t.TempDir() + "/data.txt"
	require.NoError(t, os.WriteFile(path, []byte(
		"MATCH_ID|MARKET_ID|OUTCOME_ID|SPECIFIERS\n"+
			"M1|MKT1|OUT1|'spec1'\n"+
			"M1|MKT1|OUT2\n"+
			"M2|MKT9|OUT9|\n"), 0o644))

	cfg := &config.Config{
		Source: config.SourceConfig{Location: path, HeaderSentinel: ingest.DefaultHeaderSentinel},
		Ingest: config.IngestConfig{BatchSize: 10, Concurrency: 2},
	}
	report, err := ingest.NewService(store, cfg).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Summary.Records)

	rows, err := pool.Query(ctx,
		"SELECT match_id, specifiers, sequence_number, original_order FROM data WHERE id > 5 ORDER BY match_id, sequence_number")
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		key   string
		spec  string
		seq   int64
		order int64
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.key, &r.spec, &r.seq, &r.order))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []row{
		{"M1", "spec1", 6, 1},
		{"M1", "", 7, 2},
		{"M2", "", 1, 1},
	}, got)
}

func TestStore_BeginFailsOnCancelledContext(t *testing.T) {
	pool := testPool(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(pool, Options{}).Begin(ctx, "M1")
	require.Error(t, err)
}
