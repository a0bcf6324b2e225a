// Package postgres implements ingest.Store on PostgreSQL using pgx.
//
// Each partition runs in its own database transaction. Batches are written
// with the COPY protocol by default, or as pipelined INSERTs. When partition
// locking is enabled the transaction takes an advisory lock keyed by the
// partition key, so two importers never number the same partition at once.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/DBImport/internal/config"
	"github.com/JonMunkholm/DBImport/internal/ingest"
	"github.com/cespare/xxhash/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// TableName is the table records are written to.
const TableName = "data"

// copyColumns lists the COPY target columns in the order copyRow returns values.
var copyColumns = []string{
	"match_id", "market_id", "outcome_id", "specifiers",
	"date_insert", "sequence_number", "original_order",
}

const (
	insertSQL = `INSERT INTO data
		(match_id, market_id, outcome_id, specifiers, date_insert, sequence_number, original_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	maxSequenceSQL = `SELECT MAX(sequence_number) FROM data WHERE match_id = $1`
	minInsertSQL   = `SELECT MIN(date_insert) FROM data`
	maxInsertSQL   = `SELECT MAX(date_insert) FROM data`
	lockSQL        = `SELECT pg_advisory_xact_lock($1)`
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Options controls how the Store writes.
type Options struct {
	WriteMode     string // config.WriteModeCopy or config.WriteModeInsert
	PartitionLock bool
}

// Store is a pgx-backed ingest.Store.
type Store struct {
	pool *pgxpool.Pool
	opts Options
}

// New creates a Store on an existing pool.
func New(pool *pgxpool.Pool, opts Options) *Store {
	if opts.WriteMode == "" {
		opts.WriteMode = config.WriteModeCopy
	}
	return &Store{pool: pool, opts: opts}
}

// Connect parses the database URL, applies pool settings and verifies the
// connection.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate creates the data table and its indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Begin opens the partition's transaction, taking the advisory lock if enabled.
func (s *Store) Begin(ctx context.Context, partitionKey string) (ingest.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	if s.opts.PartitionLock {
		if _, err := tx.Exec(ctx, lockSQL, lockKey(partitionKey)); err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("lock partition: %w", err)
		}
	}

	return &pgTx{tx: tx, writeMode: s.opts.WriteMode}, nil
}

// MinInsertionTimestamp returns the earliest date_insert.
func (s *Store) MinInsertionTimestamp(ctx context.Context) (time.Time, bool, error) {
	return queryTimestamp(ctx, s.pool, minInsertSQL)
}

// MaxInsertionTimestamp returns the latest date_insert.
func (s *Store) MaxInsertionTimestamp(ctx context.Context) (time.Time, bool, error) {
	return queryTimestamp(ctx, s.pool, maxInsertSQL)
}

func queryTimestamp(ctx context.Context, db DBTX, query string) (time.Time, bool, error) {
	var ts pgtype.Timestamptz
	if err := db.QueryRow(ctx, query).Scan(&ts); err != nil {
		return time.Time{}, false, err
	}
	return ts.Time, ts.Valid, nil
}

func queryMaxSequence(ctx context.Context, db DBTX, partitionKey string) (int64, bool, error) {
	var seq pgtype.Int8
	if err := db.QueryRow(ctx, maxSequenceSQL, partitionKey).Scan(&seq); err != nil {
		return 0, false, err
	}
	return seq.Int64, seq.Valid, nil
}

// lockKey maps a partition key onto the bigint advisory lock space.
func lockKey(partitionKey string) int64 {
	return int64(xxhash.Sum64String(partitionKey))
}

func copyRow(rec ingest.Record) []any {
	return []any{
		rec.PartitionKey,
		rec.MarketID,
		rec.OutcomeID,
		rec.Specifiers,
		rec.InsertedAt,
		rec.SequenceNumber,
		rec.OriginalOrder,
	}
}

type pgTx struct {
	tx        pgx.Tx
	writeMode string
}

func (t *pgTx) MaxSequenceNumber(ctx context.Context, partitionKey string) (int64, bool, error) {
	seq, ok, err := queryMaxSequence(ctx, t.tx, partitionKey)
	if err != nil {
		return 0, false, fmt.Errorf("max sequence number: %w", err)
	}
	return seq, ok, nil
}

func (t *pgTx) SaveBatch(ctx context.Context, records []ingest.Record) error {
	if len(records) == 0 {
		return nil
	}
	if t.writeMode == config.WriteModeInsert {
		return t.insertBatch(ctx, records)
	}
	return t.copyBatch(ctx, records)
}

func (t *pgTx) copyBatch(ctx context.Context, records []ingest.Record) error {
	n, err := t.tx.CopyFrom(ctx, pgx.Identifier{TableName}, copyColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			return copyRow(records[i]), nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy %d records: %w", len(records), err)
	}
	if n != int64(len(records)) {
		return fmt.Errorf("copy: wrote %d of %d records", n, len(records))
	}
	return nil
}

func (t *pgTx) insertBatch(ctx context.Context, records []ingest.Record) error {
	b := &pgx.Batch{}
	for _, rec := range records {
		b.Queue(insertSQL, copyRow(rec)...)
	}

	br := t.tx.SendBatch(ctx, b)
	for i := range records {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert record %d of %d: %w", i+1, len(records), err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}
	return nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback is a no-op after Commit; pgx reports that case as ErrTxClosed.
func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return fmt.Errorf("rollback: %w", err)
}
