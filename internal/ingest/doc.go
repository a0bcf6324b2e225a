// Package ingest loads a pipe-delimited extract into a Store, numbering the
// records of every partition so that numbering resumes where the previous run
// stopped.
//
// # Data flow
//
//	OpenSource -> Partition -> Scheduler -> Worker (one per key) -> Store
//
//  1. [OpenSource] yields non-blank, non-header lines lazily.
//  2. [Partition] splits each line on '|' and groups lines by their first
//     field. Lines with fewer than three fields are dropped (or rejected with
//     [ErrMalformedLine] in strict mode).
//  3. [Scheduler] starts one task per partition key; at most P of them hold an
//     execution slot at a time.
//  4. [Worker] opens one Store transaction per partition, reads the stored
//     maximum sequence number, assigns sequence numbers from there and
//     original order from 1, and writes in batches. A failed batch rolls back
//     the whole partition.
//
// # Input format
//
//	MATCH_ID|MARKET_ID|OUTCOME_ID|SPECIFIERS
//	M1|MKT1|OUT1|'spec1'
//	M1|MKT1|OUT2
//
// Fields may be wrapped in single quotes, which are stripped. A missing or
// blank fourth field becomes "".
//
// # Errors
//
//   - [ErrSourceUnavailable]: the source cannot be opened or read. Fatal.
//   - [ErrMalformedLine]: strict mode only.
//   - [ErrPersistence]: matched by every [*PartitionError]; the partition was
//     rolled back. Other partitions still commit.
//
// Re-running the same extract appends new rows with new sequence numbers;
// nothing is deduplicated.
package ingest
