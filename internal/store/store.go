// Package store implements the gateway's schema-versioned SQLite storage
// engine (spec.md §4.6): message/position/signal/telemetry persistence,
// the in-memory signal-bucket accumulator, mHeard statistics, and
// multi-tier retention. Migrations, writes, and reads run through
// mattn/go-sqlite3 + jmoiron/sqlx against a single WAL-mode file, since
// the spec hard-requires embedded SQLite rather than a client/server
// database.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/metrics"
)

// Store is the storage engine. It keeps two *sqlx.DB handles: a small
// write pool (serialized by SQLite's own file lock, further serialized by
// the writer worker in writer.go) and a single persistent read-only
// handle opened with query_only=on, so readers never contend with writers
// on SQLite's write lock (spec.md §4.6).
type Store struct {
	log     *zap.Logger
	writeDB *sqlx.DB
	readDB  *sqlx.DB
	path    string

	writer *writer
	accum  *bucketAccumulator
}

// Open opens (and migrates) the SQLite database file at path in WAL mode.
func Open(ctx context.Context, log *zap.Logger, path string) (*Store, error) {
	log = log.Named("store")

	writeDB, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("store: open write handle: %w", err)
	}
	writeDB.SetMaxOpenConns(4)

	if err := RunMigrations(ctx, writeDB, log); err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	readDB, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?_journal_mode=WAL&_query_only=on&mode=ro", path))
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("store: open read handle: %w", err)
	}
	readDB.SetMaxOpenConns(1)

	s := &Store{
		log:     log,
		writeDB: writeDB,
		readDB:  readDB,
		path:    path,
		accum:   newBucketAccumulator(),
	}
	s.writer = newWriter(log, writeDB)
	return s, nil
}

// Close flushes any open accumulator buckets and closes both handles
// (spec.md §5: "the shutdown path flushes all open accumulators").
func (s *Store) Close() error {
	s.writer.stop()
	if pending := s.accum.flushAll(); len(pending) > 0 {
		// The worker has exited by now, so a fresh one carries the final
		// bucket writes.
		ctx, cancel := context.WithCancel(context.Background())
		s.writer = newWriter(s.log, s.writeDB)
		go s.writer.run(ctx)
		for _, b := range pending {
			if err := s.insertSignalBucket(ctx, b); err != nil {
				s.log.Error("failed to flush signal bucket on close", zap.Error(err))
			}
		}
		s.writer.stop()
		cancel()
	}
	s.readDB.Close()
	return s.writeDB.Close()
}

// Run starts the writer worker's batching loop; it returns once ctx is
// cancelled and the writer has drained.
func (s *Store) Run(ctx context.Context) {
	s.writer.run(ctx)
}

func init() {
	metrics.RegisterStoreMetrics()
}
