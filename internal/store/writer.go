package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/metrics"
)

// job is a single write operation dispatched to the writer worker. It runs
// inside a shared transaction alongside other jobs flushed in the same
// batch; result carries its outcome back to the submitting goroutine.
type job struct {
	op     string
	fn     func(*sqlx.Tx) error
	result chan error
}

// writer is the dedicated SQLite write worker referenced in spec.md §9
// ("asyncio.to_thread for SQLite -> dedicated writer worker"): all writes
// funnel through one goroutine so blocking disk I/O never contends with
// the read path, and jobs are opportunistically batched into a single
// transaction (ticker-based time-flush plus a size threshold).
type writer struct {
	log    *zap.Logger
	db     *sqlx.DB
	jobs   chan job
	stopCh chan struct{}
	doneCh chan struct{}
}

const (
	writerBatchSize     = 50
	writerFlushInterval = 25 * time.Millisecond
)

func newWriter(log *zap.Logger, db *sqlx.DB) *writer {
	return &writer{
		log:    log.Named("writer"),
		db:     db,
		jobs:   make(chan job, 256),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// submit enqueues fn for execution inside the writer's next transaction
// batch and blocks until it has run.
func (w *writer) submit(ctx context.Context, op string, fn func(*sqlx.Tx) error) error {
	j := job{op: op, fn: fn, result: make(chan error, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *writer) run(ctx context.Context) {
	ticker := time.NewTicker(writerFlushInterval)
	defer ticker.Stop()

	var batch []job

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		w.flushBatch(batch)
		metrics.StoreWriteDuration.WithLabelValues("batch").Observe(time.Since(start).Seconds())
		metrics.StoreBatchSize.WithLabelValues("batch").Observe(float64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			close(w.doneCh)
			return
		case <-w.stopCh:
			flush()
			close(w.doneCh)
			return
		case j := <-w.jobs:
			batch = append(batch, j)
			if len(batch) >= writerBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (w *writer) flushBatch(batch []job) {
	tx, err := w.db.Beginx()
	if err != nil {
		for _, j := range batch {
			j.result <- err
		}
		return
	}

	errs := make([]error, len(batch))
	for i, j := range batch {
		errs[i] = j.fn(tx)
	}

	commitErr := tx.Commit()
	if commitErr != nil {
		w.log.Error("write batch commit failed", zap.Error(commitErr))
	}
	for i, j := range batch {
		if errs[i] != nil {
			j.result <- errs[i]
		} else {
			j.result <- commitErr
		}
	}
}

func (w *writer) stop() {
	select {
	case <-w.doneCh:
		return
	default:
	}
	close(w.stopCh)
	<-w.doneCh
}

// execOne is a convenience for callers that just need sql.Result from a
// single statement executed inside the writer.
func execOne(ctx context.Context, w *writer, op, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := w.submit(ctx, op, func(tx *sqlx.Tx) error {
		var execErr error
		res, execErr = tx.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}
