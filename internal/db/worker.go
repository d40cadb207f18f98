package db

import (
	"context"
	"database/sql"
)

// TxFn is a unit of work executed inside a single write transaction.
type TxFn func(ctx context.Context, tx *sql.Tx) error

type txRequest struct {
	ctx   context.Context
	fn    TxFn
	reply chan error
}

// Worker serializes every write transaction onto one goroutine.  Two
// callers mutate the database — the scan pipeline and the management
// API — and funneling both through here makes read-then-write pairs
// (such as "movement recorded" + "flag flipped") a single critical
// section without any locking inside the stores.
type Worker struct {
	db       *sql.DB
	requests chan txRequest
	done     chan struct{}
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:       db,
		requests: make(chan txRequest, 128),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) Close() {
	close(w.requests)
	<-w.done
}

// Do runs fn in its own transaction on the worker goroutine and returns
// the commit (or rollback) error.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	reply := make(chan error, 1)
	req := txRequest{ctx: ctx, fn: fn, reply: reply}

	select {
	case w.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	// A caller whose context expires while the request is queued or
	// running gives up here; the worker still finishes the transaction
	// and the result lands in the buffered reply channel, discarded.
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run() {
	defer close(w.done)

	for req := range w.requests {
		tx, err := w.db.BeginTx(req.ctx, nil)
		if err != nil {
			req.reply <- err
			continue
		}

		if err := req.fn(req.ctx, tx); err != nil {
			_ = tx.Rollback()
			req.reply <- err
			continue
		}

		req.reply <- tx.Commit()
	}
}
