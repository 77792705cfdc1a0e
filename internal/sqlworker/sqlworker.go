// Package sqlworker serializes all persistence operations onto one SQL
// connection. The event engine never awaits completion here — ops are
// fire-and-forget from its point of view, and correctness of matchmaking
// never depends on a DB acknowledgement reaching back to it.
package sqlworker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// OpKind distinguishes critical ops (account/state, never dropped) from
// non-critical ones (score updates, dropped first on overflow).
type OpKind int

const (
	OpUserUpsert OpKind = iota
	OpUserStatus
	OpScoreUpdate
	OpGameInsert
	OpEquipmentCRUD
	OpOptionCRUD
	OpReplayResult
)

func (k OpKind) Critical() bool {
	switch k {
	case OpScoreUpdate:
		return false
	default:
		return true
	}
}

// Op is one queued persistence operation. Exec receives a live *sql.DB and
// performs whatever statement(s) the op needs; it is supplied by the
// caller (the event engine) so sqlworker stays agnostic of schema details
// beyond the table layout it documents.
type Op struct {
	Kind OpKind
	Exec func(ctx context.Context, db *sql.DB) error
	// Desc is a short human label for logging, e.g. "score:u123:ng1v1".
	Desc string
}

// Config controls backoff and buffering.
type Config struct {
	DSN          string
	QueueDepth   int           // default 10000
	BackoffStart time.Duration // default 500ms
	BackoffCap   time.Duration // default 30s
}

func (c Config) withDefaults() Config {
	if c.QueueDepth <= 0 {
		c.QueueDepth = 10000
	}
	if c.BackoffStart <= 0 {
		c.BackoffStart = 500 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	return c
}

// Worker is the single-threaded SQL persistence worker.
type Worker struct {
	cfg    Config
	logger *zap.Logger
	db     *sql.DB
	queue  chan Op
	cb     *gobreaker.CircuitBreaker
}

func New(cfg Config, logger *zap.Logger) *Worker {
	cfg = cfg.withDefaults()
	w := &Worker{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "sql_worker")),
		queue:  make(chan Op, cfg.QueueDepth),
	}
	w.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sql",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.BackoffCap,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return w
}

// Submit enqueues op. On overflow, non-critical ops (score updates) are
// dropped with a warning; critical ops (account/state) block the caller —
// per spec, "account/state ops block" rather than being silently lost.
func (w *Worker) Submit(op Op) {
	select {
	case w.queue <- op:
		return
	default:
	}
	if !op.Kind.Critical() {
		w.logger.Warn("dropping non-critical op, queue full", zap.String("op", op.Desc))
		return
	}
	w.queue <- op
}

// Depth reports the current queue length.
func (w *Worker) Depth() int { return len(w.queue) }

// Run opens the DB connection and processes ops FIFO until ctx is
// cancelled. Ordering among ops submitted by one event-engine goroutine is
// preserved because there is exactly one consumer reading one channel.
func (w *Worker) Run(ctx context.Context) error {
	db, err := sql.Open("mysql", w.cfg.DSN)
	if err != nil {
		return err
	}
	w.db = db
	defer db.Close()

	backoff := w.cfg.BackoffStart
	for {
		select {
		case <-ctx.Done():
			w.drain(context.Background())
			return nil
		case op := <-w.queue:
			if err := w.execWithBreaker(ctx, op); err != nil {
				w.logger.Error("sql op failed", zap.String("op", op.Desc), zap.Error(err))
				if errors.Is(err, gobreaker.ErrOpenState) {
					select {
					case <-ctx.Done():
						return nil
					case <-time.After(backoff):
					}
					backoff *= 2
					if backoff > w.cfg.BackoffCap {
						backoff = w.cfg.BackoffCap
					}
					continue
				}
			} else {
				backoff = w.cfg.BackoffStart
			}
		}
	}
}

func (w *Worker) execWithBreaker(ctx context.Context, op Op) error {
	_, err := w.cb.Execute(func() (interface{}, error) {
		return nil, op.Exec(ctx, w.db)
	})
	return err
}

// drain flushes whatever is left in the queue on shutdown, best-effort,
// before the worker exits.
func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case op := <-w.queue:
			if err := op.Exec(ctx, w.db); err != nil {
				w.logger.Warn("drain op failed", zap.String("op", op.Desc), zap.Error(err))
			}
		default:
			return
		}
	}
}
