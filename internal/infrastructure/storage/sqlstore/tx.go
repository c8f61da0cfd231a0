package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"

	"erpcounter/internal/core/tx"
	"erpcounter/pkg/logger"
)

var _ tx.Manager = (*Store)(nil)

type txKey struct{}

type txState struct {
	tx *sqlx.Tx
}

var savepointSeq atomic.Uint64

// txOptions of one transaction run.
type txOptions struct {
	serializable bool
	lockTimeout  time.Duration
	timeout      time.Duration
}

// WithTx returns a context carrying an externally managed transaction.
// Store calls made with it join that transaction through a savepoint.
func WithTx(ctx context.Context, t *sqlx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, &txState{tx: t})
}

func getTx(ctx context.Context) *txState {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return st
	}
	return nil
}

// ext returns the transaction in ctx, or the database outside a transaction.
func (s *Store) ext(ctx context.Context) sqlx.ExtContext {
	if st := getTx(ctx); st != nil {
		return st.tx
	}
	return s.db
}

// RunInTransaction executes fn within a read-committed transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.runInTx(ctx, txOptions{}, fn)
}

func (s *Store) runInTx(ctx context.Context, opts txOptions, fn func(ctx context.Context) error) error {
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	if existing := getTx(ctx); existing != nil {
		return s.runInSavepoint(ctx, existing.tx, fn)
	}

	txOpts := &sql.TxOptions{}
	// go-sqlite3 serializes writers with BEGIN IMMEDIATE and ignores isolation levels.
	if opts.serializable && s.dialect == DialectPostgres {
		txOpts.Isolation = sql.LevelSerializable
	}

	t, err := s.db.BeginTxx(ctx, txOpts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if s.dialect == DialectPostgres {
		if err := setLocalTimeouts(ctx, t, opts); err != nil {
			_ = t.Rollback()
			return err
		}
	}

	if err := fn(context.WithValue(ctx, txKey{}, &txState{tx: t})); err != nil {
		if rbErr := t.Rollback(); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func setLocalTimeouts(ctx context.Context, t *sqlx.Tx, opts txOptions) error {
	if opts.timeout > 0 {
		if _, err := t.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.timeout.Milliseconds())); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}
	if opts.lockTimeout > 0 {
		if _, err := t.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", opts.lockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock_timeout: %w", err)
		}
	}
	return nil
}

func (s *Store) runInSavepoint(ctx context.Context, t *sqlx.Tx, fn func(ctx context.Context) error) error {
	name := fmt.Sprintf("sp_%d", savepointSeq.Add(1))
	if _, err := t.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("create savepoint: %w", err)
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := t.ExecContext(context.Background(), "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			logger.Error(ctx, "rollback to savepoint failed", "savepoint", name, "error", rbErr)
		}
		return err
	}

	if _, err := t.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}
