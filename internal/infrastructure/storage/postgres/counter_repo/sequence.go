// Package counter_repo provides the PostgreSQL implementation of the counter stores.
package counter_repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"erpcounter/internal/core/apperror"
	"erpcounter/internal/core/counter"
	"erpcounter/internal/infrastructure/storage/postgres"
)

const sequenceTable = "sequence_counters"

const upsertIncrementSuffix = "ON CONFLICT (sequence_code, scope_key, period_key, complement) " +
	"DO UPDATE SET current_value = " + sequenceTable + ".current_value + 1, updated_at = now() " +
	"RETURNING current_value"

const upsertSetSuffix = "ON CONFLICT (sequence_code, scope_key, period_key, complement) " +
	"DO UPDATE SET current_value = EXCLUDED.current_value, updated_at = now()"

// SequenceRepo implements counter.SequenceStore and counter.Admin over pgx.
type SequenceRepo struct {
	txm         *postgres.TxManager
	lockTimeout time.Duration
	txTimeout   time.Duration
}

// Ensure compile-time interface compliance.
var (
	_ counter.SequenceStore = (*SequenceRepo)(nil)
	_ counter.Admin         = (*SequenceRepo)(nil)
)

// NewSequenceRepo creates a sequence repository.
// lockTimeout bounds the wait on a counter row, txTimeout the whole increment.
func NewSequenceRepo(txm *postgres.TxManager, lockTimeout, txTimeout time.Duration) *SequenceRepo {
	return &SequenceRepo{txm: txm, lockTimeout: lockTimeout, txTimeout: txTimeout}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func keyWhere(key counter.Key) squirrel.Eq {
	return squirrel.Eq{
		"sequence_code": key.SequenceCode,
		"scope_key":     key.Scope,
		"period_key":    key.Period,
		"complement":    key.Complement,
	}
}

// incrementQuery inserts the first row with value 1 or bumps the existing one.
// The upsert takes the row lock, so concurrent callers queue behind it.
func incrementQuery(key counter.Key) squirrel.InsertBuilder {
	return Builder().
		Insert(sequenceTable).
		Columns("sequence_code", "scope_key", "period_key", "complement", "current_value").
		Values(key.SequenceCode, key.Scope, key.Period, key.Complement, 1).
		Suffix(upsertIncrementSuffix)
}

func currentValueQuery(key counter.Key) squirrel.SelectBuilder {
	return Builder().
		Select("current_value").
		From(sequenceTable).
		Where(keyWhere(key))
}

func setValueQuery(key counter.Key, value int64) squirrel.InsertBuilder {
	return Builder().
		Insert(sequenceTable).
		Columns("sequence_code", "scope_key", "period_key", "complement", "current_value").
		Values(key.SequenceCode, key.Scope, key.Period, key.Complement, value).
		Suffix(upsertSetSuffix)
}

// IncrementAndGet implements counter.SequenceStore.
func (r *SequenceRepo) IncrementAndGet(ctx context.Context, key counter.Key, maxDigits int) (string, error) {
	sql, args, err := incrementQuery(key).ToSql()
	if err != nil {
		return "", fmt.Errorf("build increment: %w", err)
	}

	var padded string
	opts := postgres.CounterTxOptions(r.lockTimeout, r.txTimeout)
	err = r.txm.RunInTransactionWithOptions(ctx, opts, func(ctx context.Context) error {
		var value int64
		if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&value); err != nil {
			return fmt.Errorf("increment %s: %w", key, err)
		}

		s, ok := counter.PadSequence(value, maxDigits)
		if !ok {
			// Returning an error rolls the upsert back.
			return apperror.NewCounterOverflow(key.SequenceCode, value, maxDigits)
		}
		padded = s
		return nil
	})
	if err != nil {
		return "", postgres.ClassifyError(sequenceTable, key.String(), "counter increment", err)
	}

	return padded, nil
}

// CurrentValue implements counter.Admin.
func (r *SequenceRepo) CurrentValue(ctx context.Context, key counter.Key) (int64, error) {
	sql, args, err := currentValueQuery(key).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var value int64
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, postgres.ClassifyError(sequenceTable, key.String(), "counter read", err)
	}
	return value, nil
}

// SetValue implements counter.Admin.
func (r *SequenceRepo) SetValue(ctx context.Context, key counter.Key, value int64) error {
	if value < 0 {
		return apperror.NewValidation("counter value must not be negative").
			WithDetail("sequence_code", key.SequenceCode).
			WithDetail("value", value)
	}

	sql, args, err := setValueQuery(key, value).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}

	opts := postgres.CounterTxOptions(r.lockTimeout, r.txTimeout)
	err = r.txm.RunInTransactionWithOptions(ctx, opts, func(ctx context.Context) error {
		_, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
		return err
	})
	if err != nil {
		return postgres.ClassifyError(sequenceTable, key.String(), "counter write", err)
	}
	return nil
}
