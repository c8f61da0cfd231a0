package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"erpcounter/internal/core/apperror"
)

// PostgreSQL SQLSTATE codes the counter store reacts to.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
	sqlStateQueryCanceled        = "57014"
)

// ClassifyError maps driver errors to application errors.
// Serialization failures and deadlocks become concurrent modifications,
// lock and statement timeouts become timeouts. Application errors pass through.
func ClassifyError(entity string, id any, operation string, err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return apperror.NewConcurrentModification(entity, id).WithCause(err)
		case sqlStateLockNotAvailable, sqlStateQueryCanceled:
			return apperror.NewTimeout(operation).WithCause(err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return apperror.NewTimeout(operation).WithCause(err)
	}

	return apperror.NewDatabase(err)
}
