package sqlstore

import (
	"context"
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"erpcounter/internal/core/apperror"
)

// classifyError maps lib/pq and go-sqlite3 errors to application errors.
func classifyError(entity string, id any, operation string, err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return apperror.NewConcurrentModification(entity, id).WithCause(err)
		case "55P03", "57014":
			return apperror.NewTimeout(operation).WithCause(err)
		}
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return apperror.NewTimeout(operation).WithCause(err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewTimeout(operation).WithCause(err)
	}

	return apperror.NewDatabase(err)
}
