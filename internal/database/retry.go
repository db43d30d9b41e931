package database

import (
	"context"
	"errors"
	"strings"

	apperrors "studyroom/internal/errors"

	"github.com/mattn/go-sqlite3"
)

// retryableDBOperation runs operation under the database backoff policy and
// wraps a final failure as a database AppError. AppErrors returned by the
// operation itself pass through unchanged.
func (d *Database) retryableDBOperation(ctx context.Context, operationName string, operation func() error) error {
	err := d.backoff.RetryWithPredicate(ctx, operation, isRetryableDBError)
	if err == nil {
		return nil
	}
	if _, ok := apperrors.As(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	appErr := apperrors.NewDatabaseError(operationName, err)
	appErr.Retryable = isRetryableDBError(err)
	return appErr
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if _, ok := apperrors.As(err); ok {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked || sqliteErr.Code == sqlite3.ErrIoErr
	}

	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") || strings.Contains(errStr, "disk I/O error")
}
