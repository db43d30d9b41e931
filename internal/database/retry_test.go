package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/retry"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"wrapped busy", fmt.Errorf("exec: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), true},
		{"constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"locked text", errors.New("database is locked"), true},
		{"canceled", context.Canceled, false},
		{"app error", apperrors.NewNotFoundError("Room", "x"), false},
		{"other", errors.New("no such table: rooms"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableDBError(tt.err))
		})
	}
}

func newRetryDB() *Database {
	return &Database{backoff: retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   2,
		MaxAttempts:  3,
	})}
}

func TestRetryableDBOperation_RetriesBusy(t *testing.T) {
	d := newRetryDB()
	attempts := 0

	err := d.retryableDBOperation(context.Background(), "test", func() error {
		attempts++
		if attempts < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryableDBOperation_WrapsFinalFailure(t *testing.T) {
	d := newRetryDB()
	attempts := 0

	err := d.retryableDBOperation(context.Background(), "test", func() error {
		attempts++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	assert.Equal(t, 3, attempts)
	assert.Equal(t, apperrors.ErrCodeDatabaseQuery, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestRetryableDBOperation_AppErrorPassesThrough(t *testing.T) {
	d := newRetryDB()
	attempts := 0
	notFound := apperrors.NewNotFoundError("Room", "x")

	err := d.retryableDBOperation(context.Background(), "test", func() error {
		attempts++
		return notFound
	})
	assert.Same(t, notFound, err)
	assert.Equal(t, 1, attempts)
}
