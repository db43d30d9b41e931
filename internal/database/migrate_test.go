package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"studyroom/internal/migrations"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_FreshFileGetsEverySchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "studyroom.db")
	require.NoError(t, os.WriteFile(dbPath, nil, 0o600))

	all, err := migrations.List()
	require.NoError(t, err)

	applied, err := Migrate(context.Background(), dbPath)
	require.NoError(t, err)
	assert.Len(t, applied, len(all))

	again, err := Migrate(context.Background(), dbPath)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestMigrate_AfterNewIsNoop(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "studyroom.db")
	db, err := New(dbPath)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	applied, err := Migrate(context.Background(), dbPath)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestMigrate_MissingFile(t *testing.T) {
	_, err := Migrate(context.Background(), filepath.Join(t.TempDir(), "absent.db"))
	assert.Error(t, err)
}
