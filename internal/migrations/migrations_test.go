package migrations

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGetInitialSchema(t *testing.T) {
	schema, err := GetInitialSchema()
	require.NoError(t, err)

	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS rooms")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS messages")
	assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS uploads")
	assert.Contains(t, schema, "idx_messages_client_id")
}

func TestRun_AppliesOnce(t *testing.T) {
	db := openMemory(t)

	applied, err := Run(context.Background(), db)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial_schema"}, applied)

	applied, err = Run(context.Background(), db)
	require.NoError(t, err)
	assert.Empty(t, applied)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestList_OrdersAndSkipsNonSQL(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_second.sql": {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"m/001_first.sql":  {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"m/README.md":      {Data: []byte("notes")},
		"m/nested/x.sql":   {Data: []byte("ignored")},
	}

	migrations, err := list(fsys, "m")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "001_first", migrations[0].Version)
	assert.Equal(t, "002_second", migrations[1].Version)
}

func TestList_MissingDirectory(t *testing.T) {
	_, err := list(fstest.MapFS{}, "missing")
	assert.Error(t, err)
}

func TestApply_InvalidSQLRollsBack(t *testing.T) {
	db := openMemory(t)
	migrations := []Migration{
		{Version: "001_ok", SQL: "CREATE TABLE ok (id INTEGER);"},
		{Version: "002_bad", SQL: "CREATE TABLE broken ("},
	}

	applied, err := apply(context.Background(), db, migrations)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_bad")
	assert.Equal(t, []string{"001_ok"}, applied)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = '002_bad'").Scan(&count))
	assert.Zero(t, count)
}
