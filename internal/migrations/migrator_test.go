package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrator_RunAppliesAll(t *testing.T) {
	db := openTestDB(t)

	m := NewMigrator(db)
	for _, migration := range All() {
		m.Add(migration)
	}
	require.NoError(t, m.Run())

	version, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	// The hashes table must exist after migration.
	_, err = db.Exec("INSERT INTO hashes (tbl, k, field, value) VALUES ('t', 'k', 'f', 'v')")
	assert.NoError(t, err)
}

func TestMigrator_RunIsIdempotent(t *testing.T) {
	db := openTestDB(t)

	m := NewMigrator(db)
	for _, migration := range All() {
		m.Add(migration)
	}
	require.NoError(t, m.Run())
	require.NoError(t, m.Run())

	version, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestMigrator_AddSortsByVersion(t *testing.T) {
	db := openTestDB(t)

	var order []int64
	m := NewMigrator(db)
	for _, v := range []int64{3, 1, 2} {
		v := v
		m.Add(Migration{
			Version: v,
			Name:    "probe",
			Up: func(*sql.DB) error {
				order = append(order, v)
				return nil
			},
		})
	}
	require.NoError(t, m.Run())
	assert.Equal(t, []int64{1, 2, 3}, order)
}
