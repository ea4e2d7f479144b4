package migrations

import "database/sql"

// All returns the full migration set for the embedded store.
func All() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_hashes_table",
			Up: func(db *sql.DB) error {
				_, err := db.Exec(`
					CREATE TABLE IF NOT EXISTS hashes (
						tbl TEXT NOT NULL,
						k TEXT NOT NULL,
						field TEXT NOT NULL,
						value TEXT NOT NULL,
						PRIMARY KEY (tbl, k, field)
					)`)
				return err
			},
		},
		{
			Version: 2,
			Name:    "add_hash_lookup_index",
			Up: func(db *sql.DB) error {
				_, err := db.Exec(
					"CREATE INDEX IF NOT EXISTS idx_hashes_tbl_k ON hashes(tbl, k)")
				return err
			},
		},
	}
}
