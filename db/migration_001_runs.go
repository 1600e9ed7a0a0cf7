package db

import (
	"database/sql"
)

func init() {
	RegisterMigration(Migration{
		Version:     1,
		Description: "Launch journal",
		Up:          migration001_runs,
	})
}

func migration001_runs(database *sql.DB) error {
	_, err := database.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			process_id   TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL DEFAULT '',
			project_path TEXT NOT NULL,
			transport    TEXT NOT NULL,
			resumed      INTEGER NOT NULL DEFAULT 0,
			status       TEXT NOT NULL,
			started_at   INTEGER NOT NULL,
			ended_at     INTEGER,
			exit_code    INTEGER,
			cost_usd     REAL,
			error        TEXT NOT NULL DEFAULT ''
		)
	`)
	return err
}
