package db

import (
	"database/sql"
)

func init() {
	RegisterMigration(Migration{
		Version:     2,
		Description: "Index runs by start time and session",
		Up:          migration002_runIndexes,
	})
}

func migration002_runIndexes(database *sql.DB) error {
	tx, err := database.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC)`); err != nil {
		return err
	}
	if _, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_session_id ON runs(session_id)`); err != nil {
		return err
	}
	return tx.Commit()
}
