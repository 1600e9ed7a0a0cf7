package db

// Config holds database configuration
type Config struct {
	// Path of the SQLite file; ":memory:" keeps everything in memory
	Path       string
	LogQueries bool
}
