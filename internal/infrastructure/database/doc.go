// Package database provides SQLite connectivity for the IoT core.
//
// It owns the connection (WAL mode, foreign keys, single connection pool),
// the embedded schema migrations, and the RunInTx helper every
// read-modify-write path goes through.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Timestamps are stored as fixed-width RFC3339 UTC text with nanoseconds;
// use FormatTime and ParseTime.
package database
