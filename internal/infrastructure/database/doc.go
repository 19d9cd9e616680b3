// Package database provides SQLite persistence for Crossing Core.
//
// This package manages:
//   - Opening the SQLite database with WAL mode and busy timeout
//   - Schema migrations from embedded SQL files
//   - Connection health checks
//
// The database stores only the current and most recent crossing snapshot;
// it is not a history store. Time-series telemetry goes to InfluxDB.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
