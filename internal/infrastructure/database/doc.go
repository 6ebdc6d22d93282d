// Package database provides SQLite connectivity for the ISY node service.
//
// It opens the database with WAL mode and a busy timeout, and applies the
// schema migrations registered by the migrations package. The only table
// the service owns is node_status_history.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with a
// matching .down.sql.
package database
