// Package database provides the client's local SQLite store.
//
// The store caches the directory's device list and keeps a history of the
// snapshots the client emitted. It is optional: the sync engine works
// without it.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are pairs of YYYYMMDD_HHMMSS_name.up.sql / .down.sql files.
// They are additive: new columns must be nullable or carry a default.
package database
