// Package migrations embeds the SQL schema for the tracker's SQLite store.
//
// Files are named YYYYMMDD_HHMMSS_description.sql and are applied once, in
// order, by database.DB.Migrate:
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package migrations

import "embed"

// FS holds every migration file at its root.
//
//go:embed *.sql
var FS embed.FS
