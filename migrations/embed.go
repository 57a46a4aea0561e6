// Package migrations holds the versioned SQL schema applied by db.RunMigrations.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
