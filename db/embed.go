package db

import "embed"

// MigrationsFS holds the Postgres contact table migrations.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
