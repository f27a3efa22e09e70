// Package db embeds the goose migrations.
package db

import "embed"

// MigrationsDir is the directory inside Migrations holding the goose files.
const MigrationsDir = "migrations"

// Migrations holds the versioned SQL migrations applied at startup.
//
//go:embed migrations/*.sql
var Migrations embed.FS
