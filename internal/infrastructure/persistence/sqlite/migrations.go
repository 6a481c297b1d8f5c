package sqlite

import "embed"

// Migrations holds the schema files applied by the migrate command and at startup
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations
const MigrationsDir = "migrations"
