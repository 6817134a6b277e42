package db

import "embed"

// MigrationFS holds the schema for subjects, change requests, OTP challenges, admin alerts
// and audit logs. Applied by internal/db/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
