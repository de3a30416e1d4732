package database

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema_sqlite.sql
var sqliteSchema string

//go:embed schema_postgres.sql
var postgresSchema string

func Migrate(db *sql.DB, driver string) error {
	schema := sqliteSchema
	if driver == DriverPostgres {
		schema = postgresSchema
	}

	// one statement per Exec
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stripComments(stmt)) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// EnsureDailyUnique adds the index backing the daily dedupe policy. It fails
// if the table already holds duplicates for a (item, store, zipcode, day).
func EnsureDailyUnique(db *sql.DB) error {
	_, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_groceries_daily
		ON groceries (item, store, zipcode, price_day)`)
	if err != nil {
		return fmt.Errorf("create daily unique index: %w", err)
	}
	return nil
}

// SyncDailyUnique creates the daily index when enabled and drops it
// otherwise, so switching a database back to append-only accepts same-day
// duplicates again.
func SyncDailyUnique(db *sql.DB, enabled bool) error {
	if enabled {
		return EnsureDailyUnique(db)
	}
	if _, err := db.Exec(`DROP INDEX IF EXISTS ux_groceries_daily`); err != nil {
		return fmt.Errorf("drop daily unique index: %w", err)
	}
	return nil
}

func stripComments(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
