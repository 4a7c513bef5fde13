package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
)

const transactionsTable = "transactions"

func schemaStatements(dialectName string) []string {
	idCol := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if dialectName == dialect.Postgres {
		idCol = "id BIGSERIAL PRIMARY KEY"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS transactions (
	` + idCol + `,
	date TEXT NOT NULL,
	type TEXT NOT NULL,
	category TEXT NOT NULL,
	vendor_or_customer TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	amount TEXT NOT NULL,
	tax_amount TEXT NOT NULL DEFAULT '0',
	source_document TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	notes TEXT NOT NULL DEFAULT '',
	flags TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	modified_at TEXT NOT NULL
)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS transactions_fingerprint_key ON transactions (fingerprint)`,
		`CREATE INDEX IF NOT EXISTS transactions_date_idx ON transactions (date)`,
	}
}

// Migrate creates the schema if it does not exist. Safe to run on every start.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(d.Dialect) {
		if err := d.Driver.Exec(ctx, stmt, []any{}, nil); err != nil {
			d.logger.Error("migration failed", "error", err)
			return fmt.Errorf("migrate: %w", err)
		}
	}
	d.logger.Debug("schema up to date", "dialect", d.Dialect)
	return nil
}
