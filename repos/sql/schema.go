package sql

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
       id          UUID PRIMARY KEY,
       seq         BIGSERIAL NOT NULL,
       title       TEXT NOT NULL,
       description TEXT,
       due_date    TIMESTAMPTZ,
       status      TEXT NOT NULL,
       created_by  TEXT NOT NULL,
       assigned_to TEXT NOT NULL,
       created_at  TIMESTAMPTZ NOT NULL
     )`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks (created_at DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (LOWER(status))`,
}

// EnsureSchema creates the tasks table and its indexes if they are missing.
func (repo *PostgresRepo) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := repo.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure tasks schema: %w", err)
		}
	}
	return nil
}
