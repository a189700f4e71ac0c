package postgres

import (
	"context"
	"fmt"
)

const createWalletsTable = `CREATE TABLE IF NOT EXISTS wallets (
	id         UUID PRIMARY KEY,
	balance    NUMERIC(20, 4) NOT NULL DEFAULT 0 CHECK (balance >= 0),
	version    BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Migrate creates the wallets table if it does not exist yet.
func Migrate(ctx context.Context, pool Pool) error {
	if _, err := pool.Exec(ctx, createWalletsTable); err != nil {
		return fmt.Errorf("create wallets table: %w", err)
	}
	return nil
}
