package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
    id          UUID PRIMARY KEY,
    user_id     TEXT NOT NULL UNIQUE,
    version     BIGINT NOT NULL DEFAULT 0,
    doc         JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    id          UUID PRIMARY KEY,
    user_id     TEXT NOT NULL,
    type        TEXT NOT NULL,
    asset       TEXT NOT NULL,
    quantity    NUMERIC NOT NULL,
    price       NUMERIC NOT NULL,
    total_cost  NUMERIC NOT NULL,
    status      TEXT NOT NULL,
    executed_at TIMESTAMPTZ NOT NULL,
    version     BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS trades_user_idx ON trades (user_id);

CREATE TABLE IF NOT EXISTS positions (
    id            UUID PRIMARY KEY,
    user_id       TEXT NOT NULL,
    category      TEXT NOT NULL,
    asset         TEXT NOT NULL,
    side          TEXT NOT NULL,
    entry_price   NUMERIC NOT NULL,
    assets_amount NUMERIC NOT NULL,
    leverage      NUMERIC NOT NULL,
    margin_used   NUMERIC NOT NULL,
    status        TEXT NOT NULL,
    opened_at     TIMESTAMPTZ NOT NULL,
    expires_at    TIMESTAMPTZ,
    closed_at     TIMESTAMPTZ,
    profit_loss   NUMERIC NOT NULL DEFAULT 0,
    close_price   NUMERIC NOT NULL DEFAULT 0,
    version       BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS positions_status_idx ON positions (status);
CREATE INDEX IF NOT EXISTS positions_user_idx ON positions (user_id);

CREATE TABLE IF NOT EXISTS deposit_withdraw_requests (
    id             UUID PRIMARY KEY,
    user_id        TEXT NOT NULL,
    type           TEXT NOT NULL,
    amount         NUMERIC NOT NULL,
    currency       TEXT NOT NULL,
    network        TEXT NOT NULL DEFAULT '',
    wallet_address TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL,
    admin_note     TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL,
    version        BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS dw_requests_user_idx ON deposit_withdraw_requests (user_id);

CREATE TABLE IF NOT EXISTS transactions (
    id             UUID PRIMARY KEY,
    user_id        TEXT NOT NULL,
    type           TEXT NOT NULL,
    status         TEXT NOT NULL,
    amount         NUMERIC NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT '',
    from_asset     TEXT NOT NULL DEFAULT '',
    to_asset       TEXT NOT NULL DEFAULT '',
    from_amount    NUMERIC NOT NULL DEFAULT 0,
    to_amount      NUMERIC NOT NULL DEFAULT 0,
    exchange_rate  NUMERIC NOT NULL DEFAULT 0,
    transaction_id TEXT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, transaction_id)
);
CREATE INDEX IF NOT EXISTS transactions_user_idx ON transactions (user_id);
`

// EnsureSchema creates the tables used by the Postgres repositories.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
