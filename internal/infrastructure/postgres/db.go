// Package postgres implements the repositories on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS inventory (
	product_id TEXT PRIMARY KEY,
	quantity   INT NOT NULL,
	locked     INT NOT NULL DEFAULT 0,
	threshold  INT NOT NULL DEFAULT 5,
	version    BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL,
	CHECK (locked >= 0 AND locked <= quantity)
);

CREATE TABLE IF NOT EXISTS orders (
	id           TEXT PRIMARY KEY,
	order_no     TEXT NOT NULL UNIQUE,
	user_id      TEXT NOT NULL,
	store_id     TEXT NOT NULL,
	total_amount NUMERIC(12,2) NOT NULL,
	status       TEXT NOT NULL,
	remark       TEXT NOT NULL DEFAULT '',
	payment_id   TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS order_items (
	order_id   TEXT NOT NULL REFERENCES orders(id),
	idx        INT NOT NULL,
	product_id TEXT NOT NULL,
	quantity   INT NOT NULL,
	unit_price NUMERIC(12,2) NOT NULL,
	PRIMARY KEY (order_id, idx)
);

CREATE TABLE IF NOT EXISTS order_logs (
	order_id     TEXT NOT NULL REFERENCES orders(id),
	idx          INT NOT NULL,
	event        TEXT NOT NULL,
	after_status TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	actor_id     TEXT NOT NULL DEFAULT '',
	at           TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (order_id, idx)
);

CREATE TABLE IF NOT EXISTS payments (
	id              TEXT PRIMARY KEY,
	payment_no      TEXT NOT NULL DEFAULT '',
	user_id         TEXT NOT NULL,
	order_ids       TEXT[] NOT NULL,
	amount          NUMERIC(12,2) NOT NULL,
	status          TEXT NOT NULL,
	method          TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL,
	requested_at    TIMESTAMPTZ,
	transacted_at   TIMESTAMPTZ,
	trade_no        TEXT NOT NULL DEFAULT '',
	refunded_amount NUMERIC(12,2) NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS payments_pending_idx ON payments (status) WHERE status = 'PENDING';

CREATE TABLE IF NOT EXISTS cart_entries (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	product_id TEXT NOT NULL,
	quantity   INT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (user_id, product_id)
);
`

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: ensure schema: %w", err)
	}
	return nil
}
