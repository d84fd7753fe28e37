package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

func (db *DB) Migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS notifications (
			id            TEXT PRIMARY KEY,
			type          TEXT NOT NULL,
			category      TEXT NOT NULL,
			priority      TEXT NOT NULL,
			content       JSONB NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL,
			scheduled_for TIMESTAMPTZ,
			expires_at    TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS notification_recipients (
			notification_id TEXT REFERENCES notifications(id),
			user_id         TEXT NOT NULL,
			role            TEXT NOT NULL,
			channels        TEXT[] NOT NULL,
			read_at         TIMESTAMPTZ,
			actioned_at     TIMESTAMPTZ,
			PRIMARY KEY (notification_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS recipient_channel_state (
			notification_id     TEXT NOT NULL,
			user_id             TEXT NOT NULL,
			channel             TEXT NOT NULL,
			state               TEXT NOT NULL CHECK (state IN ('pending', 'sending', 'delivered', 'failed', 'permanently_failed', 'skipped')),
			attempts            INT NOT NULL DEFAULT 0,
			last_error          TEXT,
			provider_message_id TEXT,
			latency_ms          BIGINT,
			delivered_at        TIMESTAMPTZ,
			updated_at          TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (notification_id, user_id, channel)
		);

		CREATE TABLE IF NOT EXISTS delivery_queue (
			id              TEXT PRIMARY KEY,
			notification_id TEXT NOT NULL,
			recipient_id    TEXT NOT NULL,
			channels        TEXT[] NOT NULL,
			priority        TEXT NOT NULL,
			priority_rank   INT NOT NULL,
			scheduled_for   TIMESTAMPTZ NOT NULL,
			attempt_count   INT NOT NULL DEFAULT 0,
			leased_until    TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL,
			UNIQUE (notification_id, recipient_id)
		);

		CREATE TABLE IF NOT EXISTS delivery_stats (
			bucket         TIMESTAMPTZ NOT NULL,
			channel        TEXT NOT NULL,
			role           TEXT NOT NULL,
			status         TEXT NOT NULL,
			count          BIGINT NOT NULL DEFAULT 0,
			latency_sum_ms BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (bucket, channel, role, status)
		);

		CREATE TABLE IF NOT EXISTS engagement_stats (
			bucket TIMESTAMPTZ NOT NULL,
			kind   TEXT NOT NULL,
			count  BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (bucket, kind)
		);

		CREATE TABLE IF NOT EXISTS alert_history (
			id               TEXT PRIMARY KEY,
			type             TEXT NOT NULL,
			severity         TEXT NOT NULL,
			message          TEXT NOT NULL,
			payload          JSONB,
			occurrences      INT NOT NULL DEFAULT 1,
			escalation_level INT NOT NULL DEFAULT 0,
			acknowledged     BOOLEAN NOT NULL DEFAULT FALSE,
			acknowledged_by  TEXT,
			created_at       TIMESTAMPTZ NOT NULL,
			resolved_at      TIMESTAMPTZ NOT NULL,
			resolved_by      TEXT NOT NULL,
			resolution       TEXT
		);

		CREATE TABLE IF NOT EXISTS user_preferences (
			user_id     TEXT PRIMARY KEY,
			email       TEXT,
			phone       TEXT,
			channels    JSONB,
			categories  JSONB,
			quiet_hours JSONB
		);

		CREATE TABLE IF NOT EXISTS users (
			id    TEXT PRIMARY KEY,
			role  TEXT NOT NULL,
			email TEXT,
			phone TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_notifications_scheduled_for ON notifications(scheduled_for) WHERE scheduled_for IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_notifications_expires_at ON notifications(expires_at) WHERE expires_at IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_recipient_channel_state_provider ON recipient_channel_state(channel, provider_message_id);
		CREATE INDEX IF NOT EXISTS idx_delivery_queue_ready ON delivery_queue(scheduled_for, priority_rank);
		CREATE INDEX IF NOT EXISTS idx_alert_history_resolved_at ON alert_history(resolved_at);
		CREATE INDEX IF NOT EXISTS idx_users_role ON users(role);
	`

	_, err := db.Pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
