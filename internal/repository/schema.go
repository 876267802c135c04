package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"just_us/pkg/logger"
)

// Migrate создает таблицы сообщений и пользователей, если их еще нет.
// Имена таблиц зависят от окружения (messages_dev / messages).
func Migrate(ctx context.Context, db *pgxpool.Pool, messagesTable, usersTable string, log logger.Logger) error {
	messages := pgx.Identifier{messagesTable}.Sanitize()
	users := pgx.Identifier{usersTable}.Sanitize()
	index := pgx.Identifier{messagesTable + "_created_at_id_idx"}.Sanitize()
	unseen := pgx.Identifier{messagesTable + "_unseen_idx"}.Sanitize()

	statements := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          UUID PRIMARY KEY,
			sender_id   TEXT NOT NULL,
			username    TEXT NOT NULL DEFAULT '',
			message     TEXT NOT NULL DEFAULT '',
			asset       JSONB,
			audio       JSONB,
			gif         JSONB,
			reaction    JSONB,
			is_seen     BOOLEAN NOT NULL DEFAULT FALSE,
			is_deleted  BOOLEAN NOT NULL DEFAULT FALSE,
			reply_to    JSONB,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			edited_at   TIMESTAMPTZ,
			updated_at  TIMESTAMPTZ
		)`, messages),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_at DESC, id DESC)`, index, messages),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (sender_id) WHERE NOT is_seen`, unseen, messages),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id              TEXT PRIMARY KEY,
			username        TEXT NOT NULL DEFAULT '',
			email           TEXT NOT NULL DEFAULT '',
			typing          BOOLEAN NOT NULL DEFAULT FALSE,
			typing_at       TIMESTAMPTZ,
			subscription    JSONB,
			subscriptions   JSONB,
			last_online_at  TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, users),
	}

	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			log.Error("Failed to apply schema", "error", err)
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	log.Info("Database schema is up to date", "messages_table", messagesTable, "users_table", usersTable)
	return nil
}
