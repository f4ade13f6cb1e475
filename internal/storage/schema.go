package storage

import (
	"context"
	"database/sql"
)

func initSchema(ctx context.Context, db *sql.DB, driver string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			created_at_ms BIGINT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_username ON users(username);`,

		`CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			created_at_ms BIGINT NOT NULL,
			expires_at_ms BIGINT NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at_ms);`,

		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL DEFAULT 'direct',
			name TEXT,
			creator_id TEXT NOT NULL,
			last_message_text TEXT,
			last_message_at_ms BIGINT,
			created_at_ms BIGINT NOT NULL,
			FOREIGN KEY(creator_id) REFERENCES users(id)
		);`,

		`CREATE TABLE IF NOT EXISTS chat_participants (
			chat_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			joined_at_ms BIGINT NOT NULL,
			PRIMARY KEY(chat_id, user_id),
			FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE,
			FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_participants_user ON chat_participants(user_id);`,

		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			sender_id TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at_ms BIGINT NOT NULL,
			FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE,
			FOREIGN KEY(sender_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_created_at_ms ON messages(chat_id, created_at_ms);`,

		`CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			initiator_id TEXT NOT NULL,
			channel_name TEXT NOT NULL,
			meeting_id TEXT NOT NULL,
			call_type TEXT NOT NULL,
			call_uuid TEXT NOT NULL,
			token TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			started_at_ms BIGINT NOT NULL,
			ended_at_ms BIGINT,
			FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE,
			FOREIGN KEY(initiator_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_chat_status ON calls(chat_id, status);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_calls_one_active
			ON calls(chat_id) WHERE status = 'active';`,
		`CREATE INDEX IF NOT EXISTS idx_calls_initiator_started ON calls(initiator_id, started_at_ms);`,

		`CREATE TABLE IF NOT EXISTS call_notifications (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL,
			caller_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			target TEXT NOT NULL DEFAULT 'recipient',
			caller_name TEXT NOT NULL,
			channel_name TEXT NOT NULL,
			meeting_id TEXT NOT NULL,
			token TEXT NOT NULL,
			call_type TEXT NOT NULL,
			call_uuid TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at_ms BIGINT NOT NULL,
			FOREIGN KEY(chat_id) REFERENCES chats(id) ON DELETE CASCADE
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_call_notifications_delivery
			ON call_notifications(chat_id, recipient_id, call_uuid);`,
		`CREATE INDEX IF NOT EXISTS idx_call_notifications_recipient_status
			ON call_notifications(recipient_id, status);`,

		`CREATE TABLE IF NOT EXISTS rate_limits (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			created_at_ms BIGINT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limits_user_action_time
			ON rate_limits(user_id, action, created_at_ms);`,

		`CREATE TABLE IF NOT EXISTS rate_limit_config (
			action TEXT PRIMARY KEY,
			max_per_minute INTEGER NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return seedRateLimitConfig(ctx, db, driver)
}

// Per-action write budgets; anything unlisted gets a defaultRateLimit row
// inserted at admission time.
var defaultRateLimits = map[string]int{
	ActionSendMessage:    20,
	ActionCreateChat:     5,
	ActionUploadMedia:    10,
	ActionRegister:       5,
	ActionLogin:          10,
	ActionUpdateProfile:  5,
	ActionSetTyping:      20,
	ActionSetNickname:    10,
	ActionForwardMessage: 10,
}

func seedRateLimitConfig(ctx context.Context, db *sql.DB, driver string) error {
	q := `INSERT INTO rate_limit_config (action, max_per_minute) VALUES (?, ?)
		ON CONFLICT (action) DO NOTHING;`
	for action, limit := range defaultRateLimits {
		if _, err := db.ExecContext(ctx, rebindQuery(driver, q), action, limit); err != nil {
			return err
		}
	}
	return nil
}
