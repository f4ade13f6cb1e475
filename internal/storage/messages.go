package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateMessage inserts a message and refreshes the chat's last-message
// denormalization in the same transaction. The caller must already be a
// participant; the check lives here so no write path can skip it.
func (s *Store) CreateMessage(ctx context.Context, chatID, senderID, text string, nowMs int64) (MessageRow, error) {
	if s == nil || s.db == nil {
		return MessageRow{}, fmt.Errorf("db not initialized")
	}
	if chatID == "" || senderID == "" || text == "" {
		return MessageRow{}, fmt.Errorf("missing required fields")
	}

	member, err := s.IsChatParticipant(ctx, chatID, senderID)
	if err != nil {
		return MessageRow{}, err
	}
	if !member {
		return MessageRow{}, ErrNotParticipant
	}

	row := MessageRow{
		ID:          uuid.NewString(),
		ChatID:      chatID,
		SenderID:    senderID,
		Text:        text,
		CreatedAtMs: nowMs,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return MessageRow{}, err
	}
	defer func() { _ = tx.Rollback() }()

	insertQ := `INSERT INTO messages (id, chat_id, sender_id, text, created_at_ms)
		VALUES (?, ?, ?, ?, ?);`
	if _, err := tx.ExecContext(ctx, s.rebind(insertQ),
		row.ID, row.ChatID, row.SenderID, row.Text, row.CreatedAtMs,
	); err != nil {
		return MessageRow{}, err
	}

	updateQ := `UPDATE chats SET last_message_text = ?, last_message_at_ms = ? WHERE id = ?;`
	if _, err := tx.ExecContext(ctx, s.rebind(updateQ), row.Text, nowMs, chatID); err != nil {
		return MessageRow{}, err
	}

	if err := tx.Commit(); err != nil {
		return MessageRow{}, err
	}

	return row, nil
}

// ListMessages returns up to limit messages for the chat, newest first,
// optionally strictly older than beforeID's message.
func (s *Store) ListMessages(ctx context.Context, chatID, userID string, limit int, beforeID string) ([]MessageRow, bool, error) {
	if s == nil || s.db == nil {
		return nil, false, fmt.Errorf("db not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	member, err := s.IsChatParticipant(ctx, chatID, userID)
	if err != nil {
		return nil, false, err
	}
	if !member {
		return nil, false, ErrNotParticipant
	}

	args := []any{chatID}
	q := `SELECT id, chat_id, sender_id, text, created_at_ms FROM messages WHERE chat_id = ?`
	if beforeID != "" {
		q += ` AND created_at_ms < (SELECT created_at_ms FROM messages WHERE id = ?)`
		args = append(args, beforeID)
	}
	q += ` ORDER BY created_at_ms DESC LIMIT ?;`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var row MessageRow
		if err := rows.Scan(&row.ID, &row.ChatID, &row.SenderID, &row.Text, &row.CreatedAtMs); err != nil {
			return nil, false, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	hasMore := false
	if len(out) > limit {
		hasMore = true
		out = out[:limit]
	}
	return out, hasMore, nil
}
