package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// CreateChat inserts a chat and its full participant set in one transaction.
// The creator is always a participant.
func (s *Store) CreateChat(ctx context.Context, creatorID string, name *string, participantIDs []string, nowMs int64) (ChatRow, error) {
	if s == nil || s.db == nil {
		return ChatRow{}, fmt.Errorf("db not initialized")
	}
	if creatorID == "" {
		return ChatRow{}, fmt.Errorf("missing required fields")
	}

	members := map[string]bool{creatorID: true}
	for _, id := range participantIDs {
		if id != "" {
			members[id] = true
		}
	}

	kind := ChatKindDirect
	if name != nil || len(members) > 2 {
		kind = ChatKindGroup
	}

	row := ChatRow{
		ID:          uuid.NewString(),
		Kind:        kind,
		Name:        name,
		CreatorID:   creatorID,
		CreatedAtMs: nowMs,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ChatRow{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var nameVal any
	if name != nil {
		nameVal = *name
	}

	chatQ := `INSERT INTO chats (id, kind, name, creator_id, created_at_ms)
		VALUES (?, ?, ?, ?, ?);`
	if _, err := tx.ExecContext(ctx, s.rebind(chatQ),
		row.ID, row.Kind, nameVal, row.CreatorID, row.CreatedAtMs,
	); err != nil {
		return ChatRow{}, err
	}

	memberQ := `INSERT INTO chat_participants (chat_id, user_id, joined_at_ms) VALUES (?, ?, ?);`
	for userID := range members {
		if _, err := tx.ExecContext(ctx, s.rebind(memberQ), row.ID, userID, nowMs); err != nil {
			return ChatRow{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return ChatRow{}, err
	}

	return row, nil
}

func (s *Store) GetChatByID(ctx context.Context, chatID string) (ChatRow, error) {
	if s == nil || s.db == nil {
		return ChatRow{}, fmt.Errorf("db not initialized")
	}

	q := `SELECT id, kind, name, creator_id, last_message_text, last_message_at_ms, created_at_ms
		FROM chats WHERE id = ?;`

	var row ChatRow
	var name, lastText sql.NullString
	var lastAt sql.NullInt64
	if err := s.db.QueryRowContext(ctx, s.rebind(q), chatID).Scan(
		&row.ID, &row.Kind, &name, &row.CreatorID, &lastText, &lastAt, &row.CreatedAtMs,
	); err != nil {
		if err == sql.ErrNoRows {
			return ChatRow{}, fmt.Errorf("%w: chat", ErrNotFound)
		}
		return ChatRow{}, err
	}
	if name.Valid {
		row.Name = &name.String
	}
	if lastText.Valid {
		row.LastMessageText = &lastText.String
	}
	if lastAt.Valid {
		row.LastMessageAtMs = &lastAt.Int64
	}

	return row, nil
}

func (s *Store) ListChatsForUser(ctx context.Context, userID string) ([]ChatRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("db not initialized")
	}

	q := `SELECT c.id, c.kind, c.name, c.creator_id, c.last_message_text, c.last_message_at_ms, c.created_at_ms
		FROM chats c
		JOIN chat_participants p ON p.chat_id = c.id
		WHERE p.user_id = ?
		ORDER BY COALESCE(c.last_message_at_ms, c.created_at_ms) DESC;`

	rows, err := s.db.QueryContext(ctx, s.rebind(q), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatRow
	for rows.Next() {
		var row ChatRow
		var name, lastText sql.NullString
		var lastAt sql.NullInt64
		if err := rows.Scan(
			&row.ID, &row.Kind, &name, &row.CreatorID, &lastText, &lastAt, &row.CreatedAtMs,
		); err != nil {
			return nil, err
		}
		if name.Valid {
			row.Name = &name.String
		}
		if lastText.Valid {
			row.LastMessageText = &lastText.String
		}
		if lastAt.Valid {
			row.LastMessageAtMs = &lastAt.Int64
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// IsChatParticipant is the membership query the call endpoints gate on.
func (s *Store) IsChatParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("db not initialized")
	}

	q := `SELECT 1 FROM chat_participants WHERE chat_id = ? AND user_id = ?;`
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(q), chatID, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListChatParticipants(ctx context.Context, chatID string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("db not initialized")
	}

	q := `SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY joined_at_ms;`
	rows, err := s.db.QueryContext(ctx, s.rebind(q), chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		out = append(out, userID)
	}
	return out, rows.Err()
}
