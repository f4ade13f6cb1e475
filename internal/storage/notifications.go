package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NotificationFreshnessMs bounds poll delivery: rows older than this are
// never delivered even while still pending.
const NotificationFreshnessMs = int64(60 * 60 * 1000)

type fanOutParams struct {
	ChatID      string
	CallerID    string
	CallerName  string
	ChannelName string
	MeetingID   string
	Token       string
	CallType    string
	CallUUID    string
	NowMs       int64
}

// fanOutNotifications upserts one pending notification per chat participant
// other than the caller, inside the caller's transaction. Participants whose
// user row has vanished are skipped with a warning rather than failing the
// whole fan-out.
func (s *Store) fanOutNotifications(ctx context.Context, tx *sql.Tx, p fanOutParams) (int, error) {
	participantsQ := `SELECT user_id FROM chat_participants WHERE chat_id = ? AND user_id != ?;`
	rows, err := tx.QueryContext(ctx, s.rebind(participantsQ), p.ChatID, p.CallerID)
	if err != nil {
		return 0, err
	}
	var recipients []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			rows.Close()
			return 0, err
		}
		recipients = append(recipients, userID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	notified := 0
	for _, recipientID := range recipients {
		var one int
		existsQ := `SELECT 1 FROM users WHERE id = ?;`
		if err := tx.QueryRowContext(ctx, s.rebind(existsQ), recipientID).Scan(&one); err != nil {
			if err == sql.ErrNoRows {
				s.logger.Warn("skipping call notification for missing user",
					"chatID", p.ChatID, "recipientID", recipientID, "callUUID", p.CallUUID)
				continue
			}
			return 0, err
		}

		err := s.upsertCallNotification(ctx, tx, CallNotificationRow{
			ChatID:      p.ChatID,
			CallerID:    p.CallerID,
			RecipientID: recipientID,
			Target:      NotificationTargetRecipient,
			CallerName:  p.CallerName,
			ChannelName: p.ChannelName,
			MeetingID:   p.MeetingID,
			Token:       p.Token,
			CallType:    p.CallType,
			CallUUID:    p.CallUUID,
			Status:      NotificationStatusPending,
			CreatedAtMs: p.NowMs,
		})
		if err != nil {
			return 0, err
		}
		notified++
	}

	return notified, nil
}

// upsertCallNotification inserts or overwrites the one row allowed per
// (chat, recipient, call_uuid). Re-notification refreshes the row instead of
// duplicating it.
func (s *Store) upsertCallNotification(ctx context.Context, tx *sql.Tx, n CallNotificationRow) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	q := `INSERT INTO call_notifications
			(id, chat_id, caller_id, recipient_id, target, caller_name, channel_name, meeting_id, token, call_type, call_uuid, status, created_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id, recipient_id, call_uuid) DO UPDATE SET
			caller_id = excluded.caller_id,
			target = excluded.target,
			caller_name = excluded.caller_name,
			channel_name = excluded.channel_name,
			meeting_id = excluded.meeting_id,
			token = excluded.token,
			call_type = excluded.call_type,
			status = excluded.status,
			created_at_ms = excluded.created_at_ms;`

	_, err := tx.ExecContext(ctx, s.rebind(q),
		n.ID, n.ChatID, n.CallerID, n.RecipientID, n.Target, n.CallerName,
		n.ChannelName, n.MeetingID, n.Token, n.CallType, n.CallUUID,
		n.Status, n.CreatedAtMs,
	)
	return err
}

// PollNotifications returns the user's deliverable notifications and flips
// exactly those rows to processed in the same transaction, so a concurrent
// second poll cannot redeliver them. Deliverable means: pending fan-out rows
// or caller-targeted acceptance echoes, parent call still active, younger
// than the freshness window.
func (s *Store) PollNotifications(ctx context.Context, userID string, nowMs int64) ([]CallNotificationRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("db not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	q := `SELECT n.id, n.chat_id, n.caller_id, n.recipient_id, n.target, n.caller_name, n.channel_name, n.meeting_id, n.token, n.call_type, n.call_uuid, n.status, n.created_at_ms
		FROM call_notifications n
		JOIN calls c ON c.chat_id = n.chat_id AND c.call_uuid = n.call_uuid AND c.status = ?
		WHERE n.recipient_id = ?
		AND n.status IN (?, ?)
		AND n.created_at_ms > ?
		ORDER BY n.created_at_ms;`

	rows, err := tx.QueryContext(ctx, s.rebind(q),
		CallStatusActive, userID,
		NotificationStatusPending, NotificationStatusCallAccepted,
		nowMs-NotificationFreshnessMs,
	)
	if err != nil {
		return nil, err
	}

	var out []CallNotificationRow
	for rows.Next() {
		var n CallNotificationRow
		if err := rows.Scan(
			&n.ID, &n.ChatID, &n.CallerID, &n.RecipientID, &n.Target, &n.CallerName,
			&n.ChannelName, &n.MeetingID, &n.Token, &n.CallType, &n.CallUUID,
			&n.Status, &n.CreatedAtMs,
		); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(out) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(out)), ", ")
		markQ := `UPDATE call_notifications SET status = ? WHERE id IN (` + placeholders + `);`
		args := make([]any, 0, len(out)+1)
		args = append(args, NotificationStatusProcessed)
		for _, n := range out {
			args = append(args, n.ID)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(markQ), args...); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return out, nil
}

// CleanStaleNotifications drops rows past the freshness window. Nothing in
// the request path depends on it; it exists for cron-style housekeeping.
func (s *Store) CleanStaleNotifications(ctx context.Context, nowMs int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("db not initialized")
	}

	q := `DELETE FROM call_notifications WHERE created_at_ms < ?;`
	res, err := s.db.ExecContext(ctx, s.rebind(q), nowMs-NotificationFreshnessMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
