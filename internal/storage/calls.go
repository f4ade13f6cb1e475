package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

type StartCallParams struct {
	ChatID      string
	InitiatorID string
	CallerName  string
	ChannelName string
	MeetingID   string
	Token       string
	CallType    string
	CallUUID    string
	NowMs       int64
}

// StartCall force-preempts any active call on the chat and fans out pending
// notifications to every other participant, all inside one transaction.
// The room and capability token must already exist; nothing here talks to
// the provider. Returns the new call and the number of recipients notified.
func (s *Store) StartCall(ctx context.Context, p StartCallParams) (CallRow, int, error) {
	if s == nil || s.db == nil {
		return CallRow{}, 0, fmt.Errorf("db not initialized")
	}
	if p.ChatID == "" || p.InitiatorID == "" || p.MeetingID == "" || p.CallUUID == "" {
		return CallRow{}, 0, fmt.Errorf("missing required fields")
	}

	call := CallRow{
		ID:          uuid.NewString(),
		ChatID:      p.ChatID,
		InitiatorID: p.InitiatorID,
		ChannelName: p.ChannelName,
		MeetingID:   p.MeetingID,
		CallType:    p.CallType,
		CallUUID:    p.CallUUID,
		Token:       p.Token,
		Status:      CallStatusActive,
		StartedAtMs: p.NowMs,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CallRow{}, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	// Last start wins: drop the prior active call and every notification
	// still hanging off this chat so no stale pending rows survive.
	dropNotifQ := `DELETE FROM call_notifications WHERE chat_id = ?;`
	if _, err := tx.ExecContext(ctx, s.rebind(dropNotifQ), p.ChatID); err != nil {
		return CallRow{}, 0, err
	}
	dropCallQ := `DELETE FROM calls WHERE chat_id = ? AND status = ?;`
	if _, err := tx.ExecContext(ctx, s.rebind(dropCallQ), p.ChatID, CallStatusActive); err != nil {
		return CallRow{}, 0, err
	}

	// idx_calls_one_active allows a single active row per chat. A concurrent
	// start whose insert is invisible to the delete above still collides
	// here, and the upsert resolves it last-start-wins.
	insertQ := `INSERT INTO calls (id, chat_id, initiator_id, channel_name, meeting_id, call_type, call_uuid, token, status, started_at_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (chat_id) WHERE status = 'active' DO UPDATE SET
			id = excluded.id,
			initiator_id = excluded.initiator_id,
			channel_name = excluded.channel_name,
			meeting_id = excluded.meeting_id,
			call_type = excluded.call_type,
			call_uuid = excluded.call_uuid,
			token = excluded.token,
			started_at_ms = excluded.started_at_ms,
			ended_at_ms = NULL;`
	if _, err := tx.ExecContext(ctx, s.rebind(insertQ),
		call.ID, call.ChatID, call.InitiatorID, call.ChannelName, call.MeetingID,
		call.CallType, call.CallUUID, call.Token, call.Status, call.StartedAtMs,
	); err != nil {
		return CallRow{}, 0, err
	}

	notified, err := s.fanOutNotifications(ctx, tx, fanOutParams{
		ChatID:      p.ChatID,
		CallerID:    p.InitiatorID,
		CallerName:  p.CallerName,
		ChannelName: p.ChannelName,
		MeetingID:   p.MeetingID,
		Token:       p.Token,
		CallType:    p.CallType,
		CallUUID:    p.CallUUID,
		NowMs:       p.NowMs,
	})
	if err != nil {
		return CallRow{}, 0, err
	}

	if err := tx.Commit(); err != nil {
		return CallRow{}, 0, err
	}

	return call, notified, nil
}

// AcceptCall marks the recipient's notification accepted and queues a
// caller-targeted acceptance notice so the initiator's next poll sees it.
func (s *Store) AcceptCall(ctx context.Context, chatID, meetingID, callUUID, recipientID string, nowMs int64) (CallRow, error) {
	if s == nil || s.db == nil {
		return CallRow{}, fmt.Errorf("db not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CallRow{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Read inside the transaction so an end committing between lookup and
	// echo insert cannot leave an orphaned call_accepted row behind.
	call, err := s.getActiveCall(ctx, tx, chatID, meetingID, callUUID)
	if err != nil {
		return CallRow{}, err
	}

	acceptQ := `UPDATE call_notifications SET status = ?
		WHERE chat_id = ? AND recipient_id = ? AND call_uuid = ?;`
	if _, err := tx.ExecContext(ctx, s.rebind(acceptQ),
		NotificationStatusAccepted, chatID, recipientID, callUUID,
	); err != nil {
		return CallRow{}, err
	}

	// Acceptance echo: addressed to the call's initiator, with the acceptor
	// recorded in the caller_id slot.
	echo := CallNotificationRow{
		ChatID:      chatID,
		CallerID:    recipientID,
		RecipientID: call.InitiatorID,
		Target:      NotificationTargetCaller,
		CallerName:  "System",
		ChannelName: call.ChannelName,
		MeetingID:   call.MeetingID,
		Token:       call.Token,
		CallType:    call.CallType,
		CallUUID:    callUUID,
		Status:      NotificationStatusCallAccepted,
		CreatedAtMs: nowMs,
	}
	if err := s.upsertCallNotification(ctx, tx, echo); err != nil {
		return CallRow{}, err
	}

	if err := tx.Commit(); err != nil {
		return CallRow{}, err
	}

	return call, nil
}

// EndCall flips the matching active call to ended and deletes its
// notifications. Ending a call that is not active is a no-op success, so
// either party can call it during error recovery.
func (s *Store) EndCall(ctx context.Context, chatID, callUUID string, nowMs int64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	endQ := `UPDATE calls SET status = ?, ended_at_ms = ?
		WHERE chat_id = ? AND call_uuid = ? AND status = ?;`
	if _, err := tx.ExecContext(ctx, s.rebind(endQ),
		CallStatusEnded, nowMs, chatID, callUUID, CallStatusActive,
	); err != nil {
		return err
	}

	dropQ := `DELETE FROM call_notifications WHERE chat_id = ? AND call_uuid = ?;`
	if _, err := tx.ExecContext(ctx, s.rebind(dropQ), chatID, callUUID); err != nil {
		return err
	}

	return tx.Commit()
}

type NotifyCallParams struct {
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

// NotifyCall is the fan-out half of StartCall without touching the calls
// table, for rooms that already exist out-of-band.
func (s *Store) NotifyCall(ctx context.Context, p NotifyCallParams) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("db not initialized")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	notified, err := s.fanOutNotifications(ctx, tx, fanOutParams(p))
	if err != nil {
		return 0, err
	}
	if notified == 0 {
		return 0, ErrNoRecipients
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return notified, nil
}

func (s *Store) GetActiveCall(ctx context.Context, chatID string) (CallRow, error) {
	if s == nil || s.db == nil {
		return CallRow{}, fmt.Errorf("db not initialized")
	}

	q := `SELECT id, chat_id, initiator_id, channel_name, meeting_id, call_type, call_uuid, token, status, started_at_ms, ended_at_ms
		FROM calls WHERE chat_id = ? AND status = ?;`

	row := s.db.QueryRowContext(ctx, s.rebind(q), chatID, CallStatusActive)
	call, err := scanCall(row)
	if err == sql.ErrNoRows {
		return CallRow{}, ErrNoActiveCall
	}
	return call, err
}

func (s *Store) getActiveCall(ctx context.Context, q rowQuerier, chatID, meetingID, callUUID string) (CallRow, error) {
	query := `SELECT id, chat_id, initiator_id, channel_name, meeting_id, call_type, call_uuid, token, status, started_at_ms, ended_at_ms
		FROM calls WHERE chat_id = ? AND meeting_id = ? AND call_uuid = ? AND status = ?;`

	row := q.QueryRowContext(ctx, s.rebind(query), chatID, meetingID, callUUID, CallStatusActive)
	call, err := scanCall(row)
	if err == sql.ErrNoRows {
		return CallRow{}, ErrNoActiveCall
	}
	return call, err
}

func (s *Store) ListCallHistory(ctx context.Context, userID string, limit int) ([]CallRow, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("db not initialized")
	}
	if limit <= 0 || limit > 50 {
		limit = 50
	}

	q := `SELECT id, chat_id, initiator_id, channel_name, meeting_id, call_type, call_uuid, token, status, started_at_ms, ended_at_ms
		FROM calls WHERE initiator_id = ? ORDER BY started_at_ms DESC LIMIT ?;`

	rows, err := s.db.QueryContext(ctx, s.rebind(q), userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallRow
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, call)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanCall(r rowScanner) (CallRow, error) {
	var call CallRow
	var endedAt sql.NullInt64
	if err := r.Scan(
		&call.ID, &call.ChatID, &call.InitiatorID, &call.ChannelName, &call.MeetingID,
		&call.CallType, &call.CallUUID, &call.Token, &call.Status, &call.StartedAtMs, &endedAt,
	); err != nil {
		return CallRow{}, err
	}
	if endedAt.Valid {
		call.EndedAtMs = &endedAt.Int64
	}
	return call, nil
}
