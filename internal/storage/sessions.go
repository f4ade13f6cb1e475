package storage

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
)

// SessionTTLMs is the sliding expiration window: issued sessions and every
// successful validation push expiry out by this much.
const SessionTTLMs = int64(60 * 60 * 1000)

// IssueSession replaces any sessions the user holds with a single fresh one.
// The delete and insert run in one transaction so two concurrent logins
// cannot leave two live sessions behind.
func (s *Store) IssueSession(ctx context.Context, userID string, nowMs int64) (SessionRow, error) {
	if s == nil || s.db == nil {
		return SessionRow{}, fmt.Errorf("db not initialized")
	}

	token, err := generateSessionToken()
	if err != nil {
		return SessionRow{}, err
	}

	row := SessionRow{
		Token:       token,
		UserID:      userID,
		CreatedAtMs: nowMs,
		ExpiresAtMs: nowMs + SessionTTLMs,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return SessionRow{}, err
	}
	defer func() { _ = tx.Rollback() }()

	deleteQ := `DELETE FROM sessions WHERE user_id = ?;`
	if _, err := tx.ExecContext(ctx, s.rebind(deleteQ), userID); err != nil {
		return SessionRow{}, err
	}

	insertQ := `INSERT INTO sessions (token, user_id, created_at_ms, expires_at_ms)
		VALUES (?, ?, ?, ?);`
	if _, err := tx.ExecContext(ctx, s.rebind(insertQ),
		row.Token, row.UserID, row.CreatedAtMs, row.ExpiresAtMs,
	); err != nil {
		return SessionRow{}, err
	}

	if err := tx.Commit(); err != nil {
		return SessionRow{}, err
	}

	return row, nil
}

// ValidateSession resolves a token to its user and slides the expiry forward.
// The extension is a single guarded UPDATE so a concurrently expiring session
// cannot be revived.
func (s *Store) ValidateSession(ctx context.Context, token string, nowMs int64) (SessionRow, error) {
	if s == nil || s.db == nil {
		return SessionRow{}, fmt.Errorf("db not initialized")
	}
	if token == "" {
		return SessionRow{}, ErrSessionInvalid
	}

	newExpiry := nowMs + SessionTTLMs

	updateQ := `UPDATE sessions SET expires_at_ms = ? WHERE token = ? AND expires_at_ms >= ?;`
	res, err := s.db.ExecContext(ctx, s.rebind(updateQ), newExpiry, token, nowMs)
	if err != nil {
		return SessionRow{}, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return SessionRow{}, err
	}
	if rows == 0 {
		// Distinguish an expired session from an unknown token.
		existsQ := `SELECT 1 FROM sessions WHERE token = ?;`
		var one int
		switch err := s.db.QueryRowContext(ctx, s.rebind(existsQ), token).Scan(&one); err {
		case nil:
			return SessionRow{}, ErrSessionExpired
		case sql.ErrNoRows:
			return SessionRow{}, ErrSessionInvalid
		default:
			return SessionRow{}, err
		}
	}

	selectQ := `SELECT token, user_id, created_at_ms, expires_at_ms FROM sessions WHERE token = ?;`
	var row SessionRow
	if err := s.db.QueryRowContext(ctx, s.rebind(selectQ), token).Scan(
		&row.Token, &row.UserID, &row.CreatedAtMs, &row.ExpiresAtMs,
	); err != nil {
		if err == sql.ErrNoRows {
			return SessionRow{}, ErrSessionInvalid
		}
		return SessionRow{}, err
	}

	return row, nil
}

func (s *Store) RevokeSession(ctx context.Context, token string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db not initialized")
	}

	q := `DELETE FROM sessions WHERE token = ?;`
	_, err := s.db.ExecContext(ctx, s.rebind(q), token)
	return err
}

func (s *Store) RevokeUserSessions(ctx context.Context, userID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("db not initialized")
	}

	q := `DELETE FROM sessions WHERE user_id = ?;`
	_, err := s.db.ExecContext(ctx, s.rebind(q), userID)
	return err
}

func (s *Store) CleanExpiredSessions(ctx context.Context, nowMs int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("db not initialized")
	}

	q := `DELETE FROM sessions WHERE expires_at_ms < ?;`
	result, err := s.db.ExecContext(ctx, s.rebind(q), nowMs)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func generateSessionToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
