package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash string, nowMs int64) (UserRow, error) {
	if s == nil || s.db == nil {
		return UserRow{}, fmt.Errorf("db not initialized")
	}
	if username == "" || passwordHash == "" {
		return UserRow{}, fmt.Errorf("missing required fields")
	}

	row := UserRow{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAtMs:  nowMs,
	}

	q := `INSERT INTO users (id, username, email, password_hash, created_at_ms)
		VALUES (?, ?, ?, ?, ?);`
	if _, err := s.db.ExecContext(ctx, s.rebind(q),
		row.ID, row.Username, row.Email, row.PasswordHash, row.CreatedAtMs,
	); err != nil {
		if isUniqueViolation(err) {
			return UserRow{}, ErrUsernameExists
		}
		return UserRow{}, err
	}

	return row, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (UserRow, error) {
	if s == nil || s.db == nil {
		return UserRow{}, fmt.Errorf("db not initialized")
	}

	q := `SELECT id, username, email, password_hash, created_at_ms FROM users WHERE id = ?;`

	var row UserRow
	if err := s.db.QueryRowContext(ctx, s.rebind(q), userID).Scan(
		&row.ID, &row.Username, &row.Email, &row.PasswordHash, &row.CreatedAtMs,
	); err != nil {
		if err == sql.ErrNoRows {
			return UserRow{}, fmt.Errorf("%w: user", ErrNotFound)
		}
		return UserRow{}, err
	}

	return row, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (UserRow, error) {
	if s == nil || s.db == nil {
		return UserRow{}, fmt.Errorf("db not initialized")
	}

	q := `SELECT id, username, email, password_hash, created_at_ms FROM users WHERE username = ?;`

	var row UserRow
	if err := s.db.QueryRowContext(ctx, s.rebind(q), username).Scan(
		&row.ID, &row.Username, &row.Email, &row.PasswordHash, &row.CreatedAtMs,
	); err != nil {
		if err == sql.ErrNoRows {
			return UserRow{}, fmt.Errorf("%w: user", ErrNotFound)
		}
		return UserRow{}, err
	}

	return row, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// sqlite: "UNIQUE constraint failed", postgres: SQLSTATE 23505.
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "23505")
}
