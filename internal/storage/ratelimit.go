package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const (
	// RateLimitWindowMs is the trailing window writes are counted over.
	RateLimitWindowMs = int64(60 * 1000)

	// defaultRateLimit seeds the config row for any action not listed in
	// defaultRateLimits.
	defaultRateLimit = 5

	// RateLimitAnonymous is the principal for unauthenticated writes
	// (register, login).
	RateLimitAnonymous = "anonymous"
)

// AdmitAction counts the user's recorded writes for the action within the
// trailing window and, if under the configured limit, records this one and
// admits it. Count and insert share a transaction so two concurrent requests
// at the boundary cannot both slip under the limit.
func (s *Store) AdmitAction(ctx context.Context, userID, action string, nowMs int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("db not initialized")
	}
	if userID == "" {
		userID = RateLimitAnonymous
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	// Every action gets a config row, so the row below always exists and can
	// act as the per-action admission lock.
	ensureQ := `INSERT INTO rate_limit_config (action, max_per_minute) VALUES (?, ?)
		ON CONFLICT (action) DO NOTHING;`
	if _, err := tx.ExecContext(ctx, s.rebind(ensureQ), action, defaultRateLimit); err != nil {
		return false, err
	}

	// On postgres the row lock serializes concurrent admissions for the
	// action, so two requests cannot both count N and slip under the limit.
	// sqlite serializes on its single connection.
	limitQ := `SELECT max_per_minute FROM rate_limit_config WHERE action = ?`
	if s.driver == "pgx" {
		limitQ += ` FOR UPDATE`
	}
	limitQ += `;`

	var limit int
	if err := tx.QueryRowContext(ctx, s.rebind(limitQ), action).Scan(&limit); err != nil {
		return false, err
	}

	var attempts int
	countQ := `SELECT COUNT(*) FROM rate_limits WHERE user_id = ? AND action = ? AND created_at_ms > ?;`
	if err := tx.QueryRowContext(ctx, s.rebind(countQ), userID, action, nowMs-RateLimitWindowMs).Scan(&attempts); err != nil {
		return false, err
	}

	if attempts >= limit {
		s.logger.Warn("rate limit exceeded", "userID", userID, "action", action, "attempts", attempts, "limit", limit)
		return false, nil
	}

	insertQ := `INSERT INTO rate_limits (id, user_id, action, created_at_ms) VALUES (?, ?, ?, ?);`
	if _, err := tx.ExecContext(ctx, s.rebind(insertQ), uuid.NewString(), userID, action, nowMs); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// CleanRateLimitRecords prunes records that have aged out of every possible
// window. The table is append-only on the request path.
func (s *Store) CleanRateLimitRecords(ctx context.Context, nowMs int64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("db not initialized")
	}

	q := `DELETE FROM rate_limits WHERE created_at_ms <= ?;`
	res, err := s.db.ExecContext(ctx, s.rebind(q), nowMs-RateLimitWindowMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
