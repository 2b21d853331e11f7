package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/satchelwiki/satchel/internal/model"
)

// PutSession inserts a session row. Session ids are opaque to the store.
func (s *Store) PutSession(ctx context.Context, sess model.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, expiry)
		VALUES (?, ?, ?)
	`, sess.ID, sess.UserID, sess.Expiry.Unix())
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id. Returns model.NotFoundError for
// unknown ids. Expiry checking is the caller's concern.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	var expiry int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, expiry FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.UserID, &expiry)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("session", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.Expiry = time.Unix(expiry, 0)
	return &sess, nil
}

// DeleteSession removes a session. No-op for unknown ids (logout must be
// idempotent).
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions purges every session that expired at or before
// now. Returns the number purged.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expiry <= ?`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions: rows affected: %w", err)
	}
	return affected, nil
}
