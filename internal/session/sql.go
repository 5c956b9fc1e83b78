package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	selectSessionQuery = `SELECT telegram_user_id, conversation_state, last_city, updated_at
		FROM user_sessions WHERE telegram_user_id = ?`
	upsertSessionQuery = `INSERT INTO user_sessions (telegram_user_id, conversation_state, last_city, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (telegram_user_id) DO UPDATE SET
			conversation_state = excluded.conversation_state,
			last_city = excluded.last_city,
			updated_at = excluded.updated_at`
)

// sessionRow mirrors the user_sessions table; updated_at is stored as unix milliseconds
// so the same schema works on PostgreSQL and SQLite.
type sessionRow struct {
	TelegramUserID int64  `db:"telegram_user_id"`
	State          string `db:"conversation_state"`
	LastCity       string `db:"last_city"`
	UpdatedAt      int64  `db:"updated_at"`
}

// SQLStore keeps sessions in the user_sessions table of PostgreSQL or SQLite.
type SQLStore struct {
	db         *sqlx.DB
	selectStmt string
	upsertStmt string
}

// NewSQLStore wraps an open sqlx handle. The schema must already be migrated.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{
		db:         db,
		selectStmt: db.Rebind(selectSessionQuery),
		upsertStmt: db.Rebind(upsertSessionQuery),
	}
}

// Get loads the session row for userID.
func (s *SQLStore) Get(ctx context.Context, userID int64) (UserSession, bool, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.selectStmt, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return UserSession{}, false, nil
	}
	if err != nil {
		return UserSession{}, false, fmt.Errorf("select session %d: %w", userID, err)
	}
	return UserSession{
		TelegramUserID: row.TelegramUserID,
		State:          State(row.State),
		LastCity:       row.LastCity,
		UpdatedAt:      time.UnixMilli(row.UpdatedAt).UTC(),
	}, true, nil
}

// Save upserts the session row.
func (s *SQLStore) Save(ctx context.Context, sess UserSession) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	updated := sess.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	if _, err := s.db.ExecContext(ctx, s.upsertStmt,
		sess.TelegramUserID, string(sess.State), sess.LastCity, updated.UnixMilli(),
	); err != nil {
		return fmt.Errorf("upsert session %d: %w", sess.TelegramUserID, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
