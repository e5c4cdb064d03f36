package matrix

// syncstore.go persists the mautrix sync position in the Hibiki SQLite
// database. Without it every restart replays old room history, and the bot
// would re-answer each !chat it already handled, burning quota and
// confusing rooms.

import (
	"context"
	"database/sql"
	"errors"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"
)

var _ mautrix.SyncStore = (*DBSyncStore)(nil)

// DBSyncStore is a mautrix.SyncStore over the matrix_sync_state table.
// Rows are keyed by (user_id, key); the only keys in practice are
// "filter_id" and "next_batch".
type DBSyncStore struct {
	db *sql.DB
}

// newDBSyncStore wraps an open database connection. The store migrations
// must already have been applied.
func newDBSyncStore(db *sql.DB) *DBSyncStore {
	return &DBSyncStore{db: db}
}

// SaveFilterID persists the Matrix event-filter ID for the given user.
func (s *DBSyncStore) SaveFilterID(ctx context.Context, userID id.UserID, filterID string) error {
	return s.put(ctx, userID.String(), "filter_id", filterID)
}

// LoadFilterID returns the persisted event-filter ID, or ("", nil) when
// none has been saved yet.
func (s *DBSyncStore) LoadFilterID(ctx context.Context, userID id.UserID) (string, error) {
	return s.get(ctx, userID.String(), "filter_id")
}

// SaveNextBatch persists the opaque /sync position token.
func (s *DBSyncStore) SaveNextBatch(ctx context.Context, userID id.UserID, nextBatchToken string) error {
	return s.put(ctx, userID.String(), "next_batch", nextBatchToken)
}

// LoadNextBatch returns the last saved /sync position token, or ("", nil)
// on first run.
func (s *DBSyncStore) LoadNextBatch(ctx context.Context, userID id.UserID) (string, error) {
	return s.get(ctx, userID.String(), "next_batch")
}

func (s *DBSyncStore) put(ctx context.Context, userID, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO matrix_sync_state (user_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET value = excluded.value
	`, userID, key, value)
	return err
}

func (s *DBSyncStore) get(ctx context.Context, userID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM matrix_sync_state WHERE user_id = ? AND key = ?
	`, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}
