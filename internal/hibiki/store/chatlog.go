package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ChatRecord is one row of the chat log.
type ChatRecord struct {
	ID               int64
	Timestamp        time.Time
	TraceID          string
	UserID           string
	PromptChars      int
	ReplyChars       int
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
	Result           string // "success" or "error"
	ErrorMessage     string
}

// RecordChat appends one entry to the chat log.
func (s *Store) RecordChat(ctx context.Context, rec ChatRecord) error {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var errMsg sql.NullString
	if rec.ErrorMessage != "" {
		errMsg = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_log (ts, trace_id, user_id, prompt_chars, reply_chars,
		                      prompt_tokens, completion_tokens, latency_ms, result, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ts, rec.TraceID, rec.UserID, rec.PromptChars, rec.ReplyChars,
		rec.PromptTokens, rec.CompletionTokens, rec.LatencyMS, rec.Result, errMsg)

	if err != nil {
		return fmt.Errorf("failed to write chat log: %w", err)
	}
	return nil
}

// ChatCount returns the total number of chat log entries.
func (s *Store) ChatCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_log").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count chat log: %w", err)
	}
	return n, nil
}

// RecentChats returns the most recent chat log entries, newest first.
func (s *Store) RecentChats(ctx context.Context, limit int) ([]*ChatRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, user_id, prompt_chars, reply_chars,
		       prompt_tokens, completion_tokens, latency_ms, result, error_message
		FROM chat_log
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat log: %w", err)
	}
	defer rows.Close()

	var records []*ChatRecord
	for rows.Next() {
		var rec ChatRecord
		var errMsg sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.TraceID, &rec.UserID,
			&rec.PromptChars, &rec.ReplyChars, &rec.PromptTokens,
			&rec.CompletionTokens, &rec.LatencyMS, &rec.Result, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan chat log row: %w", err)
		}
		rec.ErrorMessage = errMsg.String
		records = append(records, &rec)
	}
	return records, rows.Err()
}
