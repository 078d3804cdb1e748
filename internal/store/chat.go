package store

import (
	"context"
	"fmt"
	"time"

	"outreach/internal/model"
)

// AppendChat stores one or more turns of a conversation.
func (s *SQLiteStore) AppendChat(ctx context.Context, email, mode string, msgs ...model.ChatMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chat_messages (email, mode, role, content, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := formatTime(time.Now())
	for _, m := range msgs {
		if _, err := stmt.ExecContext(ctx, email, mode, m.Role, m.Content, now); err != nil {
			return fmt.Errorf("append chat: %w", err)
		}
	}
	return tx.Commit()
}

// ChatHistory returns the last limit messages for email and mode, oldest
// first. limit <= 0 means all.
func (s *SQLiteStore) ChatHistory(ctx context.Context, email, mode string, limit int) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM (
			SELECT id, role, content FROM chat_messages
			WHERE email = ? AND mode = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id
	`, email, mode, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.ChatMessage
	for rows.Next() {
		var m model.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClearChat deletes the history for email and mode. An empty mode clears
// every mode.
func (s *SQLiteStore) ClearChat(ctx context.Context, email, mode string) error {
	var err error
	if mode == "" {
		_, err = s.db.ExecContext(ctx, "DELETE FROM chat_messages WHERE email = ?", email)
	} else {
		_, err = s.db.ExecContext(ctx, "DELETE FROM chat_messages WHERE email = ? AND mode = ?", email, mode)
	}
	if err != nil {
		return fmt.Errorf("clear chat: %w", err)
	}
	return nil
}
