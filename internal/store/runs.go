package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"outreach/internal/model"
)

const runColumns = "id, email, sheet_url, preview, started_at, finished_at, total, processed, sent, failed, status"

// CreateRun inserts a new run. Status defaults to running.
func (s *SQLiteStore) CreateRun(ctx context.Context, r model.SendRun) error {
	if r.Status == "" {
		r.Status = model.RunRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO send_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Email, r.SheetURL, r.Preview, formatTime(r.StartedAt), formatTime(r.FinishedAt),
		r.Total, r.Processed, r.Sent, r.Failed, r.Status)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// AppendEvents stores events for a run. Seq must be unique per run.
func (s *SQLiteStore) AppendEvents(ctx context.Context, events []model.RunEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO send_events (run_id, seq, type, message, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO UPDATE SET
			type    = excluded.type,
			message = excluded.message
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.RunID, e.Seq, e.Type, e.Message, formatTime(e.CreatedAt)); err != nil {
			return fmt.Errorf("append event %d: %w", e.Seq, err)
		}
	}
	return tx.Commit()
}

// FinishRun writes the final counters, status and finish time.
func (s *SQLiteStore) FinishRun(ctx context.Context, r model.SendRun) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE send_runs SET
			finished_at = ?, total = ?, processed = ?, sent = ?, failed = ?, status = ?
		WHERE id = ?
	`, formatTime(r.FinishedAt), r.Total, r.Processed, r.Sent, r.Failed, r.Status, r.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRuns returns the newest runs for email first. limit <= 0 means all.
func (s *SQLiteStore) ListRuns(ctx context.Context, email string, limit int) ([]model.SendRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+runColumns+" FROM send_runs WHERE email = ? ORDER BY started_at DESC, id DESC LIMIT ?",
		email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []model.SendRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun looks up a run by id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (model.SendRun, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM send_runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.SendRun{}, ErrNotFound
	}
	return r, err
}

// RunEvents returns a run's events in sequence order.
func (s *SQLiteStore) RunEvents(ctx context.Context, runID string) ([]model.RunEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT run_id, seq, type, message, created_at FROM send_events WHERE run_id = ? ORDER BY seq", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.RunEvent
	for rows.Next() {
		var e model.RunEvent
		var created string
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Type, &e.Message, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(created)
		events = append(events, e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (model.SendRun, error) {
	var r model.SendRun
	var started, finished string
	err := sc.Scan(&r.ID, &r.Email, &r.SheetURL, &r.Preview, &started, &finished,
		&r.Total, &r.Processed, &r.Sent, &r.Failed, &r.Status)
	if err != nil {
		return model.SendRun{}, err
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return r, nil
}
