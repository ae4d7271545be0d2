package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"placewatch/internal/model"
)

const outcomeColumns = `id, run_id, target_id, status, message, attempt, new_items, occurred_at`

// RecordOutcome appends a visit outcome and, for statuses that complete a
// visit, moves the target's last_sync_at to the outcome time. Attempt is
// derived from the previous outcome: it counts consecutive unfinished
// visits and resets after a completed one. o.ID and o.Attempt are filled in.
func (s *DB) RecordOutcome(ctx context.Context, o *model.Outcome) error {
	if !o.Status.Valid() {
		return fmt.Errorf("record outcome: invalid status %q", o.Status)
	}
	if o.OccurredAt.IsZero() {
		o.OccurredAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevStatus string
	var prevAttempt int
	err = tx.QueryRowContext(ctx, s.q(
		`SELECT status, attempt FROM outcomes WHERE target_id = ? ORDER BY id DESC LIMIT 1`), o.TargetID,
	).Scan(&prevStatus, &prevAttempt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		o.Attempt = 1
	case err != nil:
		return fmt.Errorf("query previous outcome: %w", err)
	case model.Status(prevStatus).AdvancesSync():
		o.Attempt = 1
	default:
		o.Attempt = prevAttempt + 1
	}

	ts := formatTime(o.OccurredAt)
	err = tx.QueryRowContext(ctx, s.q(
		`INSERT INTO outcomes (run_id, target_id, status, message, attempt, new_items, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		o.RunID, o.TargetID, string(o.Status), o.Message, o.Attempt, o.NewItems, ts,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert outcome: %w", err)
	}

	if o.Status.AdvancesSync() {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE targets SET last_sync_at = ? WHERE id = ?`), ts, o.TargetID)
		if err != nil {
			return fmt.Errorf("advance last sync: %w", err)
		}
		if err := requireRow(res, o.TargetID); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcome: %w", err)
	}
	return nil
}

// LatestOutcome returns the most recent outcome recorded for a target.
func (s *DB) LatestOutcome(ctx context.Context, targetID string) (*model.Outcome, error) {
	row := s.db.QueryRowContext(ctx, s.q(
		`SELECT `+outcomeColumns+` FROM outcomes WHERE target_id = ? ORDER BY id DESC LIMIT 1`), targetID,
	)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outcome for %q: %w", targetID, ErrNotFound)
	}
	return o, err
}

// ListOutcomes returns the outcomes of a target, newest first.
func (s *DB) ListOutcomes(ctx context.Context, targetID string, limit int) ([]model.Outcome, error) {
	query := `SELECT ` + outcomeColumns + ` FROM outcomes WHERE target_id = ? ORDER BY id DESC`
	args := []any{targetID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var outcomes []model.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, *o)
	}
	return outcomes, rows.Err()
}

// RecordCountSnapshot stores the item total displayed by the source and
// returns the change against the previous snapshot (zero for the first).
func (s *DB) RecordCountSnapshot(ctx context.Context, targetID string, count int, rating *float64) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev int
	delta := 0
	err = tx.QueryRowContext(ctx, s.q(
		`SELECT item_count FROM count_history WHERE target_id = ? ORDER BY id DESC LIMIT 1`), targetID,
	).Scan(&prev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("query previous snapshot: %w", err)
	default:
		delta = count - prev
	}

	_, err = tx.ExecContext(ctx, s.q(
		`INSERT INTO count_history (target_id, item_count, rating, delta, recorded_at) VALUES (?, ?, ?, ?, ?)`),
		targetID, count, rating, delta, formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot: %w", err)
	}
	return delta, nil
}

// ListCountHistory returns count snapshots of a target, newest first.
func (s *DB) ListCountHistory(ctx context.Context, targetID string, limit int) ([]model.CountSnapshot, error) {
	query := `SELECT target_id, item_count, rating, delta, recorded_at FROM count_history WHERE target_id = ? ORDER BY id DESC`
	args := []any{targetID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query count history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []model.CountSnapshot
	for rows.Next() {
		var c model.CountSnapshot
		var rating sql.NullFloat64
		var recorded string
		if err := rows.Scan(&c.TargetID, &c.Count, &rating, &c.Delta, &recorded); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		c.Rating = nullFloat(rating)
		c.RecordedAt, _ = time.Parse(timeLayout, recorded)
		history = append(history, c)
	}
	return history, rows.Err()
}

func scanOutcome(row scannable) (*model.Outcome, error) {
	var o model.Outcome
	var status, occurred string
	if err := row.Scan(&o.ID, &o.RunID, &o.TargetID, &status, &o.Message, &o.Attempt, &o.NewItems, &occurred); err != nil {
		return nil, err
	}
	o.Status = model.Status(status)
	o.OccurredAt, _ = time.Parse(timeLayout, occurred)
	return &o, nil
}
