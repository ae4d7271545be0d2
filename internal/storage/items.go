package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"placewatch/internal/model"
)

// Keeps IN lists well under SQLite's bound-parameter limit.
const fingerprintChunk = 400

const itemColumns = `fingerprint, target_id, author, text, rating, relative_date_text, resolved_date, captured_at`

// InsertItems appends items that are not stored yet and returns how many
// were new. Items are expected newest-first, as a fetch agent presents
// them; they are written oldest-first so that insertion order tracks
// recency and RecentFingerprints can rely on it.
func (s *DB) InsertItems(ctx context.Context, items []model.FeedbackItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.q(
		`INSERT INTO feedback_items (`+itemColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (target_id, fingerprint) DO NOTHING`),
	)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	for i := len(items) - 1; i >= 0; i-- {
		it := items[i]
		captured := it.CapturedAt
		if captured.IsZero() {
			captured = time.Now()
		}
		res, err := stmt.ExecContext(ctx, it.Fingerprint, it.TargetID, it.Author, it.Text, it.Rating,
			it.RelativeDateText, nullDate(it.ResolvedDate), formatTime(captured))
		if err != nil {
			return 0, fmt.Errorf("insert item %s: %w", it.Fingerprint, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit items: %w", err)
	}
	return inserted, nil
}

// RecentFingerprints returns the fingerprints of the n most recently stored
// items of a target, newest first.
func (s *DB) RecentFingerprints(ctx context.Context, targetID string, n int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT fingerprint FROM feedback_items WHERE target_id = ? ORDER BY seq DESC LIMIT ?`),
		targetID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent fingerprints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var fps []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		fps = append(fps, fp)
	}
	return fps, rows.Err()
}

// ExistingFingerprints reports which of fps are already stored for the target.
func (s *DB) ExistingFingerprints(ctx context.Context, targetID string, fps []string) (map[string]bool, error) {
	found := make(map[string]bool, len(fps))
	for start := 0; start < len(fps); start += fingerprintChunk {
		end := min(start+fingerprintChunk, len(fps))
		chunk := fps[start:end]

		args := make([]any, 0, len(chunk)+1)
		args = append(args, targetID)
		for _, fp := range chunk {
			args = append(args, fp)
		}

		rows, err := s.db.QueryContext(ctx, s.q(
			`SELECT fingerprint FROM feedback_items WHERE target_id = ? AND fingerprint IN (`+placeholders(len(chunk))+`)`),
			args...,
		)
		if err != nil {
			return nil, fmt.Errorf("query existing fingerprints: %w", err)
		}
		for rows.Next() {
			var fp string
			if err := rows.Scan(&fp); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan fingerprint: %w", err)
			}
			found[fp] = true
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return found, nil
}

// ListItems returns the stored items of a target, newest first. A
// non-positive limit returns all of them.
func (s *DB) ListItems(ctx context.Context, targetID string, limit int) ([]model.FeedbackItem, error) {
	query := `SELECT ` + itemColumns + ` FROM feedback_items WHERE target_id = ? ORDER BY seq DESC`
	args := []any{targetID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanItems(rows)
}

// ItemsSince returns the items captured strictly after since, newest first.
// A nil since returns every item of the target.
func (s *DB) ItemsSince(ctx context.Context, targetID string, since *time.Time) ([]model.FeedbackItem, error) {
	if since == nil {
		return s.ListItems(ctx, targetID, 0)
	}
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT `+itemColumns+` FROM feedback_items
		 WHERE target_id = ? AND captured_at > ?
		 ORDER BY seq DESC`),
		targetID, formatTime(*since),
	)
	if err != nil {
		return nil, fmt.Errorf("query items since: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanItems(rows)
}

func scanItems(rows *sql.Rows) ([]model.FeedbackItem, error) {
	var items []model.FeedbackItem
	for rows.Next() {
		var it model.FeedbackItem
		var rating sql.NullFloat64
		var resolved sql.NullString
		var captured string
		if err := rows.Scan(&it.Fingerprint, &it.TargetID, &it.Author, &it.Text, &rating,
			&it.RelativeDateText, &resolved, &captured); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Rating = nullFloat(rating)
		it.ResolvedDate = parseNullDate(resolved)
		it.CapturedAt, _ = time.Parse(timeLayout, captured)
		items = append(items, it)
	}
	return items, rows.Err()
}
