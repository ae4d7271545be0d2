package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"placewatch/internal/model"
)

const targetColumns = `id, display_name, address, latitude, longitude, zone, riverside,
	last_known_item_count, last_rating, last_sync_at, summary, summary_updated_at,
	analysis_checked_at, created_at`

// UpsertTarget creates the target on first discovery or refreshes its
// descriptive fields. Empty values never overwrite stored ones, the known
// item count only grows, and last_sync_at is left to RecordOutcome.
func (s *DB) UpsertTarget(ctx context.Context, t *model.Target) error {
	if t.ID == "" {
		return errors.New("upsert target: empty id")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO targets (id, display_name, address, latitude, longitude, zone, riverside,
		                      last_known_item_count, last_rating, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = CASE WHEN excluded.display_name <> '' THEN excluded.display_name ELSE targets.display_name END,
		   address = CASE WHEN excluded.address <> '' THEN excluded.address ELSE targets.address END,
		   latitude = COALESCE(excluded.latitude, targets.latitude),
		   longitude = COALESCE(excluded.longitude, targets.longitude),
		   zone = CASE WHEN excluded.zone <> '' THEN excluded.zone ELSE targets.zone END,
		   riverside = COALESCE(excluded.riverside, targets.riverside),
		   last_known_item_count = CASE
		     WHEN excluded.last_known_item_count > targets.last_known_item_count THEN excluded.last_known_item_count
		     ELSE targets.last_known_item_count END,
		   last_rating = COALESCE(excluded.last_rating, targets.last_rating)`),
		t.ID, t.DisplayName, t.Address, t.Latitude, t.Longitude, t.Zone, nullBool(t.Riverside),
		t.LastKnownItemCount, t.LastRating, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("upsert target: %w", err)
	}
	return nil
}

// GetTarget returns a single target by its ID.
func (s *DB) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+targetColumns+` FROM targets WHERE id = ?`), id)
	t, err := scanTarget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("target %q: %w", id, ErrNotFound)
	}
	return t, err
}

// ListTargets returns every target ordered by ID.
func (s *DB) ListTargets(ctx context.Context) ([]model.Target, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+targetColumns+` FROM targets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTargets(rows)
}

// ListDueTargets returns up to limit targets, never-visited first and then
// by oldest last_sync_at. The order comes from persisted state only, so an
// interrupted run is resumed by simply asking again.
func (s *DB) ListDueTargets(ctx context.Context, limit int) ([]model.Target, error) {
	rows, err := s.db.QueryContext(ctx, s.q(
		`SELECT `+targetColumns+` FROM targets
		 ORDER BY last_sync_at IS NOT NULL, last_sync_at, id
		 LIMIT ?`), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query due targets: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanTargets(rows)
}

// SaveSummary stores a summary written at at and moves the analysis
// watermark to checkedUntil, the capture time of the newest item judged.
func (s *DB) SaveSummary(ctx context.Context, targetID, summary string, at, checkedUntil time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(
		`UPDATE targets SET summary = ?, summary_updated_at = ?, analysis_checked_at = ? WHERE id = ?`),
		summary, formatTime(at), formatTime(checkedUntil), targetID,
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return requireRow(res, targetID)
}

// MarkAnalysisChecked advances the analysis watermark without touching the summary.
func (s *DB) MarkAnalysisChecked(ctx context.Context, targetID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE targets SET analysis_checked_at = ? WHERE id = ?`),
		formatTime(at), targetID,
	)
	if err != nil {
		return fmt.Errorf("mark analysis checked: %w", err)
	}
	return requireRow(res, targetID)
}

// Stats returns aggregate counters over the whole store.
func (s *DB) Stats(ctx context.Context) (model.Stats, error) {
	var st model.Stats
	dayAgo := formatTime(time.Now().Add(-24 * time.Hour))
	err := s.db.QueryRowContext(ctx, s.q(
		`SELECT
		   (SELECT COUNT(*) FROM targets),
		   (SELECT COUNT(*) FROM targets WHERE last_sync_at IS NULL),
		   (SELECT COUNT(*) FROM feedback_items),
		   (SELECT COUNT(*) FROM feedback_items WHERE captured_at > ?),
		   (SELECT COUNT(*) FROM targets WHERE summary <> '')`), dayAgo,
	).Scan(&st.Targets, &st.PendingTargets, &st.Items, &st.ItemsLast24h, &st.Summaries)
	if err != nil {
		return st, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

func requireRow(res sql.Result, targetID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("target %q: %w", targetID, ErrNotFound)
	}
	return nil
}

func scanTarget(row scannable) (*model.Target, error) {
	var t model.Target
	var lat, lon, rating sql.NullFloat64
	var riverside sql.NullInt64
	var lastSync, summaryAt, checkedAt sql.NullString
	var created string
	err := row.Scan(&t.ID, &t.DisplayName, &t.Address, &lat, &lon, &t.Zone, &riverside,
		&t.LastKnownItemCount, &rating, &lastSync, &t.Summary, &summaryAt, &checkedAt, &created)
	if err != nil {
		return nil, fmt.Errorf("scan target: %w", err)
	}
	t.Latitude = nullFloat(lat)
	t.Longitude = nullFloat(lon)
	t.Riverside = parseNullBool(riverside)
	t.LastRating = nullFloat(rating)
	t.LastSyncAt = parseNullTime(lastSync)
	t.SummaryUpdatedAt = parseNullTime(summaryAt)
	t.AnalysisCheckedAt = parseNullTime(checkedAt)
	t.CreatedAt, _ = time.Parse(timeLayout, created)
	return &t, nil
}

func scanTargets(rows *sql.Rows) ([]model.Target, error) {
	var targets []model.Target
	for rows.Next() {
		t, err := scanTarget(rows)
		if err != nil {
			return nil, err
		}
		targets = append(targets, *t)
	}
	return targets, rows.Err()
}
