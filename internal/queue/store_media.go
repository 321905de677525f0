package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecordMedia inserts or replaces the media row for an acquired file.
func (s *Store) RecordMedia(ctx context.Context, media Media) (*Media, error) {
	media.Filename = strings.TrimSpace(media.Filename)
	if media.Filename == "" {
		return nil, errors.New("record media: filename required")
	}
	if strings.TrimSpace(media.Duration) == "" {
		media.Duration = "unknown"
	}
	if media.CreatedAt.IsZero() {
		media.CreatedAt = time.Now().UTC()
	}
	if err := s.execNoResult(
		ctx,
		`INSERT INTO media (filename, user_id, title, source, source_url, duration, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(filename) DO UPDATE SET
             user_id = excluded.user_id, title = excluded.title, source = excluded.source,
             source_url = excluded.source_url, duration = excluded.duration`,
		media.Filename,
		media.UserID,
		nullableString(media.Title),
		media.Source,
		nullableString(media.SourceURL),
		media.Duration,
		timestamp(media.CreatedAt),
	); err != nil {
		return nil, fmt.Errorf("record media: %w", err)
	}
	return s.GetMedia(ctx, media.Filename)
}

const mediaColumns = "id, filename, user_id, title, source, source_url, duration, created_at"

func scanMedia(scanner interface{ Scan(dest ...any) error }) (*Media, error) {
	var (
		m          Media
		title      sql.NullString
		sourceURL  sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(&m.ID, &m.Filename, &m.UserID, &title, &m.Source, &sourceURL, &m.Duration, &createdRaw); err != nil {
		return nil, err
	}
	m.Title = title.String
	m.SourceURL = sourceURL.String
	if created, err := parseTimeString(createdRaw); err == nil {
		m.CreatedAt = created
	}
	return &m, nil
}

// GetMedia returns the media row for filename, or nil when absent.
func (s *Store) GetMedia(ctx context.Context, filename string) (*Media, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+mediaColumns+` FROM media WHERE filename = ?`, filename)
	m, err := scanMedia(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

// ListMedia returns media newest first. A zero userID lists every user.
func (s *Store) ListMedia(ctx context.Context, userID int64) ([]*Media, error) {
	query := `SELECT ` + mediaColumns + ` FROM media`
	var args []any
	if userID > 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	var out []*Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMedia counts media rows for a user, or all rows for userID 0.
func (s *Store) CountMedia(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(1) FROM media`
	var args []any
	if userID > 0 {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count media: %w", err)
	}
	return count, nil
}

// RemoveMedia deletes the media row for filename.
func (s *Store) RemoveMedia(ctx context.Context, filename string) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM media WHERE filename = ?`, filename)
	if err != nil {
		return false, fmt.Errorf("delete media: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
