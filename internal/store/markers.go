package store

import (
	"context"
	"fmt"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

var _ enrollment.Markers = (*Store)(nil)

// Exists reports whether the marker was written.
func (s *Store) Exists(ctx context.Context, m enrollment.Marker) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM markers
		WHERE hbx_enrollment_id = ? AND action_uri = ? AND content_hash = ?
	`, m.HbxEnrollmentID, m.ActionURI, m.ContentHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check marker: %w", err)
	}
	return count > 0, nil
}

// Seen reports whether any action already consumed this exact notice
// content.
func (s *Store) Seen(ctx context.Context, hbx, contentHash string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM markers
		WHERE hbx_enrollment_id = ? AND content_hash = ?
	`, hbx, contentHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

// Mark writes a marker. Uses ON CONFLICT DO NOTHING for idempotency and
// reports whether the marker is new.
func (s *Store) Mark(ctx context.Context, m enrollment.Marker) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO markers (hbx_enrollment_id, action_uri, content_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(hbx_enrollment_id, action_uri, content_hash) DO NOTHING
	`, m.HbxEnrollmentID, m.ActionURI, m.ContentHash)
	if err != nil {
		return false, fmt.Errorf("write marker: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write marker: rows affected: %w", err)
	}
	return n > 0, nil
}

// ReadMarkers returns the markers written for an enrollment, oldest first.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ReadMarkers(ctx context.Context, hbx string) ([]enrollment.Marker, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hbx_enrollment_id, action_uri, content_hash
		FROM markers
		WHERE hbx_enrollment_id = ?
		ORDER BY id ASC
	`, hbx)
	if err != nil {
		return nil, fmt.Errorf("query markers: %w", err)
	}
	defer rows.Close()

	out := []enrollment.Marker{}
	for rows.Next() {
		var m enrollment.Marker
		if err := rows.Scan(&m.HbxEnrollmentID, &m.ActionURI, &m.ContentHash); err != nil {
			return nil, fmt.Errorf("scan marker: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate markers: %w", err)
	}
	return out, nil
}
