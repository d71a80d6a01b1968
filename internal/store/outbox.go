package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

var _ enrollment.Publisher = (*Store)(nil)

// Confirmation is one queued outbound document.
type Confirmation struct {
	Seq             int64
	ID              string
	ActionURI       string
	HbxEnrollmentID string
	EmployerID      string
	Document        []byte
	RetryCount      int
	LastError       string
}

// PublishConfirmation enqueues a rendered document in the outbox. The
// document hash is the row id, so enqueuing the same confirmation twice is
// a no-op. Delivery to the broker happens later through a relay.
func (s *Store) PublishConfirmation(ctx context.Context, doc enrollment.Document, hbx, employer string) (bool, []error) {
	body, err := doc.Render()
	if err != nil {
		return false, []error{fmt.Errorf("render %s: %w", doc.Action, err)}
	}
	id, err := doc.Hash()
	if err != nil {
		return false, []error{fmt.Errorf("hash %s: %w", doc.Action, err)}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO outbox (id, action_uri, hbx_enrollment_id, employer_id, document)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, doc.Action, hbx, employer, string(body))
	if err != nil {
		return false, []error{fmt.Errorf("enqueue confirmation: %w", err)}
	}
	return true, nil
}

// PendingConfirmations returns up to limit undelivered confirmations in
// enqueue order.
func (s *Store) PendingConfirmations(ctx context.Context, limit int) ([]Confirmation, error) {
	if limit <= 0 {
		return []Confirmation{}, nil
	}
	return s.readConfirmations(ctx, `
		SELECT seq, id, action_uri, hbx_enrollment_id, employer_id, document, retry_count, last_error
		FROM outbox
		WHERE published = 0 AND dead_lettered = 0
		ORDER BY seq ASC, id COLLATE BINARY ASC
		LIMIT ?
	`, limit)
}

// ReadConfirmations returns every confirmation queued for an enrollment.
func (s *Store) ReadConfirmations(ctx context.Context, hbx string) ([]Confirmation, error) {
	return s.readConfirmations(ctx, `
		SELECT seq, id, action_uri, hbx_enrollment_id, employer_id, document, retry_count, last_error
		FROM outbox
		WHERE hbx_enrollment_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, hbx)
}

func (s *Store) readConfirmations(ctx context.Context, query string, args ...any) ([]Confirmation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	out := []Confirmation{}
	for rows.Next() {
		var (
			c       Confirmation
			doc     string
			lastErr sql.NullString
		)
		if err := rows.Scan(&c.Seq, &c.ID, &c.ActionURI, &c.HbxEnrollmentID, &c.EmployerID,
			&doc, &c.RetryCount, &lastErr); err != nil {
			return nil, fmt.Errorf("scan confirmation: %w", err)
		}
		c.Document = []byte(doc)
		c.LastError = lastErr.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

// MarkPublished records a successful delivery.
func (s *Store) MarkPublished(ctx context.Context, seq int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE outbox SET published = 1 WHERE seq = ?`, seq); err != nil {
		return fmt.Errorf("mark published %d: %w", seq, err)
	}
	return nil
}

// MarkFailed records a failed delivery attempt. After maxRetries attempts
// the confirmation is dead-lettered and no longer returned as pending. It
// reports whether that happened.
func (s *Store) MarkFailed(ctx context.Context, seq int64, cause error, maxRetries int) (bool, error) {
	var deadLettered bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var retries int
		if err := tx.QueryRowContext(ctx, `
			UPDATE outbox SET retry_count = retry_count + 1, last_error = ?
			WHERE seq = ?
			RETURNING retry_count
		`, cause.Error(), seq).Scan(&retries); err != nil {
			return err
		}
		if retries < maxRetries {
			return nil
		}
		deadLettered = true
		_, err := tx.ExecContext(ctx, `UPDATE outbox SET dead_lettered = 1 WHERE seq = ?`, seq)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("mark failed %d: %w", seq, err)
	}
	return deadLettered, nil
}
