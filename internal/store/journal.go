package store

import (
	"context"
	"fmt"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

var _ enrollment.Acknowledger = (*Store)(nil)

// ActionRecord is one entry of a batch's action log.
type ActionRecord struct {
	BatchID          string
	Seq              int64
	Action           string
	HbxEnrollmentIDs []string
	// Outcome is persisted, published, rejected, unmatched or failed.
	Outcome string
	Detail  string
}

// Disposition is one recorded notice disposition.
type Disposition struct {
	HbxEnrollmentID string
	ContentHash     string
	Disposition     enrollment.Disposition
	Reason          string
}

// RecordAction appends to the action log.
func (s *Store) RecordAction(ctx context.Context, rec ActionRecord) error {
	ids, err := marshalIDs(rec.HbxEnrollmentIDs)
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO action_log (batch_id, seq, action, hbx_enrollment_ids, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.BatchID, rec.Seq, rec.Action, ids, rec.Outcome, rec.Detail)
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

// LastActionSeq returns the highest seq in the action log, or 0 when the
// log is empty.
func (s *Store) LastActionSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM action_log`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query last action seq: %w", err)
	}
	return seq, nil
}

// ReadActionLog returns a batch's action log in order.
// Returns an empty slice (not nil) if the batch is unknown.
func (s *Store) ReadActionLog(ctx context.Context, batchID string) ([]ActionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, seq, action, hbx_enrollment_ids, outcome, detail
		FROM action_log
		WHERE batch_id = ?
		ORDER BY seq ASC, id ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query action log: %w", err)
	}
	defer rows.Close()

	out := []ActionRecord{}
	for rows.Next() {
		var (
			rec ActionRecord
			ids string
		)
		if err := rows.Scan(&rec.BatchID, &rec.Seq, &rec.Action, &ids, &rec.Outcome, &rec.Detail); err != nil {
			return nil, fmt.Errorf("scan action record: %w", err)
		}
		if rec.HbxEnrollmentIDs, err = unmarshalIDs(ids); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate action log: %w", err)
	}
	return out, nil
}

// ListBatches returns the ids of every logged batch, in first-seen order.
func (s *Store) ListBatches(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id FROM action_log
		GROUP BY batch_id
		ORDER BY MIN(id) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan batch id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batches: %w", err)
	}
	return out, nil
}

// Acknowledge records the disposition of a notice that produced no action.
func (s *Store) Acknowledge(ctx context.Context, ev *enrollment.Event, d enrollment.Disposition, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notice_dispositions (hbx_enrollment_id, content_hash, disposition, reason)
		VALUES (?, ?, ?, ?)
	`, ev.HbxEnrollmentID, ev.ContentHash(), string(d), reason)
	if err != nil {
		return fmt.Errorf("acknowledge %s: %w", ev.HbxEnrollmentID, err)
	}
	return nil
}

// ReadDispositions returns the dispositions recorded for an enrollment.
func (s *Store) ReadDispositions(ctx context.Context, hbx string) ([]Disposition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hbx_enrollment_id, content_hash, disposition, reason
		FROM notice_dispositions
		WHERE hbx_enrollment_id = ?
		ORDER BY id ASC
	`, hbx)
	if err != nil {
		return nil, fmt.Errorf("query dispositions: %w", err)
	}
	defer rows.Close()

	out := []Disposition{}
	for rows.Next() {
		var (
			d    Disposition
			disp string
		)
		if err := rows.Scan(&d.HbxEnrollmentID, &d.ContentHash, &disp, &d.Reason); err != nil {
			return nil, fmt.Errorf("scan disposition: %w", err)
		}
		d.Disposition = enrollment.Disposition(disp)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispositions: %w", err)
	}
	return out, nil
}
