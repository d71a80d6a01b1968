package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

var _ enrollment.Policies = (*Store)(nil)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const policyColumns = `id, subscriber_id, plan_id, carrier_id, year, is_shop, is_cobra, employer_id,
	status, start_date, end_date, term_for_non_payment, rating_area, applied_aptc`

// PutPolicy inserts or replaces a policy and its members. Used to seed
// state from fixtures.
func (s *Store) PutPolicy(ctx context.Context, p *enrollment.Policy) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM policy_members WHERE policy_id = ?`, p.ID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, p.ID); err != nil {
			return err
		}
		return insertPolicy(ctx, tx, p, "")
	})
	if err != nil {
		return fmt.Errorf("put policy %s: %w", p.ID, err)
	}
	return nil
}

// PutPlan inserts or replaces a plan.
func (s *Store) PutPlan(ctx context.Context, p *enrollment.Plan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (id, carrier_id, year, renewal_plan_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			carrier_id = excluded.carrier_id,
			year = excluded.year,
			renewal_plan_id = excluded.renewal_plan_id
	`, p.ID, p.CarrierID, p.Year, p.RenewalPlanID)
	if err != nil {
		return fmt.Errorf("put plan %s: %w", p.ID, err)
	}
	return nil
}

func insertPolicy(ctx context.Context, q querier, p *enrollment.Policy, predecessor string) error {
	var pred any
	if predecessor != "" {
		pred = predecessor
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO policies
		(id, subscriber_id, plan_id, carrier_id, year, is_shop, is_cobra, employer_id,
		 status, start_date, end_date, term_for_non_payment, rating_area, applied_aptc, predecessor_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.SubscriberID, p.PlanID, p.CarrierID, p.Year,
		boolArg(p.IsShop), boolArg(p.IsCobra), p.EmployerID,
		string(p.Status), dateArg(p.Start), nullDateArg(p.End),
		boolArg(p.TermForNonPayment), p.RatingArea, p.AppliedAPTC, pred,
	)
	if err != nil {
		return fmt.Errorf("insert policy: %w", err)
	}
	for i, m := range p.Members {
		if err := insertPolicyMember(ctx, q, p.ID, m, i); err != nil {
			return err
		}
	}
	return nil
}

func insertPolicyMember(ctx context.Context, q querier, policyID string, m enrollment.PolicyMember, seq int) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO policy_members (policy_id, member_id, is_subscriber, start_date, end_date, tobacco, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, policyID, m.ID, boolArg(m.Subscriber), dateArg(m.Start), nullDateArg(m.End), m.Tobacco, seq)
	if err != nil {
		return fmt.Errorf("insert policy member %s: %w", m.ID, err)
	}
	return nil
}

// resolveID follows an hbx id alias to the policy it continues.
func resolveID(ctx context.Context, q querier, id string) (string, error) {
	var target string
	err := q.QueryRowContext(ctx, `SELECT policy_id FROM policy_aliases WHERE hbx_enrollment_id = ?`, id).Scan(&target)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return id, nil
	case err != nil:
		return "", fmt.Errorf("resolve alias %s: %w", id, err)
	}
	return target, nil
}

func addAlias(ctx context.Context, q querier, hbx, policyID string) error {
	if hbx == policyID {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO policy_aliases (hbx_enrollment_id, policy_id) VALUES (?, ?)
		ON CONFLICT(hbx_enrollment_id) DO NOTHING
	`, hbx, policyID)
	if err != nil {
		return fmt.Errorf("add alias %s: %w", hbx, err)
	}
	return nil
}

// loadPolicy returns the policy for id (following aliases), or nil.
func loadPolicy(ctx context.Context, q querier, id string) (*enrollment.Policy, error) {
	id, err := resolveID(ctx, q, id)
	if err != nil {
		return nil, err
	}
	row := q.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = ?`, id)
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := loadMembers(ctx, q, p); err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row rowScanner) (*enrollment.Policy, error) {
	var (
		p                           enrollment.Policy
		status, start               string
		end                         sql.NullString
		isShop, isCobra, nonPayment int
	)
	err := row.Scan(&p.ID, &p.SubscriberID, &p.PlanID, &p.CarrierID, &p.Year, &isShop, &isCobra,
		&p.EmployerID, &status, &start, &end, &nonPayment, &p.RatingArea, &p.AppliedAPTC)
	if err != nil {
		return nil, err
	}
	p.IsShop, p.IsCobra, p.TermForNonPayment = isShop != 0, isCobra != 0, nonPayment != 0
	p.Status = enrollment.PolicyStatus(status)
	if p.Start, err = parseDate(start); err != nil {
		return nil, err
	}
	if p.End, err = parseNullDate(end); err != nil {
		return nil, err
	}
	return &p, nil
}

func loadMembers(ctx context.Context, q querier, p *enrollment.Policy) error {
	rows, err := q.QueryContext(ctx, `
		SELECT member_id, is_subscriber, start_date, end_date, tobacco
		FROM policy_members
		WHERE policy_id = ?
		ORDER BY seq ASC, member_id COLLATE BINARY ASC
	`, p.ID)
	if err != nil {
		return fmt.Errorf("query policy members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			m          enrollment.PolicyMember
			subscriber int
			start      string
			end        sql.NullString
		)
		if err := rows.Scan(&m.ID, &subscriber, &start, &end, &m.Tobacco); err != nil {
			return fmt.Errorf("scan policy member: %w", err)
		}
		m.Subscriber = subscriber != 0
		if m.Start, err = parseDate(start); err != nil {
			return err
		}
		if m.End, err = parseNullDate(end); err != nil {
			return err
		}
		p.Members = append(p.Members, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate policy members: %w", err)
	}
	return nil
}

// FindPolicy returns the policy a notice's hbx id refers to.
func (s *Store) FindPolicy(ctx context.Context, hbx string) (*enrollment.Policy, bool, error) {
	p, err := loadPolicy(ctx, s.db, hbx)
	if err != nil {
		return nil, false, fmt.Errorf("find policy %s: %w", hbx, err)
	}
	return p, p != nil, nil
}

// FindPlan returns a plan by id.
func (s *Store) FindPlan(ctx context.Context, id string) (*enrollment.Plan, bool, error) {
	var p enrollment.Plan
	err := s.db.QueryRowContext(ctx, `
		SELECT id, carrier_id, year, renewal_plan_id FROM plans WHERE id = ?
	`, id).Scan(&p.ID, &p.CarrierID, &p.Year, &p.RenewalPlanID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("find plan %s: %w", id, err)
	}
	return &p, true, nil
}

// PoliciesForSubscriber returns every policy of a subscriber ordered by
// start date, then id.
func (s *Store) PoliciesForSubscriber(ctx context.Context, subscriberID string) ([]*enrollment.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+policyColumns+`
		FROM policies
		WHERE subscriber_id = ?
		ORDER BY start_date ASC, id COLLATE BINARY ASC
	`, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("query policies for subscriber: %w", err)
	}
	out := []*enrollment.Policy{}
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate policies: %w", err)
	}
	rows.Close()

	// Members are loaded after the cursor closes: the pool has one connection.
	for _, p := range out {
		if err := loadMembers(ctx, s.db, p); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Reload returns the current persisted state of p.
func (s *Store) Reload(ctx context.Context, p *enrollment.Policy) (*enrollment.Policy, error) {
	cur, err := loadPolicy(ctx, s.db, p.ID)
	if err != nil {
		return nil, fmt.Errorf("reload policy %s: %w", p.ID, err)
	}
	if cur == nil {
		return nil, fmt.Errorf("reload policy %s: not found", p.ID)
	}
	return cur, nil
}

// mutate loads the current policy inside a transaction and runs fn on it.
// fn reports whether it applied a change; a missing policy is a refusal.
func (s *Store) mutate(ctx context.Context, what, id string, fn func(tx *sql.Tx, cur *enrollment.Policy) (bool, error)) (bool, error) {
	var applied bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := loadPolicy(ctx, tx, id)
		if err != nil || cur == nil {
			return err
		}
		applied, err = fn(tx, cur)
		if err != nil || !applied {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE policies SET version = version + 1 WHERE id = ?`, cur.ID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", what, id, err)
	}
	return applied, nil
}

// TerminateAsOf ends p on end. It refuses to terminate a canceled policy,
// to end before the start date, and to repeat a termination that is not
// earlier and does not change the non-payment flag.
func (s *Store) TerminateAsOf(ctx context.Context, p *enrollment.Policy, end time.Time, nonPayment bool) (bool, error) {
	return s.mutate(ctx, "terminate policy", p.ID, func(tx *sql.Tx, cur *enrollment.Policy) (bool, error) {
		if cur.IsCanceled() || end.Before(cur.Start) {
			return false, nil
		}
		if cur.End != nil && cur.IsTerminated() && !end.Before(*cur.End) && cur.TermForNonPayment == nonPayment {
			return false, nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE policies SET status = 'terminated', end_date = ?, term_for_non_payment = ? WHERE id = ?
		`, dateArg(end), boolArg(nonPayment), cur.ID); err != nil {
			return false, err
		}
		_, err := tx.ExecContext(ctx, `
			UPDATE policy_members SET end_date = ?
			WHERE policy_id = ? AND (end_date IS NULL OR end_date > ?)
		`, dateArg(end), cur.ID, dateArg(end))
		return err == nil, err
	})
}

// CancelViaExchange cancels p: coverage ends on its start date.
func (s *Store) CancelViaExchange(ctx context.Context, p *enrollment.Policy) (bool, error) {
	return s.mutate(ctx, "cancel policy", p.ID, func(tx *sql.Tx, cur *enrollment.Policy) (bool, error) {
		if cur.IsCanceled() {
			return false, nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE policies SET status = 'canceled', end_date = start_date WHERE id = ?
		`, cur.ID); err != nil {
			return false, err
		}
		_, err := tx.ExecContext(ctx, `UPDATE policy_members SET end_date = start_date WHERE policy_id = ?`, cur.ID)
		return err == nil, err
	})
}

// CreateMember records a person. It reports false when the member already
// existed.
func (s *Store) CreateMember(ctx context.Context, m enrollment.Member) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO members (id) VALUES (?) ON CONFLICT(id) DO NOTHING`, m.ID)
	if err != nil {
		return false, fmt.Errorf("create member %s: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create member %s: rows affected: %w", m.ID, err)
	}
	return n > 0, nil
}

// CreatePolicy creates the policy cv starts. The plan's carrier wins over
// the notice's when both are known. An existing policy is a refusal.
func (s *Store) CreatePolicy(ctx context.Context, cv *enrollment.Event, plan *enrollment.Plan, isCobra bool, opts enrollment.CreateOptions) (bool, error) {
	created := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := loadPolicy(ctx, tx, cv.HbxEnrollmentID)
		if err != nil || existing != nil {
			return err
		}
		p := policyFromEvent(cv)
		p.IsCobra = isCobra
		if plan != nil && plan.CarrierID != "" {
			p.CarrierID = plan.CarrierID
		}
		var predecessor string
		if opts.Predecessor != nil {
			predecessor = opts.Predecessor.ID
		}
		if err := insertPolicy(ctx, tx, p, predecessor); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("create policy %s: %w", cv.HbxEnrollmentID, err)
	}
	return created, nil
}

func policyFromEvent(ev *enrollment.Event) *enrollment.Policy {
	p := &enrollment.Policy{
		ID:           ev.HbxEnrollmentID,
		SubscriberID: ev.SubscriberID,
		PlanID:       ev.PlanID,
		CarrierID:    ev.CarrierID,
		Year:         ev.ActiveYear,
		IsShop:       ev.IsShop,
		EmployerID:   ev.EmployerID,
		Status:       enrollment.StatusActive,
		Start:        ev.SubscriberStart,
		RatingArea:   ev.RatingArea,
		AppliedAPTC:  ev.AppliedAPTC,
	}
	if ev.SubscriberEnd != nil {
		p.End = enrollment.Ptr(*ev.SubscriberEnd)
	}
	for _, m := range ev.Members {
		pm := enrollment.PolicyMember{ID: m.ID, Subscriber: m.Subscriber, Start: m.Start, Tobacco: m.Tobacco}
		if m.End != nil {
			pm.End = enrollment.Ptr(*m.End)
		}
		p.Members = append(p.Members, pm)
	}
	return p
}

// AddMembersToPolicy adds the listed members of cv to p. Members already
// on the policy are skipped.
func (s *Store) AddMembersToPolicy(ctx context.Context, p *enrollment.Policy, cv *enrollment.Event, added []string) (bool, error) {
	return s.mutate(ctx, "add members", p.ID, func(tx *sql.Tx, cur *enrollment.Policy) (bool, error) {
		present := cur.MemberIDs()
		applied := false
		seq := len(cur.Members)
		for _, m := range cv.Members {
			if !slices.Contains(added, m.ID) || slices.Contains(present, m.ID) {
				continue
			}
			pm := enrollment.PolicyMember{ID: m.ID, Start: m.Start, End: m.End, Tobacco: m.Tobacco}
			if err := insertPolicyMember(ctx, tx, cur.ID, pm, seq); err != nil {
				return false, err
			}
			seq++
			applied = true
		}
		if applied {
			return true, addAlias(ctx, tx, cv.HbxEnrollmentID, cur.ID)
		}
		return false, nil
	})
}

// DropMembersFromPolicy ends the listed members the day before cv starts.
func (s *Store) DropMembersFromPolicy(ctx context.Context, p *enrollment.Policy, cv *enrollment.Event, dropped []string) (bool, error) {
	end := dateArg(enrollment.PrevDay(cv.SubscriberStart))
	return s.mutate(ctx, "drop members", p.ID, func(tx *sql.Tx, cur *enrollment.Policy) (bool, error) {
		var n int64
		for _, id := range dropped {
			res, err := tx.ExecContext(ctx, `
				UPDATE policy_members SET end_date = ?
				WHERE policy_id = ? AND member_id = ? AND (end_date IS NULL OR end_date > ?)
			`, end, cur.ID, id, end)
			if err != nil {
				return false, err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return false, err
			}
			n += affected
		}
		if n == 0 {
			return false, nil
		}
		return true, addAlias(ctx, tx, cv.HbxEnrollmentID, cur.ID)
	})
}

// SwitchPolicyOnCobra converts existing to cobra coverage continuing under cv.
func (s *Store) SwitchPolicyOnCobra(ctx context.Context, cv *enrollment.Event, existing *enrollment.Policy) (bool, error) {
	return s.mutate(ctx, "switch to cobra", existing.ID, func(tx *sql.Tx, cur *enrollment.Policy) (bool, error) {
		if cur.IsCobra {
			return false, nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE policies SET is_cobra = 1, status = 'active', end_date = NULL WHERE id = ?
		`, cur.ID); err != nil {
			return false, err
		}
		return true, addAlias(ctx, tx, cv.HbxEnrollmentID, cur.ID)
	})
}

// ReinstatePolicy reverses the termination of existing.
func (s *Store) ReinstatePolicy(ctx context.Context, cv *enrollment.Event, existing *enrollment.Policy) (bool, error) {
	return s.mutate(ctx, "reinstate policy", existing.ID, func(tx *sql.Tx, cur *enrollment.Policy) (bool, error) {
		if cur.Status != enrollment.StatusTerminated {
			return false, nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE policies SET status = 'active', term_for_non_payment = 0, is_cobra = ?, end_date = ?
			WHERE id = ?
		`, boolArg(cv.IsCobra), nullDateArg(cv.SubscriberEnd), cur.ID); err != nil {
			return false, err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE policy_members SET end_date = NULL WHERE policy_id = ?`, cur.ID); err != nil {
			return false, err
		}
		return true, addAlias(ctx, tx, cv.HbxEnrollmentID, cur.ID)
	})
}

// ChangeAssistance applies cv's premium tax credit to p.
func (s *Store) ChangeAssistance(ctx context.Context, p *enrollment.Policy, cv *enrollment.Event) (bool, error) {
	return s.mutate(ctx, "change assistance", p.ID, func(tx *sql.Tx, cur *enrollment.Policy) (bool, error) {
		if cur.AppliedAPTC == cv.AppliedAPTC {
			return false, nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE policies SET applied_aptc = ? WHERE id = ?`, cv.AppliedAPTC, cur.ID); err != nil {
			return false, err
		}
		return true, addAlias(ctx, tx, cv.HbxEnrollmentID, cur.ID)
	})
}

// ApplyRatingChange applies cv's rating area and member tobacco use to p.
func (s *Store) ApplyRatingChange(ctx context.Context, p *enrollment.Policy, cv *enrollment.Event) (bool, error) {
	return s.mutate(ctx, "apply rating change", p.ID, func(tx *sql.Tx, cur *enrollment.Policy) (bool, error) {
		changed := cur.RatingArea != cv.RatingArea
		if changed {
			if _, err := tx.ExecContext(ctx, `UPDATE policies SET rating_area = ? WHERE id = ?`, cv.RatingArea, cur.ID); err != nil {
				return false, err
			}
		}
		tobacco := cv.TobaccoUsageByMember()
		for _, m := range cur.Members {
			v, ok := tobacco[m.ID]
			if !ok || v == m.Tobacco {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE policy_members SET tobacco = ? WHERE policy_id = ? AND member_id = ?
			`, v, cur.ID, m.ID); err != nil {
				return false, err
			}
			changed = true
		}
		if !changed {
			return false, nil
		}
		return true, addAlias(ctx, tx, cv.HbxEnrollmentID, cur.ID)
	})
}

// CancelDependentRenewals cancels the subscriber's January renewals of
// terminated at the same carrier for the following year. It returns the
// canceled policy ids in order.
func (s *Store) CancelDependentRenewals(ctx context.Context, terminated *enrollment.Policy) ([]string, error) {
	var ids []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id FROM policies
			WHERE subscriber_id = ? AND carrier_id = ? AND year = ? AND id != ?
			  AND status != 'canceled' AND start_date = ?
			ORDER BY id COLLATE BINARY ASC
		`, terminated.SubscriberID, terminated.CarrierID, terminated.Year+1, terminated.ID,
			dateArg(enrollment.Day(terminated.Year+1, time.January, 1)))
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				UPDATE policies SET status = 'canceled', end_date = start_date, version = version + 1 WHERE id = ?
			`, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE policy_members SET end_date = start_date WHERE policy_id = ?`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cancel dependent renewals of %s: %w", terminated.ID, err)
	}
	return ids, nil
}
