package harness

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/ideacrew/gluedb-sub000/internal/store"
)

// identifier matches the table and column names final_state interpolates.
// Values are always bound as parameters.
var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError describes a failed assertion. Trace assertions attach the
// full trace so the failure can be read without rerunning the scenario.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&b, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&b, "  Actual: %s\n", e.Actual)
	if len(e.Trace) == 0 {
		return b.String()
	}
	b.WriteString("\nFull trace:\n")
	for _, ev := range e.Trace {
		action := ev.Action
		if action == "" {
			action = "(unmatched)"
		}
		fmt.Fprintf(&b, "  [%d] %s %s %v %s\n", ev.Seq, ev.BatchID, action, ev.HbxEnrollmentIDs, ev.Outcome)
	}
	return b.String()
}

// AssertionContext gives store-backed assertions access to the scenario
// database.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions runs every assertion and returns one message per
// failure. actx may be nil when no assertion reads the store.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result.Trace, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertion[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(trace, a)
	case AssertTraceCount:
		return assertTraceCount(trace, a)
	case AssertFinalState, AssertConfirmations, AssertDispositions:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}

	if actx == nil || actx.Store == nil {
		return fmt.Errorf("%s requires database context", a.Type)
	}
	switch a.Type {
	case AssertConfirmations:
		return assertConfirmations(actx.Ctx, actx.Store, a)
	case AssertDispositions:
		return assertDispositions(actx.Ctx, actx.Store, a)
	default:
		return assertFinalState(actx.Ctx, actx.Store, a)
	}
}

// assertTraceContains checks that some chunk ran the action. Notices,
// outcome and canceled renewals narrow the match when given.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		switch {
		case ev.Action != a.Action:
		case a.HbxEnrollmentIDs != nil && !slices.Equal(ev.HbxEnrollmentIDs, a.HbxEnrollmentIDs):
		case a.Outcome != "" && ev.Outcome != a.Outcome:
		case a.Canceled != nil && !slices.Equal(ev.Canceled, a.Canceled):
		default:
			return nil
		}
	}

	expected := "action " + a.Action
	if a.HbxEnrollmentIDs != nil {
		expected += fmt.Sprintf(" for %v", a.HbxEnrollmentIDs)
	}
	if a.Outcome != "" {
		expected += " with outcome " + a.Outcome
	}
	if a.Canceled != nil {
		expected += fmt.Sprintf(" canceling %v", a.Canceled)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the first run of each action follows the
// first run of the one listed before it. Other chunks may interleave.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	first := make(map[string]int)
	for i, ev := range trace {
		if _, seen := first[ev.Action]; ev.Action != "" && !seen {
			first[ev.Action] = i + 1
		}
	}

	for _, action := range a.Actions {
		if first[action] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all actions present: %v", a.Actions),
				Actual:   "missing action: " + action,
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Actions); i++ {
		prev, curr := a.Actions[i-1], a.Actions[i]
		if first[prev] >= first[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("actions in order: %v", a.Actions),
				Actual:   fmt.Sprintf("%s (pos %d) should be before %s (pos %d)", prev, first[prev], curr, first[curr]),
				Trace:    trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks how many chunks ran the action.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if ev.Action == a.Action {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
		Actual:   fmt.Sprintf("%d occurrences", n),
		Trace:    trace,
	}
}

// assertConfirmations checks the action URIs queued in the outbox for one
// enrollment, in enqueue order.
func assertConfirmations(ctx context.Context, st *store.Store, a Assertion) error {
	queued, err := st.ReadConfirmations(ctx, a.HbxEnrollmentID)
	if err != nil {
		return err
	}
	got := make([]string, len(queued))
	for i, c := range queued {
		got[i] = c.ActionURI
	}
	if slices.Equal(got, a.Documents) {
		return nil
	}
	return &AssertionError{
		Type:     AssertConfirmations,
		Expected: fmt.Sprintf("confirmations %v for %s", a.Documents, a.HbxEnrollmentID),
		Actual:   fmt.Sprintf("%v", got),
	}
}

// assertDispositions checks the acknowledgments recorded for one
// enrollment, in the order they were made.
func assertDispositions(ctx context.Context, st *store.Store, a Assertion) error {
	recorded, err := st.ReadDispositions(ctx, a.HbxEnrollmentID)
	if err != nil {
		return err
	}
	got := make([]string, len(recorded))
	for i, d := range recorded {
		got[i] = string(d.Disposition)
	}
	if slices.Equal(got, a.Dispositions) {
		return nil
	}
	return &AssertionError{
		Type:     AssertDispositions,
		Expected: fmt.Sprintf("dispositions %v for %s", a.Dispositions, a.HbxEnrollmentID),
		Actual:   fmt.Sprintf("%v", got),
	}
}

// assertFinalState checks that exactly one row of the table matches Where
// and that it holds every Expect value. Unlisted columns are ignored.
func assertFinalState(ctx context.Context, st *store.Store, a Assertion) error {
	if a.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}
	if !identifier.MatchString(a.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", a.Table, identifier)
	}
	where, args, err := whereClause(a.Where)
	if err != nil {
		return err
	}

	query := "SELECT * FROM " + a.Table
	if where != "" {
		query += " WHERE " + where
	}
	row, columns, err := queryOneRow(ctx, st, query, args)
	desc := describeWhere(a.Where)
	switch {
	case errors.Is(err, errNoRow):
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", a.Table, desc),
			Actual:   "row not found",
		}
	case errors.Is(err, errManyRows):
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", a.Table, desc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	case err != nil:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: "query table " + a.Table,
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	for _, key := range sortedKeys(a.Expect) {
		want := a.Expect[key]
		got, ok := row[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(want, got) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, want, want),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, got, got),
			}
		}
	}
	return nil
}

var (
	errNoRow    = errors.New("no row")
	errManyRows = errors.New("more than one row")
)

// queryOneRow scans the single row a query returns into a column map.
func queryOneRow(ctx context.Context, st *store.Store, query string, args []any) (map[string]any, []string, error) {
	rows, err := st.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, columns, err
		}
		return nil, columns, errNoRow
	}
	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, columns, err
	}
	if rows.Next() {
		return nil, columns, errManyRows
	}

	row := make(map[string]any, len(columns))
	for i, col := range columns {
		row[col] = values[i]
	}
	return row, columns, nil
}

// whereClause builds a parameterized conjunction over sorted keys. A nil
// value matches NULL.
func whereClause(where map[string]any) (string, []any, error) {
	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !identifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, identifier)
		}
		if where[key] == nil {
			clauses = append(clauses, key+" IS NULL")
			continue
		}
		clauses = append(clauses, key+" = ?")
		args = append(args, sqlValue(where[key]))
	}
	return strings.Join(clauses, " AND "), args, nil
}

// sqlValue converts a YAML-decoded value to a SQLite argument. Booleans
// are stored as 0 and 1.
func sqlValue(v any) any {
	switch val := v.(type) {
	case string, int, int64:
		return val
	case bool:
		if val {
			return 1
		}
		return 0
	default:
		return fmt.Sprintf("%v", val)
	}
}

func describeWhere(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}
	parts := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stateValuesEqual compares a YAML value with a scanned SQLite value.
// SQLite yields integers as int64, text as string or []byte and booleans
// as 0 or 1.
func stateValuesEqual(expected, actual any) bool {
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		act, ok := actual.(string)
		return ok && exp == act
	case int:
		act, ok := actual.(int64)
		return ok && int64(exp) == act
	case int64:
		act, ok := actual.(int64)
		return ok && exp == act
	case bool:
		if act, ok := actual.(bool); ok {
			return exp == act
		}
		act, ok := actual.(int64)
		return ok && exp == (act != 0)
	}
	return fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual)
}
