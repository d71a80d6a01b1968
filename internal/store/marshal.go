package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/ir"
)

// dateArg formats a coverage date for a TEXT column.
func dateArg(t time.Time) string {
	return enrollment.FormatDate(t)
}

// nullDateArg formats an optional end date; nil becomes NULL.
func nullDateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return enrollment.FormatDate(*t)
}

func parseDate(s string) (time.Time, error) {
	t, err := enrollment.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored date %q: %w", s, err)
	}
	return t, nil
}

func parseNullDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolArg(b bool) int {
	if b {
		return 1
	}
	return 0
}

// marshalIDs converts an id list to canonical JSON TEXT for storage.
func marshalIDs(ids []string) (string, error) {
	data, err := ir.MarshalCanonical(ir.Strings(ids))
	if err != nil {
		return "", fmt.Errorf("marshal ids: %w", err)
	}
	return string(data), nil
}

// unmarshalIDs parses a stored id list. Empty TEXT is an empty list.
func unmarshalIDs(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal ids: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}
