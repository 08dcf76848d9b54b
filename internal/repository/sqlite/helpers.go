package sqlite

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"netonboard/internal/domain"
)

// ============================================================================
// Filter Translation
// ============================================================================

var fieldName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// filterClause turns a filter into " AND json_extract(...) = ?" terms.
// Keys are validated because they are interpolated into the JSON path.
func filterClause(filter domain.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	var (
		b    strings.Builder
		args []any
	)
	for _, k := range filter.Keys() {
		if !fieldName.MatchString(k) {
			return "", nil, domain.Errorf(domain.KindConfig, "invalid filter field %q", k)
		}

		v := filter[k]
		if v == nil {
			fmt.Fprintf(&b, " AND json_extract(data, '$.%s') IS NULL", k)
			continue
		}

		fmt.Fprintf(&b, " AND json_extract(data, '$.%s') = ?", k)
		args = append(args, sqlValue(v))
	}

	return b.String(), args, nil
}

// sqlValue converts a filter value to what json_extract yields for it.
func sqlValue(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case fmt.Stringer:
		return t.String()
	default:
		return v
	}
}

// ============================================================================
// Error Classification
// ============================================================================

// classify maps a database error to a domain error kind. Uniqueness
// violations are conflicts; everything else means the store could not serve
// the request.
func classify(msg string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return domain.NewError(domain.KindConflictingEntity, msg, err)
		}
	}

	if errors.Is(err, context.Canceled) {
		return domain.NewError(domain.KindCancelled, msg, err)
	}

	return domain.NewError(domain.KindStoreUnavailable, msg, err)
}
