package database

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrForeignKey      = errors.New("foreign key constraint failed")
	ErrUniqueViolation = errors.New("unique constraint violated")
	ErrNotNull         = errors.New("not null constraint failed")
	ErrCheckConstraint = errors.New("check constraint failed")
)

// ConstraintKind names the SQLite constraint a write violated.
type ConstraintKind string

const (
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintNotNull    ConstraintKind = "not_null"
	ConstraintCheck      ConstraintKind = "check"
)

// ConstraintError is a constraint violation reported by SQLite, with the
// offending table and columns when the driver message names them.
type ConstraintError struct {
	Kind    ConstraintKind
	Table   string
	Columns []string
	Cause   error
}

func (e *ConstraintError) Error() string {
	if e.Table == "" {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s on %s(%s)", e.Cause, e.Table, strings.Join(e.Columns, ", "))
}

func (e *ConstraintError) Unwrap() error {
	return e.Cause
}

// constraintMessages maps the driver's message prefix to a kind. SQLite
// appends "table.column[, table.column...]" for unique and not-null failures.
var constraintMessages = []struct {
	prefix string
	kind   ConstraintKind
	cause  error
}{
	{"FOREIGN KEY constraint failed", ConstraintForeignKey, ErrForeignKey},
	{"UNIQUE constraint failed:", ConstraintUnique, ErrUniqueViolation},
	{"NOT NULL constraint failed:", ConstraintNotNull, ErrNotNull},
	{"CHECK constraint failed", ConstraintCheck, ErrCheckConstraint},
}

// ClassifyError turns a SQLite constraint failure into a *ConstraintError.
// Any other error is returned unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	for _, m := range constraintMessages {
		idx := strings.Index(msg, m.prefix)
		if idx < 0 {
			continue
		}
		ce := &ConstraintError{Kind: m.kind, Cause: m.cause}
		if strings.HasSuffix(m.prefix, ":") {
			ce.Table, ce.Columns = parseColumns(msg[idx+len(m.prefix):])
		}
		return ce
	}
	return err
}

// parseColumns splits " schedules.tenant_id, schedules.name (2067)" into the
// table and its column names.
func parseColumns(s string) (string, []string) {
	if i := strings.Index(s, " ("); i >= 0 {
		s = s[:i]
	}

	var table string
	var columns []string
	for _, part := range strings.Split(s, ",") {
		t, col, ok := strings.Cut(strings.TrimSpace(part), ".")
		if !ok {
			continue
		}
		table = t
		columns = append(columns, col)
	}
	return table, columns
}

func constraintKind(err error) ConstraintKind {
	var ce *ConstraintError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

func IsConstraintError(err error) bool {
	return constraintKind(err) != ""
}

func IsForeignKeyError(err error) bool {
	return constraintKind(err) == ConstraintForeignKey
}

func IsUniqueError(err error) bool {
	return constraintKind(err) == ConstraintUnique
}
