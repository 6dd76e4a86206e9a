package database

import (
	"strconv"
	"strings"
)

// FilterOp is a comparison usable in Filter.
type FilterOp string

const (
	OpEq      FilterOp = "="
	OpNe      FilterOp = "!="
	OpGt      FilterOp = ">"
	OpGte     FilterOp = ">="
	OpLt      FilterOp = "<"
	OpLte     FilterOp = "<="
	OpIn      FilterOp = "IN"
	OpIsNull  FilterOp = "IS NULL"
	OpNotNull FilterOp = "IS NOT NULL"
)

// QueryBuilder assembles parameterized SELECT statements for the internal
// tables. Column names are trusted; only values are bound.
type QueryBuilder struct {
	table   string
	columns string
	where   []string
	args    []any
	order   []string
	limit   int
	offset  int
}

func NewQuery(table string) *QueryBuilder {
	return &QueryBuilder{table: table, columns: "*"}
}

func (q *QueryBuilder) Select(columns ...string) *QueryBuilder {
	q.columns = strings.Join(columns, ", ")
	return q
}

// Filter adds "column op value" to the WHERE clause. OpIn takes a []any;
// the null checks ignore value.
func (q *QueryBuilder) Filter(column string, op FilterOp, value any) *QueryBuilder {
	switch op {
	case OpIsNull, OpNotNull:
		q.where = append(q.where, column+" "+string(op))
	case OpIn:
		values, _ := value.([]any)
		if len(values) == 0 {
			// Matches nothing, like an empty IN list would.
			q.where = append(q.where, "0")
			return q
		}
		q.where = append(q.where, column+" IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")+")")
		q.args = append(q.args, values...)
	default:
		q.where = append(q.where, column+" "+string(op)+" ?")
		q.args = append(q.args, value)
	}
	return q
}

func (q *QueryBuilder) Where(column string, value any) *QueryBuilder {
	return q.Filter(column, OpEq, value)
}

// WhereIf adds an equality filter unless value is empty.
func (q *QueryBuilder) WhereIf(column, value string) *QueryBuilder {
	if value == "" {
		return q
	}
	return q.Where(column, value)
}

func (q *QueryBuilder) OrderBy(column string) *QueryBuilder {
	q.order = append(q.order, column+" ASC")
	return q
}

func (q *QueryBuilder) OrderByDesc(column string) *QueryBuilder {
	q.order = append(q.order, column+" DESC")
	return q
}

func (q *QueryBuilder) Limit(n int) *QueryBuilder {
	q.limit = n
	return q
}

func (q *QueryBuilder) Offset(n int) *QueryBuilder {
	q.offset = n
	return q
}

// Build returns the statement and its bound arguments.
func (q *QueryBuilder) Build() (string, []any) {
	sql := "SELECT " + q.columns + " FROM " + q.table + q.whereClause()
	if len(q.order) > 0 {
		sql += " ORDER BY " + strings.Join(q.order, ", ")
	}

	// SQLite only accepts OFFSET after a LIMIT; -1 means unbounded.
	switch {
	case q.limit > 0:
		sql += " LIMIT " + strconv.Itoa(q.limit)
	case q.offset > 0:
		sql += " LIMIT -1"
	}
	if q.offset > 0 {
		sql += " OFFSET " + strconv.Itoa(q.offset)
	}
	return sql, q.args
}

// BuildCount counts the rows matching the same filters.
func (q *QueryBuilder) BuildCount() (string, []any) {
	return "SELECT COUNT(*) FROM " + q.table + q.whereClause(), q.args
}

func (q *QueryBuilder) whereClause() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}
