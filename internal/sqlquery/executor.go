package sqlquery

import (
	"context"
	"database/sql"
	"time"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
)

// Querier is the read side of a relational store; *sql.DB and *db.DB
// satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ResultSet holds the rows of one query, keyed by column name.
type ResultSet struct {
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"rows"`
	Truncated bool             `json:"truncated"`
}

// Executor runs translated queries with a per-query deadline.
type Executor struct {
	db      Querier
	timeout time.Duration
}

func NewExecutor(db Querier, timeout time.Duration) *Executor {
	return &Executor{db: db, timeout: timeout}
}

// Execute runs q and returns at most q.Limit rows. One extra row is read
// to tell whether the cap cut the result short.
func (e *Executor) Execute(ctx context.Context, q *Query) (*ResultSet, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	probe := *q
	probe.Limit = q.Limit + 1
	stmt, args := probe.SQL()

	rows, err := e.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, apperr.FromExternal(err, apperr.KindExternalService, apperr.CodeUnavailable, "querying database")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, apperr.FromExternal(err, apperr.KindExternalService, apperr.CodeUnavailable, "reading columns")
	}

	rs := &ResultSet{Columns: cols, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, apperr.FromExternal(err, apperr.KindExternalService, apperr.CodeUnavailable, "scanning row")
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.FromExternal(err, apperr.KindExternalService, apperr.CodeUnavailable, "reading rows")
	}

	if len(rs.Rows) > q.Limit {
		rs.Rows = rs.Rows[:q.Limit]
		rs.Truncated = true
	}
	return rs, nil
}
