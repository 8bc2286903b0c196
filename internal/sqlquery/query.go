package sqlquery

import (
	"fmt"
	"strings"
)

// Op is a comparison operator allowed in a filter.
type Op string

const (
	OpEq       Op = "="
	OpNe       Op = "!="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpContains Op = "contains"
)

func (o Op) valid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpContains:
		return true
	}
	return false
}

type Filter struct {
	Column string `json:"column"`
	Op     Op     `json:"op"`
	Value  any    `json:"value"`
}

type Order struct {
	Column string `json:"column"`
	Desc   bool   `json:"desc"`
}

// Query is a bounded, single-table SELECT. Only the translator builds
// one, after every identifier it holds has been checked against the
// schema.
type Query struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Filters []Filter `json:"filters,omitempty"`
	OrderBy *Order   `json:"order_by,omitempty"`
	Limit   int      `json:"limit"`
}

// SQL renders the statement and its bound arguments. Filters are ANDed.
func (q *Query) SQL() (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("SELECT ")
	for i, c := range q.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(c))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(q.Table))

	for i, f := range q.Filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		if f.Op == OpContains {
			sb.WriteString(quoteIdent(f.Column))
			sb.WriteString(" LIKE ? ESCAPE '\\'")
			args = append(args, "%"+escapeLike(fmt.Sprint(f.Value))+"%")
			continue
		}
		fmt.Fprintf(&sb, "%s %s ?", quoteIdent(f.Column), f.Op)
		args = append(args, f.Value)
	}

	if q.OrderBy != nil {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(quoteIdent(q.OrderBy.Column))
		if q.OrderBy.Desc {
			sb.WriteString(" DESC")
		}
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, q.Limit)
	return sb.String(), args
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
