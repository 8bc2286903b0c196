package sqlquery

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/llm"
)

type TranslatorOptions struct {
	RowCap int
	// Planner, when set, proposes a JSON plan before the rule-based
	// translation runs. Any plan that fails validation is discarded.
	Planner llm.Provider
	Model   string
	Timeout time.Duration
}

// Translator turns a question about one allow-listed table into a Query.
type Translator struct {
	schema *Schema
	opts   TranslatorOptions
}

func NewTranslator(schema *Schema, opts TranslatorOptions) *Translator {
	if opts.RowCap <= 0 {
		opts.RowCap = 100
	}
	return &Translator{schema: schema, opts: opts}
}

// Translate validates table and columns against the allow-list and then
// maps recognisable comparisons, ordering and limits in question onto a
// Query. The row cap is always applied.
func (t *Translator) Translate(ctx context.Context, question, table string, columns []string) (*Query, error) {
	tbl, err := t.schema.Table(table)
	if err != nil {
		return nil, err
	}
	proj, err := tbl.Project(columns)
	if err != nil {
		return nil, err
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "query is required")
	}

	q := &Query{Table: tbl.Name, Columns: columnNames(proj), Limit: t.opts.RowCap}

	if t.opts.Planner != nil {
		planned, err := t.plan(ctx, question, tbl, len(columns) > 0, q)
		if err == nil {
			return planned, nil
		}
		log.Debug().Err(err).Str("table", tbl.Name).Msg("query plan rejected, using rule-based translation")
	}

	t.applyRules(q, tbl, strings.ToLower(question))
	return q, nil
}

func columnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

type comparator struct {
	re *regexp.Regexp
	op Op
}

// comparators are matched against the text before a number; longer
// phrases come first so "greater than or equal to" wins over "equal to".
var comparators = buildComparators([]struct {
	op      Op
	phrases []string
}{
	{OpGte, []string{"greater than or equal to", "more than or equal to", "at least", "no less than", "minimum of", ">="}},
	{OpLte, []string{"less than or equal to", "at most", "no more than", "maximum of", "up to", "<="}},
	{OpNe, []string{"not equal to", "other than", "except", "!=", "<>"}},
	{OpGt, []string{"greater than", "more than", "higher than", "larger than", "bigger than", "over", "above", "exceeding", "exceeds", "beyond", ">"}},
	{OpLt, []string{"less than", "lower than", "smaller than", "cheaper than", "fewer than", "under", "below", "<"}},
	{OpEq, []string{"equal to", "equals", "exactly", "="}},
})

// A qualifier right after the number ("100 or more") overrides whatever
// came before it.
var (
	atLeastRe = regexp.MustCompile(`^\s*(?:or|and)\s+(?:more|above|higher|greater|over|up)\b`)
	atMostRe  = regexp.MustCompile(`^\s*(?:or|and)\s+(?:less|below|under|lower|fewer|smaller)\b`)
	// "price of 100", "stock is 20": equality only when the word sits
	// directly before the number.
	bareEqRe = regexp.MustCompile(`\b(?:is|of|at)\s*\$?\s*$`)
)

func trailingComparator(s string) (Op, int, bool) {
	if m := atLeastRe.FindStringIndex(s); m != nil {
		return OpGte, m[1], true
	}
	if m := atMostRe.FindStringIndex(s); m != nil {
		return OpLte, m[1], true
	}
	return "", 0, false
}

func buildComparators(groups []struct {
	op      Op
	phrases []string
}) []comparator {
	var out []comparator
	for _, g := range groups {
		for _, p := range g.phrases {
			pat := regexp.QuoteMeta(p)
			if strings.ContainsAny(p, "abcdefghijklmnopqrstuvwxyz") {
				pat = `\b` + pat + `\b`
			}
			out = append(out, comparator{re: regexp.MustCompile(pat), op: g.op})
		}
	}
	return out
}

// columnAliases lets common words stand in for column names.
var columnAliases = map[string][]string{
	"price":          {"cost", "costs", "costing", "priced", "prices"},
	"stock_quantity": {"stock", "in stock", "quantity", "units"},
	"created_at":     {"created", "creation date"},
	"contact_email":  {"email"},
	"phone_number":   {"phone"},
}

var (
	numberRe  = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	limitRe   = regexp.MustCompile(`\b(?:top|first|limit|only|show)\s+(\d+)\b`)
	quotedRe  = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	namedRe   = regexp.MustCompile(`\b(?:named|called|titled)\s+([a-z0-9][a-z0-9-]*)`)
	orderByRe = regexp.MustCompile(`\b(?:sorted|ordered|order|sort)\s+by\s+([a-z_ ]+?)(?:\s+(asc|ascending|desc|descending))?(?:$|[,.;!?]|\s+(?:and|with|where)\b)`)
)

// window is how far before a number a comparator and column may appear.
const window = 48

func (t *Translator) applyRules(q *Query, tbl Table, text string) {
	limitSpans := limitRe.FindAllStringSubmatchIndex(text, -1)
	for _, m := range limitSpans {
		if n, err := strconv.Atoi(text[m[2]:m[3]]); err == nil && n > 0 {
			q.Limit = min(n, t.opts.RowCap)
		}
	}

	mentions := findMentions(tbl, text)
	quoted := quotedRe.FindAllStringSubmatchIndex(text, -1)

	prevEnd := 0
	for _, m := range numberRe.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		if insideAny(start, limitSpans) || insideAny(start, quoted) {
			prevEnd = end
			continue
		}
		lo := max(prevEnd, start-window)
		prevEnd = end

		op, ok := lastComparator(text[lo:start])
		if trail, n, found := trailingComparator(text[end:]); found {
			op, ok = trail, true
			prevEnd = end + n
		} else if !ok && bareEqRe.MatchString(text[lo:start]) {
			op, ok = OpEq, true
		}
		if !ok {
			continue
		}
		col, ok := lastMention(mentions, lo, start, func(c Column) bool { return c.Type.Numeric() })
		if !ok {
			col, ok = defaultNumeric(tbl)
		}
		if !ok {
			continue
		}
		val, err := numericValue(col, text[start:end])
		if err != nil {
			continue
		}
		q.Filters = appendFilter(q.Filters, Filter{Column: col.Name, Op: op, Value: val})
	}

	for _, m := range quoted {
		val := submatch(text, m, 1)
		if val == "" {
			val = submatch(text, m, 2)
		}
		col, ok := lastMention(mentions, max(0, m[0]-window), m[0], func(c Column) bool { return c.Type == TypeText })
		if !ok {
			col, ok = defaultText(tbl)
		}
		if ok && strings.TrimSpace(val) != "" {
			q.Filters = appendFilter(q.Filters, Filter{Column: col.Name, Op: OpContains, Value: strings.TrimSpace(val)})
		}
	}
	if len(quoted) == 0 {
		if m := namedRe.FindStringSubmatch(text); m != nil {
			if col, ok := defaultText(tbl); ok {
				q.Filters = appendFilter(q.Filters, Filter{Column: col.Name, Op: OpContains, Value: m[1]})
			}
		}
	}

	q.OrderBy = orderFor(tbl, text, mentions)
}

func insideAny(pos int, spans [][]int) bool {
	for _, s := range spans {
		if pos >= s[0] && pos < s[1] {
			return true
		}
	}
	return false
}

func submatch(text string, m []int, group int) string {
	if m[2*group] < 0 {
		return ""
	}
	return text[m[2*group]:m[2*group+1]]
}

func lastComparator(s string) (Op, bool) {
	bestEnd, bestStart := -1, 0
	var op Op
	for _, c := range comparators {
		for _, m := range c.re.FindAllStringIndex(s, -1) {
			if m[1] > bestEnd || (m[1] == bestEnd && m[0] < bestStart) {
				bestEnd, bestStart, op = m[1], m[0], c.op
			}
		}
	}
	return op, bestEnd >= 0
}

type mention struct {
	col        Column
	start, end int
}

// findMentions locates every column reference in text, by name (with
// underscores read as spaces) or alias, ordered by position.
func findMentions(tbl Table, text string) []mention {
	var out []mention
	for _, c := range tbl.Columns {
		words := append([]string{c.Name, strings.ReplaceAll(c.Name, "_", " ")}, columnAliases[c.Name]...)
		for _, w := range words {
			re := regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `s?\b`)
			for _, m := range re.FindAllStringIndex(text, -1) {
				out = append(out, mention{col: c, start: m[0], end: m[1]})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func lastMention(ms []mention, lo, hi int, keep func(Column) bool) (Column, bool) {
	for i := len(ms) - 1; i >= 0; i-- {
		m := ms[i]
		if m.start >= lo && m.end <= hi && keep(m.col) {
			return m.col, true
		}
	}
	return Column{}, false
}

// defaultNumeric picks the column a bare "over 100" refers to: the only
// real-valued column, if the table has exactly one.
func defaultNumeric(tbl Table) (Column, bool) {
	var found []Column
	for _, c := range tbl.Columns {
		if c.Type == TypeReal {
			found = append(found, c)
		}
	}
	if len(found) == 1 {
		return found[0], true
	}
	return Column{}, false
}

func defaultText(tbl Table) (Column, bool) {
	if c, ok := tbl.Column("name"); ok && c.Type == TypeText {
		return c, true
	}
	for _, c := range tbl.Columns {
		if c.Type == TypeText {
			return c, true
		}
	}
	return Column{}, false
}

func numericValue(col Column, s string) (any, error) {
	if col.Type == TypeInteger && !strings.Contains(s, ".") {
		return strconv.ParseInt(s, 10, 64)
	}
	return strconv.ParseFloat(s, 64)
}

func appendFilter(fs []Filter, f Filter) []Filter {
	for _, existing := range fs {
		if existing.Column == f.Column && existing.Op == f.Op && fmt.Sprint(existing.Value) == fmt.Sprint(f.Value) {
			return fs
		}
	}
	return append(fs, f)
}

var superlatives = []struct {
	re   *regexp.Regexp
	desc bool
}{
	{regexp.MustCompile(`\b(?:highest|most|largest|biggest|maximum|greatest)\s+`), true},
	{regexp.MustCompile(`\b(?:lowest|least|smallest|minimum|fewest)\s+`), false},
}

func orderFor(tbl Table, text string, mentions []mention) *Order {
	if m := orderByRe.FindStringSubmatch(text); m != nil {
		target := strings.TrimSpace(m[1])
		for _, mt := range mentions {
			if strings.HasPrefix(target, text[mt.start:mt.end]) || strings.HasPrefix(text[mt.start:mt.end], target) {
				return &Order{Column: mt.col.Name, Desc: strings.HasPrefix(m[2], "desc")}
			}
		}
	}
	for _, s := range superlatives {
		for _, loc := range s.re.FindAllStringIndex(text, -1) {
			for _, mt := range mentions {
				if mt.start == loc[1] {
					return &Order{Column: mt.col.Name, Desc: s.desc}
				}
			}
		}
	}
	if price, ok := tbl.Column("price"); ok {
		switch {
		case strings.Contains(text, "most expensive"), strings.Contains(text, "priciest"):
			return &Order{Column: price.Name, Desc: true}
		case strings.Contains(text, "cheapest"), strings.Contains(text, "least expensive"):
			return &Order{Column: price.Name}
		}
	}
	if created, ok := tbl.Column("created_at"); ok {
		switch {
		case strings.Contains(text, "newest"), strings.Contains(text, "latest"), strings.Contains(text, "most recent"):
			return &Order{Column: created.Name, Desc: true}
		case strings.Contains(text, "oldest"):
			return &Order{Column: created.Name}
		}
	}
	return nil
}

const planPrompt = `You translate a question about one database table into a JSON query plan.
Respond with a single JSON object and nothing else:
{"columns": ["col", ...], "filters": [{"column": "col", "op": "=", "value": 1}], "order_by": {"column": "col", "desc": false}, "limit": 10}
Allowed ops: =, !=, >, >=, <, <=, contains. Use only the listed columns. Omit order_by when no ordering is asked for.`

type plan struct {
	Columns []string `json:"columns"`
	Filters []Filter `json:"filters"`
	OrderBy *Order   `json:"order_by"`
	Limit   int      `json:"limit"`
}

// plan asks the model for a query plan and validates it against tbl. The
// caller's projection, when given, overrides the proposed one.
func (t *Translator) plan(ctx context.Context, question string, tbl Table, fixedColumns bool, base *Query) (*Query, error) {
	if t.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.Timeout)
		defer cancel()
	}

	var schema strings.Builder
	fmt.Fprintf(&schema, "Table: %s", tbl.Name)
	if tbl.Description != "" {
		fmt.Fprintf(&schema, " (%s)", tbl.Description)
	}
	schema.WriteString("\nColumns:\n")
	for _, c := range tbl.Columns {
		fmt.Fprintf(&schema, "- %s (%s)", c.Name, c.Type)
		if c.Description != "" {
			fmt.Fprintf(&schema, ": %s", c.Description)
		}
		schema.WriteString("\n")
	}

	resp, err := t.opts.Planner.Complete(ctx, llm.CompletionRequest{
		Model:       t.opts.Model,
		Messages:    llm.Grounded(planPrompt, schema.String(), question),
		Temperature: 0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	var p plan
	if err := json.Unmarshal([]byte(stripFence(resp.Content)), &p); err != nil {
		return nil, fmt.Errorf("decoding plan: %w", err)
	}

	q := &Query{Table: base.Table, Columns: base.Columns, Limit: base.Limit}
	if !fixedColumns && len(p.Columns) > 0 {
		cols, err := tbl.Project(p.Columns)
		if err != nil {
			return nil, err
		}
		q.Columns = columnNames(cols)
	}
	for _, f := range p.Filters {
		col, ok := tbl.Column(f.Column)
		if !ok {
			return nil, fmt.Errorf("plan filters on unknown column %q", f.Column)
		}
		if !f.Op.valid() {
			return nil, fmt.Errorf("plan uses unsupported operator %q", f.Op)
		}
		val, err := planValue(col, f.Value)
		if err != nil {
			return nil, err
		}
		q.Filters = append(q.Filters, Filter{Column: col.Name, Op: f.Op, Value: val})
	}
	if p.OrderBy != nil {
		col, ok := tbl.Column(p.OrderBy.Column)
		if !ok {
			return nil, fmt.Errorf("plan orders by unknown column %q", p.OrderBy.Column)
		}
		q.OrderBy = &Order{Column: col.Name, Desc: p.OrderBy.Desc}
	}
	if p.Limit > 0 {
		q.Limit = min(p.Limit, base.Limit)
	}
	return q, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// planValue accepts only scalars, and numbers for numeric columns.
func planValue(col Column, v any) (any, error) {
	switch x := v.(type) {
	case float64:
		if col.Type == TypeInteger && x == float64(int64(x)) {
			return int64(x), nil
		}
		return x, nil
	case string:
		if col.Type.Numeric() {
			f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return nil, fmt.Errorf("plan compares %s with non-number %q", col.Name, x)
			}
			return f, nil
		}
		return x, nil
	case bool:
		return x, nil
	default:
		return nil, fmt.Errorf("plan value for %s is not a scalar", col.Name)
	}
}
