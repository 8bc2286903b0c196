package sqlquery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/config"
	"github.com/ziadkadry99/compound-rag/internal/llm"
)

func sampleSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(SampleTables()...)
	require.NoError(t, err)
	return s
}

func TestSchema_AllowList(t *testing.T) {
	s := sampleSchema(t)

	tbl, err := s.Table("IPX_B_PRODUCTS")
	require.NoError(t, err)
	assert.Equal(t, "ipx_b_products", tbl.Name)

	_, err = s.Table("sqlite_master")
	assert.True(t, errors.Is(err, &apperr.Error{Kind: apperr.KindValidation, Code: apperr.CodeUnknownTable}))

	all, err := tbl.Project(nil)
	require.NoError(t, err)
	assert.Len(t, all, len(tbl.Columns))

	_, err = tbl.Project([]string{"id", "password"})
	assert.True(t, errors.Is(err, &apperr.Error{Kind: apperr.KindValidation, Code: apperr.CodeUnknownColumn}))

	dedup, err := tbl.Project([]string{"price", "PRICE", "id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "id"}, columnNames(dedup))

	var names []string
	for _, table := range s.Tables() {
		names = append(names, table.Name)
	}
	assert.Equal(t, []string{"ipx_b_categories", "ipx_b_products", "ipx_b_suppliers"}, names)
}

func TestNewSchema_RejectsUnsafeIdentifiers(t *testing.T) {
	_, err := NewSchema(Table{Name: "orders; DROP TABLE x", Columns: []Column{{Name: "id", Type: TypeInteger}}})
	assert.Error(t, err)

	_, err = NewSchema(Table{Name: "orders", Columns: []Column{{Name: `id" --`, Type: TypeInteger}}})
	assert.Error(t, err)

	_, err = NewSchema(Table{Name: "orders", Columns: []Column{{Name: "id", Type: "blob"}}})
	assert.Error(t, err)

	_, err = NewSchema(Table{Name: "orders"})
	assert.Error(t, err)
}

func TestSchemaFromConfig(t *testing.T) {
	s, err := SchemaFromConfig(config.StructuredConfig{
		SampleTables: true,
		Tables: []config.TableConfig{{
			Name:    "orders",
			Columns: []config.ColumnConfig{{Name: "id", Type: "integer"}, {Name: "total", Type: "real"}},
		}},
	})
	require.NoError(t, err)
	assert.Len(t, s.Tables(), 4)

	s, err = SchemaFromConfig(config.StructuredConfig{
		Tables: []config.TableConfig{{Name: "orders", Columns: []config.ColumnConfig{{Name: "id", Type: "integer"}}}},
	})
	require.NoError(t, err)
	_, err = s.Table("ipx_b_products")
	assert.Error(t, err)
}

func TestTranslate_Rules(t *testing.T) {
	tr := NewTranslator(sampleSchema(t), TranslatorOptions{RowCap: 100})

	tests := []struct {
		question string
		filters  []Filter
		order    *Order
		limit    int
	}{
		{
			question: "find all items over price 100",
			filters:  []Filter{{Column: "price", Op: OpGt, Value: 100.0}},
			limit:    100,
		},
		{
			question: "products with a price under 50",
			filters:  []Filter{{Column: "price", Op: OpLt, Value: 50.0}},
			limit:    100,
		},
		{
			question: "stock quantity at least 100",
			filters:  []Filter{{Column: "stock_quantity", Op: OpGte, Value: int64(100)}},
			limit:    100,
		},
		{
			question: "items costing no more than 30",
			filters:  []Filter{{Column: "price", Op: OpLte, Value: 30.0}},
			limit:    100,
		},
		{
			question: "anything above 500",
			filters:  []Filter{{Column: "price", Op: OpGt, Value: 500.0}},
			limit:    100,
		},
		{
			question: "price over 100 and stock below 20",
			filters: []Filter{
				{Column: "price", Op: OpGt, Value: 100.0},
				{Column: "stock_quantity", Op: OpLt, Value: int64(20)},
			},
			limit: 100,
		},
		{
			question: "show products with a price of 100 or more",
			filters:  []Filter{{Column: "price", Op: OpGte, Value: 100.0}},
			limit:    100,
		},
		{
			question: "products priced 100 or above",
			filters:  []Filter{{Column: "price", Op: OpGte, Value: 100.0}},
			limit:    100,
		},
		{
			question: "stock of 20 or less",
			filters:  []Filter{{Column: "stock_quantity", Op: OpLte, Value: int64(20)}},
			limit:    100,
		},
		{
			question: "price 100 or above and stock under 20",
			filters: []Filter{
				{Column: "price", Op: OpGte, Value: 100.0},
				{Column: "stock_quantity", Op: OpLt, Value: int64(20)},
			},
			limit: 100,
		},
		{
			question: "items where the price is 25",
			filters:  []Filter{{Column: "price", Op: OpEq, Value: 25.0}},
			limit:    100,
		},
		{
			question: "what is the price of laptop pro 14",
			limit:    100,
		},
		{
			question: "top 3 most expensive products",
			order:    &Order{Column: "price", Desc: true},
			limit:    3,
		},
		{
			question: "products sorted by stock quantity desc",
			order:    &Order{Column: "stock_quantity", Desc: true},
			limit:    100,
		},
		{
			question: "the lowest price items, first 500",
			order:    &Order{Column: "price"},
			limit:    100,
		},
		{
			question: `products named "desk"`,
			filters:  []Filter{{Column: "name", Op: OpContains, Value: "desk"}},
			limit:    100,
		},
		{
			question: `description containing 'wireless'`,
			filters:  []Filter{{Column: "description", Op: OpContains, Value: "wireless"}},
			limit:    100,
		},
		{
			question: "list everything",
			limit:    100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			q, err := tr.Translate(context.Background(), tt.question, "ipx_b_products", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.filters, q.Filters)
			assert.Equal(t, tt.order, q.OrderBy)
			assert.Equal(t, tt.limit, q.Limit)
			assert.Len(t, q.Columns, 8)
		})
	}
}

func TestTranslate_ValidatesBeforeBuilding(t *testing.T) {
	tr := NewTranslator(sampleSchema(t), TranslatorOptions{RowCap: 10})
	ctx := context.Background()

	for _, table := range []string{"", "users", "ipx_b_products; DROP TABLE ipx_b_products", "sqlite_master"} {
		q, err := tr.Translate(ctx, "everything", table, nil)
		assert.Nil(t, q)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), table)
	}
	for _, cols := range [][]string{{"id", "secret"}, {`name" FROM x --`}, {"*"}} {
		q, err := tr.Translate(ctx, "everything", "ipx_b_products", cols)
		assert.Nil(t, q)
		assert.True(t, errors.Is(err, &apperr.Error{Kind: apperr.KindValidation, Code: apperr.CodeUnknownColumn}))
	}

	_, err := tr.Translate(ctx, "   ", "ipx_b_products", nil)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestTranslate_ValuesAreBound(t *testing.T) {
	tr := NewTranslator(sampleSchema(t), TranslatorOptions{RowCap: 10})

	q, err := tr.Translate(context.Background(), `name "x' or 1=1; drop table ipx_b_products --" over 5`, "ipx_b_products", []string{"id"})
	require.NoError(t, err)

	stmt, args := q.SQL()
	assert.Equal(t, `SELECT "id" FROM "ipx_b_products" WHERE "price" > ? AND "name" LIKE ? ESCAPE '\' LIMIT ?`, stmt)
	assert.Equal(t, []any{5.0, "%x' or 1=1; drop table ipx\\_b\\_products --%", 10}, args)
	assert.NotContains(t, strings.ToLower(stmt), "drop")
}

func TestQuerySQL(t *testing.T) {
	q := &Query{
		Table:   "ipx_b_products",
		Columns: []string{"id", "name"},
		Filters: []Filter{{Column: "category_id", Op: OpEq, Value: int64(2)}, {Column: "name", Op: OpContains, Value: "50%"}},
		OrderBy: &Order{Column: "price", Desc: true},
		Limit:   5,
	}
	stmt, args := q.SQL()
	assert.Equal(t, `SELECT "id", "name" FROM "ipx_b_products" WHERE "category_id" = ? AND "name" LIKE ? ESCAPE '\' ORDER BY "price" DESC LIMIT ?`, stmt)
	assert.Equal(t, []any{int64(2), `%50\%%`, 5}, args)
}

func TestTranslate_Planner(t *testing.T) {
	reply := ""
	planner := llm.ProviderFunc(func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if !req.JSONMode {
			return nil, errors.New("expected json mode")
		}
		return &llm.CompletionResponse{Content: reply}, nil
	})
	tr := NewTranslator(sampleSchema(t), TranslatorOptions{RowCap: 20, Planner: planner})
	ctx := context.Background()

	reply = "```json\n" + `{"columns":["name","price"],"filters":[{"column":"price","op":">=","value":"200"}],"order_by":{"column":"price","desc":true},"limit":50}` + "\n```"
	q, err := tr.Translate(ctx, "expensive things", "ipx_b_products", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "price"}, q.Columns)
	assert.Equal(t, []Filter{{Column: "price", Op: OpGte, Value: 200.0}}, q.Filters)
	assert.Equal(t, &Order{Column: "price", Desc: true}, q.OrderBy)
	assert.Equal(t, 20, q.Limit)

	q, err = tr.Translate(ctx, "expensive things", "ipx_b_products", []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, q.Columns)

	// A plan naming a column outside the allow-list falls back to rules.
	reply = `{"filters":[{"column":"password","op":"=","value":"x"}]}`
	q, err = tr.Translate(ctx, "items over price 100", "ipx_b_products", nil)
	require.NoError(t, err)
	assert.Equal(t, []Filter{{Column: "price", Op: OpGt, Value: 100.0}}, q.Filters)

	reply = `{"filters":[{"column":"price","op":"; DELETE","value":1}]}`
	q, err = tr.Translate(ctx, "items over price 100", "ipx_b_products", nil)
	require.NoError(t, err)
	assert.Equal(t, OpGt, q.Filters[0].Op)

	reply = "SELECT * FROM ipx_b_products"
	q, err = tr.Translate(ctx, "cheapest", "ipx_b_products", nil)
	require.NoError(t, err)
	assert.Equal(t, &Order{Column: "price"}, q.OrderBy)
}
