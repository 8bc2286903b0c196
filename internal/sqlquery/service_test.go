package sqlquery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/compound-rag/internal/api"
	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/catalog"
	"github.com/ziadkadry99/compound-rag/internal/db"
	"github.com/ziadkadry99/compound-rag/internal/llm"
)

type testEnv struct {
	db    *db.DB
	store *catalog.Store
	calls *atomic.Int32
	reply func() (string, error)
}

func newService(t *testing.T, rowCap int) (*Service, *testEnv) {
	t.Helper()
	d, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.EnsureSampleTables(context.Background()))

	store := catalog.NewStore(d)
	require.NoError(t, store.CreateCompound(context.Background(), &catalog.Compound{ID: "c1", Title: "C1"}))

	env := &testEnv{db: d, store: store, calls: &atomic.Int32{}}
	env.reply = func() (string, error) { return "Six products cost more than 100.", nil }
	provider := llm.ProviderFunc(func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		env.calls.Add(1)
		content, err := env.reply()
		if err != nil {
			return nil, err
		}
		return &llm.CompletionResponse{Content: content}, nil
	})

	schema := sampleSchema(t)
	svc := NewService(store, schema,
		NewTranslator(schema, TranslatorOptions{RowCap: rowCap}),
		NewExecutor(d, 5*time.Second),
		NewSummarizer(provider, SummarizerOptions{MaxRows: 3}))
	return svc, env
}

func TestSearchDatabase_PriceFilter(t *testing.T) {
	svc, _ := newService(t, 100)

	res, err := svc.SearchDatabase(context.Background(), "c1", Request{
		Query:   "find all items over price 100",
		Table:   "ipx_b_products",
		Columns: []string{"id", "name", "price"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "name", "price"}, res.Columns)
	assert.Equal(t, 6, res.RowCount)
	assert.False(t, res.Truncated)
	assert.Empty(t, res.Summary)
	for _, row := range res.Results {
		assert.Len(t, row, 3)
		assert.Contains(t, row, "id")
		assert.Contains(t, row, "name")
		price, ok := row["price"].(float64)
		require.True(t, ok, "price is %T", row["price"])
		assert.Greater(t, price, 100.0)
	}
	assert.Contains(t, res.Statement, `"price" > ?`)
}

func TestSearchDatabase_RowCap(t *testing.T) {
	svc, _ := newService(t, 2)

	res, err := svc.SearchDatabase(context.Background(), "c1", Request{
		Query:   "find all items over price 100",
		Table:   "ipx_b_products",
		Columns: []string{"id", "name", "price"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
	assert.True(t, res.Truncated)

	res, err = svc.SearchDatabase(context.Background(), "c1", Request{Query: "top 50 products", Table: "ipx_b_products"})
	require.NoError(t, err)
	assert.Len(t, res.Results, 2)
}

func TestSearchDatabase_Ordering(t *testing.T) {
	svc, _ := newService(t, 100)

	res, err := svc.SearchDatabase(context.Background(), "c1", Request{
		Query: "top 2 most expensive products",
		Table: "ipx_b_products",
	})
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "Laptop Pro 14", res.Results[0]["name"])
	assert.Equal(t, "Espresso Machine", res.Results[1]["name"])
	assert.Len(t, res.Results[0], 8)
}

func TestSearchDatabase_Scope(t *testing.T) {
	svc, _ := newService(t, 100)
	req := Request{Query: "everything", Table: "ipx_b_products"}

	_, err := svc.SearchDatabase(context.Background(), "", req)
	assert.True(t, errors.Is(err, &apperr.Error{Kind: apperr.KindValidation, Code: apperr.CodeMissingCompoundID}))

	_, err = svc.SearchDatabase(context.Background(), "ghost", req)
	assert.True(t, errors.Is(err, &apperr.Error{Kind: apperr.KindValidation, Code: apperr.CodeInvalidScope}))

	_, err = svc.SearchDatabase(context.Background(), "c1", Request{Query: "everything", Table: "documents"})
	assert.True(t, errors.Is(err, &apperr.Error{Kind: apperr.KindValidation, Code: apperr.CodeUnknownTable}))
}

func TestSearchDatabase_Summary(t *testing.T) {
	svc, env := newService(t, 100)
	ctx := context.Background()

	res, err := svc.SearchDatabase(ctx, "c1", Request{Query: "items over price 100", Table: "ipx_b_products", Summary: true})
	require.NoError(t, err)
	assert.Equal(t, "Six products cost more than 100.", res.Summary)
	assert.False(t, res.Degraded)
	assert.EqualValues(t, 1, env.calls.Load())

	res, err = svc.SearchDatabase(ctx, "c1", Request{Query: "items over price 100000", Table: "ipx_b_products", Summary: true})
	require.NoError(t, err)
	assert.Empty(t, res.Results)
	assert.Equal(t, NoRecordsSummary, res.Summary)
	assert.EqualValues(t, 1, env.calls.Load())

	env.reply = func() (string, error) { return "", context.DeadlineExceeded }
	res, err = svc.SearchDatabase(ctx, "c1", Request{Query: "items over price 100", Table: "ipx_b_products", Summary: true})
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Empty(t, res.Summary)
	assert.Equal(t, 6, res.RowCount)
}

func TestSummarizer_PromptIsGroundedAndCapped(t *testing.T) {
	var prompt string
	provider := llm.ProviderFunc(func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		prompt = req.Messages[1].Content
		return &llm.CompletionResponse{Content: " ok "}, nil
	})
	s := NewSummarizer(provider, SummarizerOptions{MaxRows: 2})

	rs := &ResultSet{
		Columns: []string{"name"},
		Rows:    []map[string]any{{"name": "alpha"}, {"name": "beta"}, {"name": "gamma"}},
	}
	out, err := s.Summarize(context.Background(), "names?", rs)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Contains(t, prompt, `{"name":"alpha"}`)
	assert.Contains(t, prompt, `{"name":"beta"}`)
	assert.NotContains(t, prompt, "gamma")
	assert.Contains(t, prompt, "2 of the returned rows are shown")
	assert.True(t, strings.HasSuffix(prompt, "Question: names?"))

	_, err = NewSummarizer(nil, SummarizerOptions{}).Summarize(context.Background(), "q", rs)
	assert.True(t, apperr.IsKind(err, apperr.KindExternalService))
}

func TestRoutes(t *testing.T) {
	svc, _ := newService(t, 100)
	r := chi.NewRouter()
	RegisterRoutes(r, svc)
	srv := httptest.NewServer(r)
	defer srv.Close()

	do := func(method, path, compound, body string) (int, api.Envelope) {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		if compound != "" {
			req.Header.Set(api.CompoundHeader, compound)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var env api.Envelope
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
		return resp.StatusCode, env
	}

	code, env := do(http.MethodPost, "/api/search/database", "c1",
		`{"query":"find all items over price 100","table_name":"ipx_b_products","columns":["id","name","price"]}`)
	require.Equal(t, http.StatusOK, code)
	data := env.Data.(map[string]any)
	assert.Len(t, data["results"], 6)

	code, env = do(http.MethodPost, "/api/search/database", "c1", `{"query":"x","table_name":"users"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperr.CodeUnknownTable, env.Error.Code)

	code, env = do(http.MethodPost, "/api/search/database", "c1", `{"query":"x","table_name":"ipx_b_products","columns":["secret"]}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, apperr.CodeUnknownColumn, env.Error.Code)

	code, _ = do(http.MethodPost, "/api/search/database", "", `{"query":"x","table_name":"ipx_b_products"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = do(http.MethodGet, "/api/search/database/tables", "", "")
	require.Equal(t, http.StatusOK, code)
	tables := env.Data.(map[string]any)["tables"].([]any)
	assert.Len(t, tables, 3)
}
