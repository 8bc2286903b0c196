package cmd

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/compound-rag/internal/catalog"
	"github.com/ziadkadry99/compound-rag/internal/config"
	"github.com/ziadkadry99/compound-rag/internal/search"
	"github.com/ziadkadry99/compound-rag/internal/sqlquery"
	"github.com/ziadkadry99/compound-rag/internal/walker"
)

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.LLM.Provider = config.ProviderNone
	cfg.LLM.Model = ""
	cfg.ApplyPreset(config.ProviderHash)
	cfg.Ingestion.PollInterval = 20 * time.Millisecond
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestApp_IngestAndQueryOffline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := offlineConfig(t)
	a, err := newApp(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()

	compound := &catalog.Compound{ID: "north-yard", Title: "North Yard"}
	require.NoError(t, a.catalog.CreateCompound(ctx, compound))
	dep := &catalog.Department{CompoundID: compound.ID, Title: "Operations"}
	require.NoError(t, a.catalog.CreateDepartment(ctx, dep))

	files, err := walker.Walk(walker.WalkerConfig{
		RootDir:    filepath.Join("..", "testdata", "sample_documents"),
		Extensions: []string{"txt", "md", "csv"},
	})
	require.NoError(t, err)
	require.Len(t, files, 3)

	for _, f := range files {
		department := ""
		if strings.HasPrefix(f.RelPath, "handbook/") {
			department = dep.ID
		}
		require.NoError(t, ingestFile(ctx, a, f, compound.ID, department, "", true), f.RelPath)
	}

	// Same bytes again: rejected by default, returned as-is when flagged.
	err = ingestFile(ctx, a, files[0], compound.ID, "", "", false)
	require.Error(t, err)
	assert.NoError(t, ingestFile(ctx, a, files[0], compound.ID, "", config.DuplicateFlag, true))

	res, err := a.search.SearchDocuments(ctx, compound.ID, "forklift certification renewal", nil, 3)
	require.NoError(t, err)
	require.NotEmpty(t, res.Sources)
	assert.Equal(t, "handbook/safety", res.Sources[0].Title)
	assert.True(t, res.Degraded, "no LLM configured")
	assert.Empty(t, res.Answer)

	res, err = a.search.SearchDepartmentDocuments(ctx, compound.ID, dep.ID, "budget", 3)
	require.NoError(t, err)
	for _, s := range res.Sources {
		assert.True(t, strings.HasPrefix(s.Title, "handbook/"), "department scope leaked %s", s.Title)
	}

	_, err = a.search.SearchDocuments(ctx, "south-yard", "forklift", nil, 3)
	require.Error(t, err)

	rows, err := a.database.SearchDatabase(ctx, compound.ID, sqlquery.Request{
		Query: "products with price over 100",
		Table: "ipx_b_products",
	})
	require.NoError(t, err)
	assert.Equal(t, 6, rows.RowCount)
}

func TestApp_EmptyCompound(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, offlineConfig(t))
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.catalog.CreateCompound(ctx, &catalog.Compound{ID: "empty", Title: "Empty"}))
	res, err := a.search.SearchDocuments(ctx, "empty", "anything at all", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, search.EmptyScopeAnswer, res.Answer)
}

func TestApp_ReopenRecoversState(t *testing.T) {
	ctx := context.Background()
	cfg := offlineConfig(t)

	a, err := newApp(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, a.catalog.CreateCompound(ctx, &catalog.Compound{ID: "c1", Title: "One"}))
	require.NoError(t, a.Close())

	a, err = newApp(ctx, cfg)
	require.NoError(t, err)
	defer a.Close()
	compounds, err := a.catalog.ListCompounds(ctx)
	require.NoError(t, err)
	require.Len(t, compounds, 1)
	assert.Equal(t, "c1", compounds[0].ID)
}
