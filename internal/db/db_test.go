package db

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	tables := []string{"compounds", "departments", "documents", "department_documents", "chunks", "chunks_fts"}
	for _, table := range tables {
		var count int
		if err := d.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("table %s: %v", table, err)
		}
	}
}

func TestMigrateIdempotent(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	if err := d.migrate(); err != nil {
		t.Fatalf("second migrate() error: %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer d.Close()

	if d.Path() != path {
		t.Errorf("Path() = %q, want %q", d.Path(), path)
	}
}

func TestChunksFTSTriggers(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()

	_, err = d.Exec(`INSERT INTO chunks (index_name, document_id, chunk_index, start_offset, end_offset, content)
		VALUES ('compound-a', 'doc-1', 0, 0, 30, 'quarterly revenue grew strongly')`)
	if err != nil {
		t.Fatalf("insert chunk: %v", err)
	}

	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM chunks_fts WHERE chunks_fts MATCH 'revenue'`).Scan(&n); err != nil {
		t.Fatalf("fts query: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 fts match, got %d", n)
	}

	if _, err := d.Exec(`DELETE FROM chunks WHERE document_id = 'doc-1'`); err != nil {
		t.Fatalf("delete chunk: %v", err)
	}
	if err := d.QueryRow(`SELECT COUNT(*) FROM chunks_fts WHERE chunks_fts MATCH 'revenue'`).Scan(&n); err != nil {
		t.Fatalf("fts query: %v", err)
	}
	if n != 0 {
		t.Errorf("expected fts row removed by trigger, got %d", n)
	}
}

func TestEnsureSampleTables(t *testing.T) {
	d, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer d.Close()
	ctx := context.Background()

	if err := d.EnsureSampleTables(ctx); err != nil {
		t.Fatalf("EnsureSampleTables: %v", err)
	}
	// Seeding twice must not duplicate rows.
	if err := d.EnsureSampleTables(ctx); err != nil {
		t.Fatalf("second EnsureSampleTables: %v", err)
	}

	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM ipx_b_products`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 12 {
		t.Errorf("expected 12 products, got %d", n)
	}
}

func TestOpenBusinessSkipsCatalogSchema(t *testing.T) {
	d, err := OpenBusiness(filepath.Join(t.TempDir(), "business.db"))
	if err != nil {
		t.Fatalf("OpenBusiness() error: %v", err)
	}
	defer d.Close()
	ctx := context.Background()

	if err := d.EnsureSampleTables(ctx); err != nil {
		t.Fatalf("EnsureSampleTables: %v", err)
	}

	var names []string
	rows, err := d.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name`)
	if err != nil {
		t.Fatalf("listing tables: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, name)
	}
	want := []string{"ipx_b_categories", "ipx_b_products", "ipx_b_suppliers"}
	if len(names) != len(want) {
		t.Fatalf("tables = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tables = %v, want %v", names, want)
			break
		}
	}
}
