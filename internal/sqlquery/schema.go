// Package sqlquery answers natural-language questions over an allow-list
// of relational tables. Table and column names are checked against the
// allow-list before any statement is rendered, and every value reaches the
// database as a bound parameter.
package sqlquery

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/config"
)

// ColumnType is the declared type of an allow-listed column.
type ColumnType string

const (
	TypeText      ColumnType = "text"
	TypeInteger   ColumnType = "integer"
	TypeReal      ColumnType = "real"
	TypeTimestamp ColumnType = "timestamp"
)

// Numeric reports whether values of t compare as numbers.
func (t ColumnType) Numeric() bool {
	return t == TypeInteger || t == TypeReal
}

type Column struct {
	Name        string     `json:"name"`
	Type        ColumnType `json:"type"`
	Description string     `json:"description,omitempty"`
}

type Table struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Columns     []Column `json:"columns"`
}

// Column looks up a column by name, case-insensitively.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Project resolves the requested projection. An empty request means every
// column of the table; any unknown name fails the whole request.
func (t Table) Project(columns []string) ([]Column, error) {
	if len(columns) == 0 {
		return append([]Column(nil), t.Columns...), nil
	}
	out := make([]Column, 0, len(columns))
	seen := make(map[string]bool, len(columns))
	for _, name := range columns {
		c, ok := t.Column(strings.TrimSpace(name))
		if !ok {
			return nil, apperr.Validation(apperr.CodeUnknownColumn, "unknown column %q for table %s", name, t.Name).
				WithDetail("table", t.Name).
				WithDetail("column", name)
		}
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out, nil
}

// Schema is the allow-list of queryable tables.
type Schema struct {
	tables map[string]Table
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewSchema builds an allow-list. Identifiers are restricted to
// [A-Za-z_][A-Za-z0-9_]*, so a configured name can never carry SQL.
func NewSchema(tables ...Table) (*Schema, error) {
	s := &Schema{tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		if !identifier.MatchString(t.Name) {
			return nil, fmt.Errorf("invalid table name %q", t.Name)
		}
		if len(t.Columns) == 0 {
			return nil, fmt.Errorf("table %s has no columns", t.Name)
		}
		for _, c := range t.Columns {
			if !identifier.MatchString(c.Name) {
				return nil, fmt.Errorf("invalid column name %q in table %s", c.Name, t.Name)
			}
			switch c.Type {
			case TypeText, TypeInteger, TypeReal, TypeTimestamp:
			default:
				return nil, fmt.Errorf("column %s.%s: invalid type %q", t.Name, c.Name, c.Type)
			}
		}
		s.tables[strings.ToLower(t.Name)] = t
	}
	return s, nil
}

// SchemaFromConfig returns the sample tables (when enabled) plus the
// configured ones. A configured table replaces a sample table of the same
// name.
func SchemaFromConfig(cfg config.StructuredConfig) (*Schema, error) {
	byName := make(map[string]Table)
	if cfg.SampleTables {
		for _, t := range SampleTables() {
			byName[strings.ToLower(t.Name)] = t
		}
	}
	for _, tc := range cfg.Tables {
		t := Table{Name: tc.Name}
		for _, cc := range tc.Columns {
			t.Columns = append(t.Columns, Column{Name: cc.Name, Type: ColumnType(cc.Type)})
		}
		byName[strings.ToLower(t.Name)] = t
	}
	tables := make([]Table, 0, len(byName))
	for _, t := range byName {
		tables = append(tables, t)
	}
	return NewSchema(tables...)
}

// Table returns an allow-listed table.
func (s *Schema) Table(name string) (Table, error) {
	t, ok := s.tables[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Table{}, apperr.Validation(apperr.CodeUnknownTable, "unknown table %q", name).
			WithDetail("table", name)
	}
	return t, nil
}

// Tables lists the allow-list ordered by name.
func (s *Schema) Tables() []Table {
	out := make([]Table, 0, len(s.tables))
	for _, t := range s.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SampleTables describes the business tables seeded by db.EnsureSampleTables.
func SampleTables() []Table {
	return []Table{
		{
			Name:        "ipx_b_products",
			Description: "Products",
			Columns: []Column{
				{Name: "id", Type: TypeInteger, Description: "Unique identifier for the product"},
				{Name: "name", Type: TypeText, Description: "Name of the product"},
				{Name: "description", Type: TypeText, Description: "Description of the product"},
				{Name: "category_id", Type: TypeInteger, Description: "References ipx_b_categories.id"},
				{Name: "supplier_id", Type: TypeInteger, Description: "References ipx_b_suppliers.id"},
				{Name: "price", Type: TypeReal, Description: "Price of the product"},
				{Name: "stock_quantity", Type: TypeInteger, Description: "Quantity in stock"},
				{Name: "created_at", Type: TypeTimestamp, Description: "When the product was created"},
			},
		},
		{
			Name:        "ipx_b_categories",
			Description: "Categories",
			Columns: []Column{
				{Name: "id", Type: TypeInteger, Description: "Unique identifier for the category"},
				{Name: "name", Type: TypeText, Description: "Name of the category"},
				{Name: "created_at", Type: TypeTimestamp, Description: "When the category was created"},
			},
		},
		{
			Name:        "ipx_b_suppliers",
			Description: "Suppliers",
			Columns: []Column{
				{Name: "id", Type: TypeInteger, Description: "Unique identifier for the supplier"},
				{Name: "name", Type: TypeText, Description: "Name of the supplier"},
				{Name: "contact_email", Type: TypeText, Description: "Email address for the supplier"},
				{Name: "phone_number", Type: TypeText, Description: "Phone number for the supplier"},
				{Name: "address", Type: TypeText, Description: "Physical address of the supplier"},
				{Name: "created_at", Type: TypeTimestamp, Description: "When the supplier was created"},
			},
		},
	}
}
