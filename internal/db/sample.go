package db

import (
	"context"
	"fmt"
)

// sampleSchema holds the business tables that back the default
// structured-query allow-list.
const sampleSchema = `
CREATE TABLE IF NOT EXISTS ipx_b_categories (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ipx_b_suppliers (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    contact_email TEXT,
    phone_number TEXT,
    address TEXT,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS ipx_b_products (
    id INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    category_id INTEGER REFERENCES ipx_b_categories(id),
    supplier_id INTEGER REFERENCES ipx_b_suppliers(id),
    price REAL NOT NULL DEFAULT 0,
    stock_quantity INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const sampleData = `
INSERT INTO ipx_b_categories (id, name) VALUES
    (1, 'Electronics'), (2, 'Office Supplies'), (3, 'Kitchen');

INSERT INTO ipx_b_suppliers (id, name, contact_email, phone_number, address) VALUES
    (1, 'Northwind Traders', 'sales@northwind.example', '+1-555-0100', '12 Harbor Rd'),
    (2, 'Contoso Office', 'orders@contoso.example', '+1-555-0101', '400 Market St'),
    (3, 'Fabrikam Home', 'hello@fabrikam.example', '+1-555-0102', '9 Elm Ave');

INSERT INTO ipx_b_products (id, name, description, category_id, supplier_id, price, stock_quantity) VALUES
    (1, 'Laptop Pro 14', '14 inch laptop with 16GB RAM', 1, 1, 1299.00, 12),
    (2, 'Wireless Mouse', 'Ergonomic wireless mouse', 1, 1, 24.99, 240),
    (3, '4K Monitor', '27 inch 4K display', 1, 1, 349.50, 30),
    (4, 'Noise Cancelling Headphones', 'Over-ear bluetooth headphones', 1, 1, 199.00, 45),
    (5, 'Printer Paper A4', 'Box of 5 reams', 2, 2, 32.00, 500),
    (6, 'Standing Desk', 'Electric height adjustable desk', 2, 2, 540.00, 8),
    (7, 'Office Chair', 'Mesh back ergonomic chair', 2, 2, 189.00, 20),
    (8, 'Stapler', 'Heavy duty stapler', 2, 2, 12.50, 150),
    (9, 'Espresso Machine', 'Dual boiler espresso machine', 3, 3, 899.00, 5),
    (10, 'Chef Knife', '8 inch stainless steel knife', 3, 3, 75.00, 60),
    (11, 'Blender', 'High speed blender', 3, 3, 100.00, 25),
    (12, 'Kettle', 'Electric kettle 1.7L', 3, 3, 45.00, 80);
`

// EnsureSampleTables creates the sample business tables and seeds them
// when they are empty.
func (d *DB) EnsureSampleTables(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, sampleSchema); err != nil {
		return fmt.Errorf("creating sample tables: %w", err)
	}
	var n int
	if err := d.QueryRowContext(ctx, `SELECT COUNT(*) FROM ipx_b_products`).Scan(&n); err != nil {
		return fmt.Errorf("counting sample products: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := d.ExecContext(ctx, sampleData); err != nil {
		return fmt.Errorf("seeding sample tables: %w", err)
	}
	return nil
}
