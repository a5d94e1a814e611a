// Package sqlite implements ports.ProductSearcher over an SQLite FTS5 index.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/quotecraft/drew/pkg/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	unit TEXT NOT NULL DEFAULT '',
	unit_price REAL NOT NULL DEFAULT 0
);

CREATE VIRTUAL TABLE IF NOT EXISTS products_fts USING fts5(
	name,
	category,
	content=products,
	content_rowid=rowid
);

CREATE TRIGGER IF NOT EXISTS products_fts_insert AFTER INSERT ON products BEGIN
	INSERT INTO products_fts(rowid, name, category) VALUES (new.rowid, new.name, new.category);
END;

CREATE TRIGGER IF NOT EXISTS products_fts_delete AFTER DELETE ON products BEGIN
	INSERT INTO products_fts(products_fts, rowid, name, category) VALUES ('delete', old.rowid, old.name, old.category);
END;

CREATE TRIGGER IF NOT EXISTS products_fts_update AFTER UPDATE ON products BEGIN
	INSERT INTO products_fts(products_fts, rowid, name, category) VALUES ('delete', old.rowid, old.name, old.category);
	INSERT INTO products_fts(rowid, name, category) VALUES (new.rowid, new.name, new.category);
END;
`

// Catalog is a product catalog searchable by name.
type Catalog struct {
	db *sql.DB
}

// Open opens (creating if needed) the catalog at dsn. Use ":memory:" for an
// ephemeral catalog.
func Open(ctx context.Context, dsn string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Upsert inserts or replaces products by id.
func (c *Catalog) Upsert(ctx context.Context, products ...domain.Product) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (id, name, category, unit, unit_price) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			unit = excluded.unit,
			unit_price = excluded.unit_price
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for _, p := range products {
		if p.ID == "" {
			return fmt.Errorf("product %q has no id", p.Name)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.Category, p.Unit, p.UnitPrice); err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// ImportFile loads a YAML list of products and upserts them.
func (c *Catalog) ImportFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read products file: %w", err)
	}
	var file struct {
		Products []productRecord `yaml:"products"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse products file: %w", err)
	}

	products := make([]domain.Product, 0, len(file.Products))
	for _, r := range file.Products {
		products = append(products, domain.Product(r))
	}
	if err := c.Upsert(ctx, products...); err != nil {
		return 0, err
	}
	return len(products), nil
}

type productRecord struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	UnitPrice float64 `yaml:"unit_price"`
	Unit      string  `yaml:"unit"`
	Category  string  `yaml:"category"`
}

// Search ranks products whose name matches every word of term (prefix match)
// by bm25. When category is set, products tagged with another category are
// skipped; untagged products still match.
func (c *Catalog) Search(ctx context.Context, term, category string, limit int) ([]domain.Product, error) {
	match := ftsQuery(term)
	if match == "" {
		return nil, nil
	}

	query := `
		SELECT p.id, p.name, p.category, p.unit, p.unit_price
		FROM products_fts f
		JOIN products p ON p.rowid = f.rowid
		WHERE products_fts MATCH ?
	`
	args := []any{match}
	if category != "" {
		query += " AND (p.category = '' OR p.category = ? COLLATE NOCASE)"
		args = append(args, category)
	}
	query += " ORDER BY bm25(products_fts), p.id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.UnitPrice); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// ftsQuery turns free text into an FTS5 expression restricted to the name
// column. Each word becomes a quoted prefix token, so user input can never be
// read as FTS syntax.
func ftsQuery(term string) string {
	words := strings.FieldsFunc(strings.ToLower(term), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return ""
	}
	tokens := make([]string, len(words))
	for i, w := range words {
		tokens[i] = `"` + w + `"*`
	}
	return "name : (" + strings.Join(tokens, " ") + ")"
}
